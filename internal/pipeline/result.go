package pipeline

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/cartonguide/internal/framebuf"
	"github.com/banshee-data/cartonguide/internal/robot"
	"github.com/banshee-data/cartonguide/internal/vision"
)

// CycleResult summarises one cycle for logs, status and charts.
type CycleResult struct {
	ID        string        `json:"id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration_ns"`
	State     robot.State   `json:"state"`
	HeightMm  float64       `json:"height_mm"` // after sentinel substitution
	Band      string        `json:"band,omitempty"`
	Holes     int           `json:"holes"`
	Carton    bool          `json:"carton"`
	Pose      *robot.Pose   `json:"pose,omitempty"`
	Published bool          `json:"published"`
	Picked    int64         `json:"picked,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
}

func (r *CycleResult) fail(stage string, err error) {
	msg := fmt.Sprintf("%s: %v", stage, err)
	r.Errors = append(r.Errors, msg)
	logger.Printf("cycle %s %s", r.ID, msg)
}

// storeFrame annotates preview and stores it in the mailbox as a JPEG.
func (p *Processor) storeFrame(preview gocv.Mat, overlay vision.Overlay, res *CycleResult) error {
	annotated := vision.Annotate(preview, p.cfg.Borders, overlay)
	defer annotated.Close()
	if annotated.Empty() {
		return fmt.Errorf("nothing to annotate")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, annotated)
	if err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	p.cfg.Frames.Store(framebuf.Frame{
		JPEG:     append([]byte(nil), buf.GetBytes()...),
		CycleID:  res.ID,
		Captured: res.Started,
	})
	return nil
}
