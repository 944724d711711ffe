// Package pipeline runs the detection and guidance cycle: capture, undistort,
// read the robot, detect, assemble, estimate, publish and hand the annotated
// frame to readers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/banshee-data/cartonguide/internal/calibration"
	"github.com/banshee-data/cartonguide/internal/camera"
	"github.com/banshee-data/cartonguide/internal/framebuf"
	"github.com/banshee-data/cartonguide/internal/monitoring"
	"github.com/banshee-data/cartonguide/internal/robot"
	"github.com/banshee-data/cartonguide/internal/timeutil"
	"github.com/banshee-data/cartonguide/internal/vision"
)

// DefaultFallbackHeightMm replaces a height reading of 0.
const DefaultFallbackHeightMm = 4000

// errorBackoff is the pause after a cycle that could not capture a frame.
const errorBackoff = 500 * time.Millisecond

var logger = monitoring.New("pipeline")

// Counter is the durable pick counter. It has a single writer, the worker.
type Counter interface {
	PickCount() (int64, error)
	IncrementPickCount() (int64, error)
}

// Config wires a Processor.
type Config struct {
	Camera      camera.Camera
	Calibration *calibration.Store
	Link        robot.Link
	Counter     Counter
	Frames      *framebuf.Mailbox[framebuf.Frame]
	Stats       *Stats

	Borders          vision.Borders
	MaxCluster       int
	FallbackHeightMm float64
	DefaultGain      float64
	Interval         time.Duration
	Clock            timeutil.Clock
}

// Processor owns one guidance loop. It is not safe for concurrent Step calls.
type Processor struct {
	cfg          Config
	preprocessor *vision.Preprocessor
	assembler    vision.Assembler
}

// NewProcessor validates cfg and fills defaults.
func NewProcessor(cfg Config) (*Processor, error) {
	switch {
	case cfg.Camera == nil:
		return nil, errors.New("pipeline: camera is required")
	case cfg.Calibration == nil:
		return nil, fmt.Errorf("pipeline: %w", calibration.ErrCalibrationMissing)
	case cfg.Link == nil:
		return nil, errors.New("pipeline: robot link is required")
	case cfg.Counter == nil:
		return nil, errors.New("pipeline: counter is required")
	}
	if cfg.Frames == nil {
		cfg.Frames = framebuf.NewMailbox[framebuf.Frame]()
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStats(DefaultHistory)
	}
	if cfg.Borders == (vision.Borders{}) {
		cfg.Borders = vision.DefaultBorders
	}
	if cfg.FallbackHeightMm <= 0 {
		cfg.FallbackHeightMm = DefaultFallbackHeightMm
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Processor{
		cfg:          cfg,
		preprocessor: &vision.Preprocessor{Borders: cfg.Borders},
		assembler:    vision.Assembler{MaxCluster: cfg.MaxCluster},
	}, nil
}

// Frames returns the mailbox annotated frames are stored in.
func (p *Processor) Frames() *framebuf.Mailbox[framebuf.Frame] { return p.cfg.Frames }

// Stats returns the cycle history.
func (p *Processor) Stats() *Stats { return p.cfg.Stats }

// Run executes cycles until ctx is cancelled. A cycle in progress finishes
// first. Closing the camera, link and counter is left to the caller.
func (p *Processor) Run(ctx context.Context) error {
	logger.Printf("guidance loop started")
	for {
		if err := ctx.Err(); err != nil {
			logger.Printf("guidance loop stopped")
			return nil
		}
		wait := p.cfg.Interval
		if _, err := p.Step(ctx); err != nil {
			logger.Printf("cycle failed: %v", err)
			if wait < errorBackoff {
				wait = errorBackoff
			}
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
		case <-p.cfg.Clock.After(wait):
		}
	}
}

// Step runs one cycle. Only a failed capture is returned as an error; every
// later failure is soft: it is logged, recorded on the result, and an
// annotated frame is still stored.
func (p *Processor) Step(ctx context.Context) (CycleResult, error) {
	res := CycleResult{ID: uuid.NewString(), Started: p.cfg.Clock.Now()}

	raw, err := p.cfg.Camera.Capture()
	if err != nil {
		res.fail("capture", err)
		res.Duration = p.cfg.Clock.Since(res.Started)
		p.cfg.Stats.Add(res)
		return res, fmt.Errorf("capture: %w", err)
	}
	frame, undistortErr := p.cfg.Calibration.Undistort(raw)
	if undistortErr != nil {
		res.fail("undistort", undistortErr)
		frame.Close()
		frame = raw
	} else {
		raw.Close()
	}
	defer frame.Close()

	state, err := p.cfg.Link.ReadState(ctx)
	if err != nil {
		res.fail("read state", err)
		state = robot.State{}
	}
	res.State = state
	res.HeightMm = state.HeightMm
	if res.HeightMm == 0 {
		res.HeightMm = p.cfg.FallbackHeightMm
	}

	var (
		preview gocv.Mat
		overlay vision.Overlay
	)
	if undistortErr != nil {
		preview = frame.Clone()
		overlay.Lines = []string{res.State.String(), "undistort failed"}
	} else {
		preview, overlay = p.detect(ctx, frame, &res)
	}
	defer preview.Close()

	if err := p.storeFrame(preview, overlay, &res); err != nil {
		res.fail("annotate", err)
	}
	res.Duration = p.cfg.Clock.Since(res.Started)
	p.cfg.Stats.Add(res)
	return res, nil
}

// detect runs lookup, detection, estimation and publish. It returns the
// frame to annotate, which the caller closes, and what to draw on it.
func (p *Processor) detect(ctx context.Context, frame gocv.Mat, res *CycleResult) (gocv.Mat, vision.Overlay) {
	var overlay vision.Overlay
	overlay.Lines = []string{fmt.Sprintf("%s  height %gmm", res.State, res.HeightMm)}

	band, err := p.cfg.Calibration.LookupBand(res.HeightMm)
	if err != nil {
		res.fail("band", err)
		overlay.Lines = append(overlay.Lines, "no height band")
		return frame.Clone(), overlay
	}
	res.Band = band.Description
	profile, err := p.cfg.Calibration.LookupProfile(res.State.Program, res.State.Variant)
	if err != nil {
		res.fail("profile", err)
		overlay.Lines = append(overlay.Lines, "no carton profile")
		return frame.Clone(), overlay
	}

	if err := p.cfg.Camera.SetExposure(band.Exposure); err != nil {
		logger.Printf("set exposure %g: %v", band.Exposure, err)
	}
	gain := band.GetGain()
	if gain == 0 {
		gain = p.cfg.DefaultGain
	}
	if gain > 0 {
		if err := p.cfg.Camera.SetGain(gain); err != nil {
			logger.Printf("set gain %g: %v", gain, err)
		}
	}

	preview, mask, err := p.preprocessor.Mask(frame, band)
	if err != nil {
		res.fail("mask", err)
		preview.Close()
		mask.Close()
		return frame.Clone(), overlay
	}
	defer mask.Close()

	holes := vision.DetectHoles(mask, band.HoleParams())
	res.Holes = len(holes)
	overlay.Holes = holes

	quad, ok := p.assembler.Assemble(holes, calibration.CartonParamsFor(band, profile))
	if !ok {
		overlay.Lines = append(overlay.Lines, fmt.Sprintf("%s: %d holes, no carton", band.Description, len(holes)))
		return preview, overlay
	}
	res.Carton = true
	overlay.Quad = quad

	quadMask := quad.Mask(image.Pt(frame.Cols(), frame.Rows()))
	defer quadMask.Close()
	pose, err := vision.EstimatePose(quadMask, profile.WidthMm)
	if err != nil {
		res.fail("pose", err)
		return preview, overlay
	}
	res.Pose = &pose
	overlay.Lines = append(overlay.Lines, pose.String())

	if !res.State.IsReady() {
		return preview, overlay
	}
	if err := p.cfg.Link.Publish(ctx, pose); err != nil {
		res.fail("publish", err)
		return preview, overlay
	}
	res.Published = true
	picked, err := p.cfg.Counter.IncrementPickCount()
	if err != nil {
		res.fail("counter", err)
	}
	res.Picked = picked
	logger.Printf("cycle %s published %s (picked %d)", res.ID, pose, picked)
	overlay.Lines = append(overlay.Lines, fmt.Sprintf("published, picked %d", picked))
	return preview, overlay
}
