package camera

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// StillCamera returns copies of a fixed frame. Exposure and gain are
// recorded but have no effect on the image.
type StillCamera struct {
	mu       sync.Mutex
	frame    gocv.Mat
	exposure float64
	gain     float64
	captures int
}

// OpenStillCamera loads the image at path.
func OpenStillCamera(path string) (*StillCamera, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	if m.Empty() {
		m.Close()
		return nil, fmt.Errorf("read still image %q: empty or unreadable", path)
	}
	return &StillCamera{frame: m}, nil
}

// NewStillCamera serves a copy of frame. The caller keeps ownership of frame.
func NewStillCamera(frame gocv.Mat) *StillCamera {
	return &StillCamera{frame: frame.Clone()}
}

func (c *StillCamera) Capture() (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame.Empty() {
		return gocv.NewMat(), ErrNoFrame
	}
	c.captures++
	return c.frame.Clone(), nil
}

func (c *StillCamera) SetExposure(v float64) error {
	c.mu.Lock()
	c.exposure = v
	c.mu.Unlock()
	return nil
}

func (c *StillCamera) SetGain(v float64) error {
	c.mu.Lock()
	c.gain = v
	c.mu.Unlock()
	return nil
}

// Settings returns the last exposure and gain set.
func (c *StillCamera) Settings() (exposure, gain float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure, c.gain
}

// Captures returns the number of frames served.
func (c *StillCamera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

func (c *StillCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame.Close()
}
