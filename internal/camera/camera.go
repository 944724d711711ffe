// Package camera wraps the frame sources the station can run against: a
// gocv VideoCapture device and a still image for dev mode and tests.
package camera

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

var (
	ErrUnsupportedCamera = errors.New("unsupported camera type")
	ErrNoFrame           = errors.New("camera returned no frame")
)

// Camera is a frame source with adjustable exposure and gain.
type Camera interface {
	// Capture returns the next frame. The caller closes it.
	Capture() (gocv.Mat, error)
	SetExposure(v float64) error
	SetGain(v float64) error
	Close() error
}

// Supported camera types.
const (
	TypeCV       = "cv"
	TypeStill    = "still"
	TypePiCamera = "picamera"
	TypeBasler   = "basler"
)

// Options configures New.
type Options struct {
	Device     int
	StillImage string
}

// New returns a Camera for the named type. Known but unimplemented sensors,
// and unknown names, fail with ErrUnsupportedCamera.
func New(kind string, opts Options) (Camera, error) {
	switch strings.ToLower(kind) {
	case TypeCV:
		return OpenVideoCaptureCamera(opts.Device)
	case TypeStill:
		return OpenStillCamera(opts.StillImage)
	case TypePiCamera, TypeBasler:
		return nil, fmt.Errorf("%w: %s needs a vendor SDK", ErrUnsupportedCamera, kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCamera, kind)
	}
}

// VideoCaptureCamera reads frames from a local capture device.
type VideoCaptureCamera struct {
	mu  sync.Mutex
	cap *gocv.VideoCapture
}

// OpenVideoCaptureCamera opens capture device id.
func OpenVideoCaptureCamera(id int) (*VideoCaptureCamera, error) {
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("open capture device %d: %w", id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open capture device %d: not opened", id)
	}
	return &VideoCaptureCamera{cap: vc}, nil
}

func (c *VideoCaptureCamera) Capture() (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := gocv.NewMat()
	if ok := c.cap.Read(&m); !ok || m.Empty() {
		m.Close()
		return gocv.NewMat(), ErrNoFrame
	}
	return m, nil
}

func (c *VideoCaptureCamera) SetExposure(v float64) error {
	c.mu.Lock()
	c.cap.Set(gocv.VideoCaptureExposure, v)
	c.mu.Unlock()
	return nil
}

func (c *VideoCaptureCamera) SetGain(v float64) error {
	c.mu.Lock()
	c.cap.Set(gocv.VideoCaptureGain, v)
	c.mu.Unlock()
	return nil
}

func (c *VideoCaptureCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cap.Close()
}
