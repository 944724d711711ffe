// Package robot implements the register handshake with the robot controller:
// reading the cell state and publishing a carton pose.
package robot

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedRobot = errors.New("unsupported robot type")
	ErrCircuitOpen      = errors.New("robot link circuit open")
)

// ReadyValue is the ready-flag value meaning the robot is idle and waiting
// for coordinates. ConsumedValue is written after a publish.
const (
	ReadyValue    = 1
	ConsumedValue = 2
)

// State is the per-cycle register snapshot. HeightMm 0 means no live reading.
type State struct {
	Ready    int     `json:"ready"`
	Program  int     `json:"program"`
	Variant  int     `json:"variant"`
	HeightMm float64 `json:"height_mm"`
}

// IsReady reports whether the robot waits for new coordinates.
func (s State) IsReady() bool { return s.Ready == ReadyValue }

func (s State) String() string {
	return fmt.Sprintf("ready=%d program=%d variant=%d height=%gmm", s.Ready, s.Program, s.Variant, s.HeightMm)
}

// Pose is a carton position and orientation in the robot frame.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

func (p Pose) String() string {
	return fmt.Sprintf("X=%.5f Y=%.5f A=%.5f", p.X, p.Y, p.Angle)
}

// Link is a robot controller connection.
type Link interface {
	// ReadState reads program, variant, ready flag and height. On transport
	// failure it returns the zero State together with the error.
	ReadState(ctx context.Context) (State, error)
	// Publish writes X, Y and angle, then flips the ready flag. A failed
	// write aborts the sequence before the flag is touched.
	Publish(ctx context.Context, pose Pose) error
	// Close releases the link.
	Close() error
}
