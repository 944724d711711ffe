package robot

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/cartonguide/internal/httputil"
	"github.com/banshee-data/cartonguide/internal/timeutil"
)

// Registers names the controller registers used by the handshake and the
// type codes sent with each write.
type Registers struct {
	Program  int `json:"program"`
	Variant  int `json:"variant"`
	Ready    int `json:"ready"`
	Height   int `json:"height"`
	X        int `json:"x"`
	Y        int `json:"y"`
	Angle    int `json:"angle"`
	RealType int `json:"real_type"`
	IntType  int `json:"int_type"`
}

// DefaultRegisters returns the register layout of the reference cell.
func DefaultRegisters() Registers {
	return Registers{
		Program:  1,
		Variant:  2,
		Ready:    3,
		Height:   4,
		X:        5,
		Y:        6,
		Angle:    7,
		RealType: 1,
		IntType:  -1,
	}
}

// Validate checks that register indices are usable and distinct.
func (r Registers) Validate() error {
	named := map[string]int{
		"program": r.Program,
		"variant": r.Variant,
		"ready":   r.Ready,
		"height":  r.Height,
		"x":       r.X,
		"y":       r.Y,
		"angle":   r.Angle,
	}
	seen := make(map[int]string, len(named))
	for name, idx := range named {
		if idx <= 0 {
			return fmt.Errorf("register %s must be positive, got %d", name, idx)
		}
		if other, ok := seen[idx]; ok {
			return fmt.Errorf("registers %s and %s share index %d", name, other, idx)
		}
		seen[idx] = name
	}
	return nil
}

// Options configures a controller link.
type Options struct {
	Registers        Registers
	Timeout          time.Duration
	ReadRetries      int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Clock            timeutil.Clock
	// Client overrides the HTTP client. Timeout is ignored when set.
	Client httputil.Doer
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.Client == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		o.Client = &http.Client{Timeout: timeout}
	}
	if o.ReadRetries < 0 {
		o.ReadRetries = 0
	}
	return o
}

// Supported robot types.
const (
	TypeFanuc    = "fanuc"
	TypeABB      = "abb"
	TypeKuka     = "kuka"
	TypeDisabled = "disabled"
)

// New returns a Link for the named controller type. Known but unimplemented
// controllers, and unknown names, fail with ErrUnsupportedRobot.
func New(kind, address string, opts Options) (Link, error) {
	switch strings.ToLower(kind) {
	case TypeFanuc:
		return NewFanucLink(address, opts)
	case TypeDisabled:
		return NewDisabledLink(), nil
	case TypeABB, TypeKuka:
		return nil, fmt.Errorf("%w: %s has no register protocol", ErrUnsupportedRobot, kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRobot, kind)
	}
}
