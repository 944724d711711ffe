package robot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/cartonguide/internal/httputil"
	"github.com/banshee-data/cartonguide/internal/monitoring"
	"github.com/banshee-data/cartonguide/internal/timeutil"
)

const (
	numregPath = "/MD/NUMREG.VA"
	comSetPath = "/KAREL/ComSet"
	// comSetFunction is the ComSet function code for a numeric register write.
	comSetFunction = 2
	// maxListing caps the NUMREG.VA response body.
	maxListing = 1 << 20
	// retryBackoff is multiplied by the attempt number between read retries.
	retryBackoff = 100 * time.Millisecond
)

// FanucLink talks to a Fanuc controller's web server. Registers are read from
// the NUMREG.VA listing and written one at a time through the ComSet KAREL
// program.
type FanucLink struct {
	base    string
	client  httputil.Doer
	regs    Registers
	retries int
	breaker *Breaker
	clock   timeutil.Clock
	log     monitoring.Logger
}

// NewFanucLink returns a link to the controller at address, which may be a
// bare host or a full http URL.
func NewFanucLink(address string, opts Options) (*FanucLink, error) {
	base, err := baseURL(address)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if err := opts.Registers.Validate(); err != nil {
		return nil, err
	}
	return &FanucLink{
		base:    base,
		client:  opts.Client,
		regs:    opts.Registers,
		retries: opts.ReadRetries,
		breaker: NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown, opts.Clock),
		clock:   opts.Clock,
		log:     monitoring.New("robot"),
	}, nil
}

func baseURL(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("robot address is empty")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid robot address %q: %w", address, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid robot address %q: missing host", address)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// ReadState reads the register listing, retrying transport failures with a
// linear backoff.
func (f *FanucLink) ReadState(ctx context.Context) (State, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			if err := f.clock.SleepContext(ctx, time.Duration(attempt)*retryBackoff); err != nil {
				return State{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return State{}, err
		}
		if err := f.breaker.Allow(); err != nil {
			return State{}, err
		}
		text, err := f.readListing(ctx)
		f.breaker.Record(err)
		if err == nil {
			return StateFrom(ParseRegisters(text), f.regs), nil
		}
		lastErr = err
		f.log.Printf("read attempt %d/%d failed: %v", attempt+1, f.retries+1, err)
	}
	return State{}, fmt.Errorf("read registers: %w", lastErr)
}

func (f *FanucLink) readListing(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+numregPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", numregPath, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListing))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Publish writes X, Y and angle as real values, then sets the ready flag to
// ConsumedValue. It stops at the first failed write.
func (f *FanucLink) Publish(ctx context.Context, pose Pose) error {
	writes := []struct {
		name  string
		index int
		value float64
		kind  int
	}{
		{"x", f.regs.X, pose.X, f.regs.RealType},
		{"y", f.regs.Y, pose.Y, f.regs.RealType},
		{"angle", f.regs.Angle, pose.Angle, f.regs.RealType},
		{"ready", f.regs.Ready, ConsumedValue, f.regs.IntType},
	}
	for _, w := range writes {
		if err := f.breaker.Allow(); err != nil {
			return fmt.Errorf("write %s: %w", w.name, err)
		}
		err := f.writeRegister(ctx, w.index, w.value, w.kind)
		f.breaker.Record(err)
		if err != nil {
			return fmt.Errorf("write %s: %w", w.name, err)
		}
	}
	return nil
}

func (f *FanucLink) writeRegister(ctx context.Context, index int, value float64, kind int) error {
	q := url.Values{}
	q.Set("sValue", strconv.FormatFloat(value, 'f', -1, 64))
	q.Set("sIndx", strconv.Itoa(index))
	q.Set("sRealFlag", strconv.Itoa(kind))
	q.Set("sFc", strconv.Itoa(comSetFunction))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+comSetPath+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxListing))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ComSet register %d: status %d", index, resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (f *FanucLink) Close() error {
	if c, ok := f.client.(*http.Client); ok {
		c.CloseIdleConnections()
	}
	return nil
}
