package robot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/cartonguide/internal/httputil"
	"github.com/banshee-data/cartonguide/internal/monitoring"
	"github.com/banshee-data/cartonguide/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

var testRegs = Registers{Program: 1, Variant: 2, Ready: 3, Height: 4, X: 5, Y: 6, Angle: 7, RealType: 1, IntType: -1}

type write struct {
	index int
	value float64
	kind  int
}

// fakeController serves NUMREG.VA and records ComSet writes in arrival order.
type fakeController struct {
	mu       sync.Mutex
	listing  string
	failRead int // number of reads to fail with 500
	failAt   int // register index whose write fails with 500
	onRead   func()
	reads    int
	writes   []write
}

func (c *fakeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch r.URL.Path {
	case numregPath:
		c.reads++
		if c.onRead != nil {
			c.onRead()
		}
		if c.failRead > 0 {
			c.failRead--
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, c.listing)
	case comSetPath:
		q := r.URL.Query()
		idx, _ := strconv.Atoi(q.Get("sIndx"))
		v, _ := strconv.ParseFloat(q.Get("sValue"), 64)
		kind, _ := strconv.Atoi(q.Get("sRealFlag"))
		if q.Get("sFc") != "2" {
			http.Error(w, "bad function", http.StatusBadRequest)
			return
		}
		if idx == c.failAt {
			http.Error(w, "fault", http.StatusInternalServerError)
			return
		}
		c.writes = append(c.writes, write{idx, v, kind})
	default:
		http.NotFound(w, r)
	}
}

func (c *fakeController) Writes() []write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]write(nil), c.writes...)
}

func newTestLink(t *testing.T, c *fakeController, opts Options) (*FanucLink, *timeutil.MockClock) {
	t.Helper()
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	opts.Registers = testRegs
	opts.Clock = clock
	link, err := NewFanucLink(srv.URL, opts)
	require.NoError(t, err)
	t.Cleanup(func() { link.Close() })
	return link, clock
}

const listing = `
F Number Registers
  [1] = 12  'PROGRAM'
  [2] = 3  'VARIANT'
  [3] = 1  'READY'
  [4] = 3995.5  'HEIGHT'
  [5] = -12.25  ''
`

func TestReadState(t *testing.T) {
	link, _ := newTestLink(t, &fakeController{listing: listing}, Options{})
	s, err := link.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, State{Ready: 1, Program: 12, Variant: 3, HeightMm: 3995.5}, s)
	assert.True(t, s.IsReady())
}

func TestReadState_MissingLinesDefaultToZero(t *testing.T) {
	link, _ := newTestLink(t, &fakeController{listing: "[1] = 4\ngarbage\n[3] = bogus\n"}, Options{})
	s, err := link.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, State{Program: 4}, s)
}

func TestReadState_RetriesWithBackoff(t *testing.T) {
	c := &fakeController{listing: listing, failRead: 2}
	link, clock := newTestLink(t, c, Options{ReadRetries: 2})
	s, err := link.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, s.Program)
	assert.Equal(t, 3, c.reads)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.Sleeps())
}

func TestReadState_TransportFailureReturnsZeroState(t *testing.T) {
	c := &fakeController{listing: listing, failRead: 10}
	link, _ := newTestLink(t, c, Options{ReadRetries: 1})
	s, err := link.ReadState(context.Background())
	assert.Error(t, err)
	assert.Equal(t, State{}, s)
	assert.Equal(t, 2, c.reads)
}

func TestReadState_NetworkErrorsRetried(t *testing.T) {
	refused := errors.New("dial tcp: connection refused")
	client := httputil.NewScriptedClient(
		httputil.Reply{Err: refused},
		httputil.Reply{Status: http.StatusOK, Body: listing},
	)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	link, err := NewFanucLink("robot.local", Options{Registers: testRegs, Clock: clock, Client: client, ReadRetries: 1})
	require.NoError(t, err)

	s, err := link.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3995.5, s.HeightMm)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "http://robot.local/MD/NUMREG.VA", reqs[1].URL.String())
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clock.Sleeps())
}

func TestPublish_NetworkErrorStopsWrites(t *testing.T) {
	client := httputil.NewScriptedClient(httputil.Reply{Status: http.StatusOK}, httputil.Reply{Err: errors.New("reset by peer")})
	link, err := NewFanucLink("robot.local", Options{Registers: testRegs, Client: client})
	require.NoError(t, err)

	err = link.Publish(context.Background(), Pose{X: 1, Y: 2, Angle: 3})
	require.Error(t, err)
	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "6", reqs[1].URL.Query().Get("sIndx"))
}

func TestReadState_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &fakeController{listing: listing, failRead: 100, onRead: cancel}
	srv := httptest.NewServer(c)
	defer srv.Close()

	// Real clock: 20 retries would back off for 21s in total.
	link, err := NewFanucLink(srv.URL, Options{Registers: testRegs, ReadRetries: 20})
	require.NoError(t, err)
	defer link.Close()

	start := time.Now()
	s, err := link.ReadState(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, State{}, s)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, c.reads)
}

func TestReadState_BreakerOpens(t *testing.T) {
	c := &fakeController{listing: listing, failRead: 3}
	link, clock := newTestLink(t, c, Options{BreakerThreshold: 3, BreakerCooldown: 10 * time.Second})

	for i := 0; i < 3; i++ {
		_, err := link.ReadState(context.Background())
		require.Error(t, err)
	}
	_, err := link.ReadState(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, c.reads, "open breaker short-circuits the request")

	clock.Advance(10 * time.Second)
	s, err := link.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, s.Program)
}

func TestPublish_WritesPayloadBeforeFlag(t *testing.T) {
	c := &fakeController{listing: listing}
	link, _ := newTestLink(t, c, Options{})

	for i := 0; i < 3; i++ {
		pose := Pose{X: float64(i) + 0.5, Y: -49.87654, Angle: -12.5}
		require.NoError(t, link.Publish(context.Background(), pose))
	}

	writes := c.Writes()
	require.Len(t, writes, 12)
	for i := 0; i < 3; i++ {
		got := writes[i*4 : i*4+4]
		assert.Equal(t, []write{
			{5, float64(i) + 0.5, 1},
			{6, -49.87654, 1},
			{7, -12.5, 1},
			{3, ConsumedValue, -1},
		}, got)
	}
}

func TestPublish_FailedWriteNeverFlipsFlag(t *testing.T) {
	c := &fakeController{listing: listing, failAt: 6}
	link, _ := newTestLink(t, c, Options{})

	err := link.Publish(context.Background(), Pose{X: 1, Y: 2, Angle: 3})
	require.Error(t, err)
	assert.Equal(t, []write{{5, 1, 1}}, c.Writes())
}

func TestPublish_CancelledContext(t *testing.T) {
	c := &fakeController{listing: listing}
	link, _ := newTestLink(t, c, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := link.Publish(ctx, Pose{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, c.Writes())
}

func TestParseRegisters(t *testing.T) {
	got := ParseRegisters("[1] = 7\n  [22]= -3.5e2 'x'\n[x] = 4\n[9] =\n[10] = .5\n")
	assert.Equal(t, map[int]float64{1: 7, 22: -350, 10: 0.5}, got)
	assert.Empty(t, ParseRegisters(""))
}

func TestBaseURL(t *testing.T) {
	got, err := baseURL("192.168.125.100")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.125.100", got)

	got, err = baseURL("http://robot:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://robot:8080", got)

	_, err = baseURL("")
	assert.Error(t, err)
}
