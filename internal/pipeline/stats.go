package pipeline

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultHistory is the number of cycles kept for status and charts.
const DefaultHistory = 200

// Stats keeps a ring of recent cycle results.
type Stats struct {
	mu     sync.Mutex
	ring   []CycleResult
	next   int
	full   bool
	cycles uint64
	picks  uint64
}

// NewStats returns a Stats holding up to n results.
func NewStats(n int) *Stats {
	if n <= 0 {
		n = DefaultHistory
	}
	return &Stats{ring: make([]CycleResult, n)}
}

// Add records a finished cycle.
func (s *Stats) Add(r CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = r
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
	s.cycles++
	if r.Published {
		s.picks++
	}
}

// Recent returns the buffered results, oldest first.
func (s *Stats) Recent() []CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return append([]CycleResult(nil), s.ring[:s.next]...)
	}
	out := make([]CycleResult, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	return append(out, s.ring[:s.next]...)
}

// Last returns the most recent result.
func (s *Stats) Last() (CycleResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full && s.next == 0 {
		return CycleResult{}, false
	}
	i := (s.next - 1 + len(s.ring)) % len(s.ring)
	return s.ring[i], true
}

// Totals returns the number of cycles and publishes since start.
func (s *Stats) Totals() (cycles, picks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles, s.picks
}

// MeanLatency is the mean cycle duration over the buffered results.
func (s *Stats) MeanLatency() time.Duration {
	recent := s.Recent()
	if len(recent) == 0 {
		return 0
	}
	ms := make([]float64, len(recent))
	for i, r := range recent {
		ms[i] = float64(r.Duration) / float64(time.Millisecond)
	}
	return time.Duration(stat.Mean(ms, nil) * float64(time.Millisecond))
}
