package robot

import (
	"context"
	"sync"
)

// MockLink is a scripted Link for tests. ReadState returns State and
// ReadErr; Publish records each pose and returns PublishErr.
type MockLink struct {
	mu sync.Mutex

	State      State
	ReadErr    error
	PublishErr error

	reads     int
	published []Pose
	closed    bool
}

// NewMockLink returns a MockLink that reads s.
func NewMockLink(s State) *MockLink {
	return &MockLink{State: s}
}

func (m *MockLink) ReadState(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.ReadErr != nil {
		return State{}, m.ReadErr
	}
	return m.State, nil
}

func (m *MockLink) Publish(ctx context.Context, pose Pose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.published = append(m.published, pose)
	return nil
}

func (m *MockLink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Published returns a copy of every successfully published pose.
func (m *MockLink) Published() []Pose {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Pose, len(m.published))
	copy(out, m.published)
	return out
}

// Reads returns the number of ReadState calls.
func (m *MockLink) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Closed reports whether Close was called.
func (m *MockLink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
