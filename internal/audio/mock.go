package audio

import (
	"context"
	"sync"
	"time"
)

// MockOutput simulates an audio device. Each clip "plays" for Delay of
// unsuspended time. It is used by tests and by dry runs.
type MockOutput struct {
	Delay time.Duration

	mu        sync.Mutex
	played    []*Clip
	suspended bool
	closed    bool
	suspends  int
	resumes   int
}

// NewMockOutput creates a mock output with the given per-clip delay.
func NewMockOutput(delay time.Duration) *MockOutput {
	return &MockOutput{Delay: delay}
}

// Play implements Output.
func (m *MockOutput) Play(ctx context.Context, clip *Clip) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.played = append(m.played, clip)
	m.mu.Unlock()

	const step = time.Millisecond
	remaining := m.Delay
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		if remaining <= 0 && !m.isSuspended() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !m.isSuspended() {
				remaining -= step
			}
		}
	}
}

// Suspend implements Output.
func (m *MockOutput) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
	m.suspends++
	return nil
}

// Resume implements Output.
func (m *MockOutput) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = false
	m.resumes++
	return nil
}

// Close implements Output.
func (m *MockOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Played returns the clips passed to Play so far.
func (m *MockOutput) Played() []*Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Clip(nil), m.played...)
}

// SuspendCounts returns how many times Suspend and Resume were called.
func (m *MockOutput) SuspendCounts() (suspends, resumes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspends, m.resumes
}

func (m *MockOutput) isSuspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

var _ Output = (*MockOutput)(nil)
