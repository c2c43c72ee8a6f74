package synth

import (
	"context"
	"sync"
)

// Mock is a scripted Synthesizer for tests. Respond is called with the
// 1-based call number.
type Mock struct {
	Respond func(call int, req Request) ([]byte, error)

	mu       sync.Mutex
	requests []Request
}

// Name implements Synthesizer.
func (m *Mock) Name() string { return "mock" }

// Synthesize implements Synthesizer.
func (m *Mock) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	call := len(m.requests)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, apiError("request cancelled", err)
	}
	if m.Respond == nil {
		return []byte("audio"), nil
	}
	return m.Respond(call, req)
}

// Requests returns the requests received so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

var _ Synthesizer = (*Mock)(nil)
