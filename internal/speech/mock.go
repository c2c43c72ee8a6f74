package speech

import (
	"context"
	"sync"

	"github.com/dgnsrekt/narrate/internal/narration"
)

// Mock is a scriptable Synthesizer for tests. Utterances stay pending until
// Finish, Fail or Cancel is called, unless AutoFinish is set.
type Mock struct {
	// AutoFinish completes every utterance successfully as soon as it starts.
	AutoFinish bool
	// FailWith, when it returns an error for an utterance, fails it at once.
	FailWith func(Utterance) error

	mu      sync.Mutex
	spoken  []Utterance
	current chan narration.Outcome
	pauses  int
	resumes int
	cancels int
	started chan Utterance
}

// NewMock creates a Mock.
func NewMock() *Mock {
	return &Mock{started: make(chan Utterance, 256)}
}

// Speak implements Synthesizer.
func (m *Mock) Speak(ctx context.Context, u Utterance) <-chan narration.Outcome {
	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	select {
	case m.started <- u:
	default:
	}

	if m.FailWith != nil {
		if err := m.FailWith(u); err != nil {
			m.mu.Unlock()
			return done(narration.Failed(err))
		}
	}
	if m.AutoFinish {
		m.mu.Unlock()
		return done(narration.Succeeded())
	}

	ch := make(chan narration.Outcome, 1)
	m.current = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.complete(ch, narration.Cancelled())
	}()
	return ch
}

// Started delivers each utterance as Speak receives it.
func (m *Mock) Started() <-chan Utterance { return m.started }

// Finish completes the pending utterance successfully.
func (m *Mock) Finish() { m.complete(nil, narration.Succeeded()) }

// Fail completes the pending utterance with err.
func (m *Mock) Fail(err error) { m.complete(nil, narration.Failed(err)) }

// Pause implements Synthesizer.
func (m *Mock) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
	return nil
}

// Resume implements Synthesizer.
func (m *Mock) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	return nil
}

// Cancel implements Synthesizer.
func (m *Mock) Cancel() {
	m.mu.Lock()
	m.cancels++
	m.mu.Unlock()
	m.complete(nil, narration.Cancelled())
}

// Spoken returns every utterance passed to Speak.
func (m *Mock) Spoken() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Utterance(nil), m.spoken...)
}

// Counts returns the number of Pause, Resume and Cancel calls.
func (m *Mock) Counts() (pauses, resumes, cancels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauses, m.resumes, m.cancels
}

// complete sends o on ch, or on the current channel when ch is nil. Each
// channel receives at most one outcome.
func (m *Mock) complete(ch chan narration.Outcome, o narration.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch == nil {
		ch = m.current
	}
	if ch == nil || ch != m.current {
		return
	}
	m.current = nil
	ch <- o
}

var _ Synthesizer = (*Mock)(nil)
