package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/narrate/internal/narration"
)

// Silent pretends to speak, taking as long as a reader at WPM words per
// minute would. It backs dry runs on machines without a speech program.
type Silent struct {
	WPM int

	mu      sync.Mutex
	paused  bool
	current chan struct{}
}

// NewSilent returns a Silent synthesizer at wpm words per minute.
func NewSilent(wpm int) *Silent {
	if wpm <= 0 {
		wpm = 175
	}
	return &Silent{WPM: wpm}
}

// Speak implements Synthesizer.
func (s *Silent) Speak(ctx context.Context, u Utterance) <-chan narration.Outcome {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(u.Text))
	remaining := time.Duration(float64(words) / (float64(s.WPM) * rate) * float64(time.Minute))

	cancel := make(chan struct{})
	s.mu.Lock()
	if s.current != nil {
		close(s.current)
	}
	s.current = cancel
	s.mu.Unlock()

	out := make(chan narration.Outcome, 1)
	go func() {
		const step = 20 * time.Millisecond
		ticker := time.NewTicker(step)
		defer ticker.Stop()

		for remaining > 0 {
			select {
			case <-ctx.Done():
				s.clear(cancel)
				out <- narration.Cancelled()
				return
			case <-cancel:
				out <- narration.Cancelled()
				return
			case <-ticker.C:
				if !s.isPaused() {
					remaining -= step
				}
			}
		}
		s.clear(cancel)
		out <- narration.Succeeded()
	}()
	return out
}

// Pause implements Synthesizer.
func (s *Silent) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

// Resume implements Synthesizer.
func (s *Silent) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

// Cancel implements Synthesizer.
func (s *Silent) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		close(s.current)
		s.current = nil
	}
	s.paused = false
}

func (s *Silent) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Silent) clear(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == ch {
		s.current = nil
	}
}

var _ Synthesizer = (*Silent)(nil)
