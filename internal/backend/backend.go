// Package backend implements the two narration strategies: on-device speech
// and remote synthesis with local playback.
package backend

import (
	"context"
	"sync"

	"github.com/dgnsrekt/narrate/internal/narration"
)

// unit runs one narration job at a time. Starting a job cancels the one
// before it and waits for it to wind down, so two jobs never touch the
// underlying synthesizer or audio device at once.
type unit struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// start runs fn in a new goroutine and returns its outcome channel.
func (u *unit) start(parent context.Context, fn func(ctx context.Context) narration.Outcome) <-chan narration.Outcome {
	ctx, cancel := context.WithCancel(parent)
	finished := make(chan struct{})

	u.mu.Lock()
	if u.cancel != nil {
		u.cancel()
	}
	prev := u.done
	u.cancel = cancel
	u.done = finished
	u.mu.Unlock()

	out := make(chan narration.Outcome, 1)
	go func() {
		defer close(finished)
		defer cancel()

		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			out <- narration.Cancelled()
			return
		}
		out <- fn(ctx)
	}()
	return out
}

// stop cancels the running job, if any.
func (u *unit) stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		u.cancel()
		u.cancel = nil
	}
}

// wait blocks until the most recent job has returned.
func (u *unit) wait() {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()
	if done != nil {
		<-done
	}
}
