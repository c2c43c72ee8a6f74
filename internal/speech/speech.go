// Package speech provides host speech synthesizers for on-device narration.
package speech

import (
	"context"

	"github.com/dgnsrekt/narrate/internal/narration"
)

// Utterance is one piece of text to speak.
type Utterance struct {
	Text  string
	Voice string
	// Rate is a multiplier of the voice's natural speaking rate.
	Rate float64
}

// Synthesizer speaks one utterance at a time. Speak returns a channel that
// receives exactly one outcome. An utterance stopped by Cancel or by its
// context reports a Cancelled outcome, never a failure.
type Synthesizer interface {
	Speak(ctx context.Context, u Utterance) <-chan narration.Outcome
	Pause() error
	Resume() error
	Cancel()
}

func done(o narration.Outcome) <-chan narration.Outcome {
	ch := make(chan narration.Outcome, 1)
	ch <- o
	return ch
}
