package backend

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dgnsrekt/narrate/internal/speech"
)

// Device narrates with a host speech synthesizer: the intro, then the
// summary when there is one, then the content.
type Device struct {
	synth  speech.Synthesizer
	logger *log.Logger
	unit   unit
}

// NewDevice creates an on-device backend.
func NewDevice(s speech.Synthesizer, logger *log.Logger) *Device {
	if logger == nil {
		logger = log.Default()
	}
	return &Device{synth: s, logger: logger}
}

// Kind implements narration.Backend.
func (d *Device) Kind() narration.BackendKind { return narration.BackendDevice }

type utterance struct {
	phase narration.PhaseKind
	text  string
}

// Narrate implements narration.Backend.
func (d *Device) Narrate(ctx context.Context, req narration.Request, onPhase func(narration.Phase)) <-chan narration.Outcome {
	steps := []utterance{{narration.PhaseIntro, req.Article.Intro()}}
	if s := req.Article.SummarySentence(); s != "" {
		steps = append(steps, utterance{narration.PhaseSummary, s})
	}
	steps = append(steps, utterance{narration.PhaseContent, req.Article.Content})

	return d.unit.start(ctx, func(ctx context.Context) narration.Outcome {
		for _, step := range steps {
			if ctx.Err() != nil {
				return narration.Cancelled()
			}
			if onPhase != nil {
				onPhase(narration.Phase{Kind: step.phase})
			}

			o := <-d.synth.Speak(ctx, speech.Utterance{
				Text:  step.text,
				Voice: req.Voice,
				Rate:  req.Rate,
			})
			switch {
			case o.Status == narration.StatusSuccess:
				continue
			case o.Status == narration.StatusCancelled || ctx.Err() != nil:
				return narration.Cancelled()
			default:
				d.logger.Debug("utterance failed", "id", req.Article.ID, "phase", narration.Phase{Kind: step.phase}, "err", o.Err)
				return o
			}
		}
		return narration.Succeeded()
	})
}

// Pause implements narration.Backend.
func (d *Device) Pause() error { return d.synth.Pause() }

// Resume implements narration.Backend.
func (d *Device) Resume() error { return d.synth.Resume() }

// Cancel implements narration.Backend.
func (d *Device) Cancel() {
	d.unit.stop()
	d.synth.Cancel()
}

// Close cancels any narration and waits for it to end.
func (d *Device) Close() error {
	d.Cancel()
	d.unit.wait()
	return nil
}

var _ narration.Backend = (*Device)(nil)
