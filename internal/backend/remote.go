package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/audio"
	"github.com/dgnsrekt/narrate/internal/chunk"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dgnsrekt/narrate/internal/synth"
)

// RemoteConfig configures a Remote backend.
type RemoteConfig struct {
	Model string
	// Limit is the maximum chunk length in characters.
	Limit int
	// Decode turns response bytes into a clip. Defaults to audio.DecodeMP3.
	Decode func([]byte) (*audio.Clip, error)
}

// Remote narrates by synthesizing the article chunk by chunk on a remote
// API and playing each chunk before requesting the next.
type Remote struct {
	synth  synth.Synthesizer
	out    audio.Output
	cfg    RemoteConfig
	logger *log.Logger
	unit   unit

	mu     sync.Mutex
	paused bool
}

// NewRemote creates a remote backend.
func NewRemote(s synth.Synthesizer, out audio.Output, cfg RemoteConfig, logger *log.Logger) *Remote {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = chunk.RemoteLimit
	}
	if cfg.Decode == nil {
		cfg.Decode = audio.DecodeMP3
	}
	return &Remote{synth: s, out: out, cfg: cfg, logger: logger}
}

// Kind implements narration.Backend.
func (r *Remote) Kind() narration.BackendKind { return narration.BackendRemote }

// Narrate implements narration.Backend.
func (r *Remote) Narrate(ctx context.Context, req narration.Request, onPhase func(narration.Phase)) <-chan narration.Outcome {
	chunks := chunk.Split(req.Article.CombinedText(), r.cfg.Limit)

	return r.unit.start(ctx, func(ctx context.Context) narration.Outcome {
		for i, text := range chunks {
			if ctx.Err() != nil {
				return narration.Cancelled()
			}
			if onPhase != nil {
				onPhase(narration.Phase{Kind: narration.PhaseChunk, Chunk: i + 1, Chunks: len(chunks)})
			}

			sreq := synth.Request{
				Text:  text,
				Model: r.cfg.Model,
				Voice: req.Voice,
				Speed: req.Rate,
			}
			data, err := r.synth.Synthesize(ctx, sreq)
			if ctx.Err() != nil {
				return narration.Cancelled()
			}
			if err != nil {
				return narration.Failed(asKind(err, narration.KindNetworkOrAPI, fmt.Sprintf("chunk %d/%d", i+1, len(chunks))))
			}

			clip, err := r.cfg.Decode(data)
			if err != nil {
				if f, ok := r.synth.(synth.Forgetter); ok {
					f.Forget(sreq)
				}
				return narration.Failed(narration.NewError(narration.KindDecode, fmt.Sprintf("decode chunk %d/%d", i+1, len(chunks)), err))
			}

			if err := r.out.Play(ctx, clip); err != nil {
				if ctx.Err() != nil {
					return narration.Cancelled()
				}
				return narration.Failed(narration.NewError(narration.KindDecode, fmt.Sprintf("play chunk %d/%d", i+1, len(chunks)), err))
			}
		}
		return narration.Succeeded()
	})
}

// asKind makes sure err carries a narration kind.
func asKind(err error, kind narration.ErrorKind, message string) error {
	var ne *narration.Error
	if errors.As(err, &ne) {
		return err
	}
	return narration.NewError(kind, message, err)
}

// Pause suspends the audio device as a whole.
func (r *Remote) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.out.Suspend(); err != nil {
		return err
	}
	r.paused = true
	return nil
}

// Resume implements narration.Backend.
func (r *Remote) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.out.Resume(); err != nil {
		return err
	}
	r.paused = false
	return nil
}

// Cancel stops narration. A suspended device is resumed so the next
// narration is audible.
func (r *Remote) Cancel() {
	r.unit.stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		if err := r.out.Resume(); err != nil {
			r.logger.Debug("resume audio after cancel", "err", err)
		}
		r.paused = false
	}
}

// Close cancels any narration and releases the audio device.
func (r *Remote) Close() error {
	r.Cancel()
	r.unit.wait()
	return r.out.Close()
}

var _ narration.Backend = (*Remote)(nil)
