package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// Common errors
var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("audio output closed")

	// ErrFormatMismatch is returned when a clip does not match the format
	// the output was opened with.
	ErrFormatMismatch = errors.New("clip format does not match audio device")
)

// Output plays clips one at a time. Suspend and Resume act on the whole
// device, including a clip that has not started yet.
type Output interface {
	// Play blocks until the clip finished or ctx is done.
	Play(ctx context.Context, clip *Clip) error
	Suspend() error
	Resume() error
	Close() error
}

// pollInterval is how often playback completion is checked.
const pollInterval = 10 * time.Millisecond

// OtoOutput plays through an oto context. The context is created lazily from
// the first clip's format because oto allows only one per process.
type OtoOutput struct {
	logger *log.Logger

	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
	suspended  bool
	closed     bool
	player     *oto.Player
}

// NewOtoOutput creates an output. No audio device is opened until the first
// call to Play.
func NewOtoOutput(logger *log.Logger) *OtoOutput {
	if logger == nil {
		logger = log.Default()
	}
	return &OtoOutput{logger: logger}
}

func (o *OtoOutput) ensureContext(clip *Clip) (*oto.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	if o.ctx != nil {
		if clip.SampleRate != o.sampleRate || clip.Channels != o.channels {
			return nil, fmt.Errorf("%w: got %dHz/%dch, device is %dHz/%dch",
				ErrFormatMismatch, clip.SampleRate, clip.Channels, o.sampleRate, o.channels)
		}
		return o.ctx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   clip.SampleRate,
		ChannelCount: clip.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	o.ctx = ctx
	o.sampleRate = clip.SampleRate
	o.channels = clip.Channels
	o.logger.Debug("audio context ready", "sampleRate", clip.SampleRate, "channels", clip.Channels)

	if o.suspended {
		if err := ctx.Suspend(); err != nil {
			o.logger.Warn("failed to suspend new audio context", "err", err)
		}
	}
	return ctx, nil
}

// Play implements Output.
func (o *OtoOutput) Play(ctx context.Context, clip *Clip) error {
	if clip == nil || len(clip.PCM) == 0 {
		return nil
	}
	octx, err := o.ensureContext(clip)
	if err != nil {
		return err
	}

	// The reader keeps clip.PCM alive for the lifetime of the player.
	p := octx.NewPlayer(bytes.NewReader(clip.PCM))
	o.mu.Lock()
	o.player = p
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		if o.player == p {
			o.player = nil
		}
		o.mu.Unlock()
		_ = p.Close()
	}()

	p.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-ticker.C:
			if err := p.Err(); err != nil {
				return fmt.Errorf("playback failed: %w", err)
			}
			if !p.IsPlaying() {
				return nil
			}
		}
	}
}

// Suspend pauses the whole device.
func (o *OtoOutput) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.suspended = true
	if o.ctx == nil {
		return nil
	}
	return o.ctx.Suspend()
}

// Resume undoes Suspend.
func (o *OtoOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.suspended = false
	if o.ctx == nil {
		return nil
	}
	return o.ctx.Resume()
}

// Close stops any player. The oto context itself cannot be released.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	if o.player != nil {
		o.player.Pause()
	}
	return nil
}

var _ Output = (*OtoOutput)(nil)
