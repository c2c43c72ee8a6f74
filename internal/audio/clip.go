// Package audio decodes synthesized speech and plays it through the
// platform audio device.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Decoded audio is always signed 16-bit little endian.
const bytesPerSample = 2

// ErrDecode indicates audio bytes could not be decoded.
var ErrDecode = errors.New("audio decode failed")

// Clip is decoded PCM audio ready for playback.
type Clip struct {
	SampleRate int
	Channels   int
	// PCM holds interleaved signed 16-bit little endian samples. It must
	// stay reachable for as long as a player reads from it.
	PCM []byte
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (bytesPerSample * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// DecodeMP3 decodes a complete MP3 stream into a stereo Clip. The whole
// stream is decoded up front so that corrupt data fails here rather than
// part way through playback.
func DecodeMP3(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecode)
	}

	return &Clip{
		SampleRate: d.SampleRate(),
		Channels:   2,
		PCM:        pcm,
	}, nil
}
