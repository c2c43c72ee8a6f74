// Package narration contains the shared types for the narration engine and
// its backends. It exists so that engine, backend, speech and synth can talk
// about articles and outcomes without importing each other.
package narration

import (
	"context"
	"fmt"
	"strings"
)

// Entry is an article as handed to the engine by a caller. Content may still
// contain HTML or Markdown.
type Entry struct {
	ID      string
	Title   string
	Source  string
	Summary string
	Content string
}

// Article is a queued, normalized entry. It is never mutated after creation.
type Article struct {
	ID      string
	Title   string
	Source  string
	Summary string
	Content string
}

// Intro returns the sentence spoken before an article.
func (a Article) Intro() string {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		title = "Untitled article"
	}
	if src := strings.TrimSpace(a.Source); src != "" {
		return fmt.Sprintf("Now playing: %s, from %s.", title, src)
	}
	return fmt.Sprintf("Now playing: %s.", title)
}

// SummarySentence returns the spoken summary, or "" when there is none.
func (a Article) SummarySentence() string {
	s := strings.TrimSpace(a.Summary)
	if s == "" {
		return ""
	}
	return "Summary: " + s
}

// CombinedText joins intro, summary and content the way the remote backend
// narrates them.
func (a Article) CombinedText() string {
	parts := []string{a.Intro()}
	if s := a.SummarySentence(); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(a.Content); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, " ")
}

// State is the playback state of the engine.
type State int

const (
	// StateStopped means nothing is being narrated.
	StateStopped State = iota
	// StatePlaying means an active unit is running.
	StatePlaying
	// StatePaused means the active unit is suspended.
	StatePaused
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// PhaseKind is the sub-phase of narration while playing.
type PhaseKind int

const (
	PhaseNone PhaseKind = iota
	PhaseIntro
	PhaseSummary
	PhaseContent
	PhaseChunk
)

// Phase describes where inside an article narration currently is. Chunk and
// Chunks are only set for PhaseChunk and are 1-based.
type Phase struct {
	Kind   PhaseKind
	Chunk  int
	Chunks int
}

func (p Phase) String() string {
	switch p.Kind {
	case PhaseIntro:
		return "intro"
	case PhaseSummary:
		return "summary"
	case PhaseContent:
		return "content"
	case PhaseChunk:
		return fmt.Sprintf("chunk %d/%d", p.Chunk, p.Chunks)
	default:
		return ""
	}
}

// BackendKind selects a narration strategy.
type BackendKind string

const (
	// BackendDevice narrates with the host speech synthesizer.
	BackendDevice BackendKind = "device"
	// BackendRemote narrates with a remote synthesis API.
	BackendRemote BackendKind = "remote"
)

// ParseBackendKind parses a backend name, accepting a few aliases.
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "device", "ondevice", "on-device", "local":
		return BackendDevice, nil
	case "remote", "api", "cloud":
		return BackendRemote, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want device or remote)", s)
	}
}

// Request is one narration job handed to a backend.
type Request struct {
	Article Article
	Voice   string
	// Rate is a speaking-rate multiplier. 1.0 is the voice's natural rate.
	Rate float64
}

// Status tags an Outcome.
type Status int

const (
	StatusSuccess Status = iota
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of an active unit.
type Outcome struct {
	Status Status
	Err    error
}

// Succeeded returns a success outcome.
func Succeeded() Outcome { return Outcome{Status: StatusSuccess} }

// Cancelled returns a cancellation outcome.
func Cancelled() Outcome { return Outcome{Status: StatusCancelled} }

// Failed returns a failure outcome carrying err.
func Failed(err error) Outcome { return Outcome{Status: StatusFailed, Err: err} }

// Backend is the capability every narration strategy provides. Narrate
// starts narrating the request and returns a channel that receives exactly
// one Outcome. onPhase, when non-nil, is called from the backend goroutine as
// narration moves between phases. Cancel must make a running Narrate deliver
// a Cancelled outcome.
type Backend interface {
	Kind() BackendKind
	Narrate(ctx context.Context, req Request, onPhase func(Phase)) <-chan Outcome
	Pause() error
	Resume() error
	Cancel()
	Close() error
}
