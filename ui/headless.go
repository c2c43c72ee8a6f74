package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dgnsrekt/narrate/internal/engine"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/mattn/go-runewidth"
)

// StatusLine describes a snapshot in one plain line.
func StatusLine(s engine.Snapshot) string {
	parts := []string{stateIcon(s.State) + " " + s.State.String()}
	if a, ok := s.Current(); ok {
		title := a.Title
		if a.Source != "" {
			title += " (" + a.Source + ")"
		}
		parts = append(parts, title)
		if s.State != narration.StateStopped {
			if p := s.Phase.String(); p != "" {
				parts = append(parts, p)
			}
			if s.Backend != "" {
				parts = append(parts, string(s.Backend))
			}
		}
	}
	if n := len(s.Queue); n > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", n))
	}
	return strings.Join(parts, " · ")
}

// Headless reports playback as plain lines, for when there is no terminal
// to draw on.
type Headless struct {
	// Follow keeps Run going after the queue drains, until ctx is done.
	Follow bool

	w     io.Writer
	width int

	mu     sync.Mutex
	last   string
	titles map[string]string
}

// NewHeadless writes to w, truncating lines to width when width > 0.
func NewHeadless(w io.Writer, width int) *Headless {
	return &Headless{w: w, width: width, titles: map[string]string{}}
}

func (h *Headless) println(line string) {
	if h.width > 0 {
		line = runewidth.Truncate(line, h.width, ellipsis)
	}
	_, _ = fmt.Fprintln(h.w, line)
}

func (h *Headless) update(s engine.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range s.Queue {
		h.titles[a.ID] = a.Title
	}
	line := StatusLine(s)
	if line == h.last {
		return
	}
	h.last = line
	h.println(line)
}

func (h *Headless) signal(prefix, id, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	title := h.titles[id]
	if title == "" {
		title = id
	}
	line := prefix + " " + title
	if reason != "" {
		line += ": " + reason
	}
	h.println(line)
}

func (h *Headless) attach(sig *engine.Signals) (func(), error) {
	if sig == nil {
		return func() {}, nil
	}
	var unsubs []func()
	detach := func() {
		for _, u := range unsubs {
			u()
		}
	}
	hooks := []func() (func(), error){
		func() (func(), error) {
			return sig.OnDuplicate(func(id string) { h.signal("= already queued:", id, "") })
		},
		func() (func(), error) {
			return sig.OnListened(func(id string) { h.signal("✓ finished:", id, "") })
		},
		func() (func(), error) {
			return sig.OnFallback(func(id, _ string) { h.signal("↺ remote failed, narrating on device:", id, "") })
		},
		func() (func(), error) {
			return sig.OnDropped(func(id, reason string) { h.signal("✗ skipped", id, reason) })
		},
	}
	for _, hook := range hooks {
		u, err := hook()
		if err != nil {
			detach()
			return nil, fmt.Errorf("unable to subscribe to signals: %w", err)
		}
		unsubs = append(unsubs, u)
	}
	return detach, nil
}

// Run calls start and reports until the queue has played out or ctx is
// done. With Follow set only ctx ends it.
func (h *Headless) Run(ctx context.Context, p Player, sig *engine.Signals, start func()) error {
	finished := make(chan struct{})
	var once sync.Once
	check := func(s engine.Snapshot) {
		if h.Follow {
			return
		}
		if s.State == narration.StateStopped && len(s.Queue) == 0 {
			once.Do(func() { close(finished) })
		}
	}

	var started bool
	var startedMu sync.Mutex
	unsubscribe := p.Subscribe(func() {
		s := p.Snapshot()
		h.update(s)
		startedMu.Lock()
		ok := started
		startedMu.Unlock()
		if ok {
			check(s)
		}
	})
	defer unsubscribe()

	detach, err := h.attach(sig)
	if err != nil {
		return err
	}
	defer detach()

	if start != nil {
		start()
	}
	startedMu.Lock()
	started = true
	startedMu.Unlock()

	s := p.Snapshot()
	h.update(s)
	check(s)

	select {
	case <-finished:
	case <-ctx.Done():
	}
	return nil
}
