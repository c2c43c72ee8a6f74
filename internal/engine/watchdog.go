package engine

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultWatchdogInterval is how often the watchdog nudges the host
// synthesizer. Some synthesizers silently stop after about fifteen seconds
// of continuous speech; a pause/resume cycle inside that window prevents it.
const DefaultWatchdogInterval = 10 * time.Second

// Ticker is the part of time.Ticker the watchdog uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker returns a Ticker backed by time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Pausable is a synthesizer the watchdog can nudge.
type Pausable interface {
	Pause() error
	Resume() error
}

// Watchdog periodically pauses and resumes a target while armed.
type Watchdog struct {
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	logger    *log.Logger

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	cycles int
}

// NewWatchdog creates a disarmed watchdog. newTicker may be nil.
func NewWatchdog(interval time.Duration, newTicker func(time.Duration) Ticker, logger *log.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	if newTicker == nil {
		newTicker = NewTicker
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Watchdog{interval: interval, newTicker: newTicker, logger: logger}
}

// Arm starts nudging target, replacing any previous target.
func (w *Watchdog) Arm(target Pausable) {
	w.Disarm()

	w.mu.Lock()
	defer w.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	w.stop, w.done = stop, done
	t := w.newTicker(w.interval)

	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				// A disarm racing with the tick wins.
				select {
				case <-stop:
					return
				default:
				}
				if err := target.Pause(); err != nil {
					w.logger.Debug("watchdog pause", "err", err)
					continue
				}
				if err := target.Resume(); err != nil {
					w.logger.Debug("watchdog resume", "err", err)
				}
				w.mu.Lock()
				w.cycles++
				w.mu.Unlock()
			}
		}
	}()
}

// Disarm stops the watchdog and waits until no cycle is in progress.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Armed reports whether the watchdog is running.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop != nil
}

// Cycles returns the number of completed pause/resume cycles.
func (w *Watchdog) Cycles() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cycles
}
