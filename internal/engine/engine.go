// Package engine is the narration queue and playback state machine. It owns
// the queue and the current-item pointer, drives the device or remote
// backend, falls back to on-device narration when the remote backend fails,
// and keeps long on-device narration alive with a watchdog.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dgnsrekt/narrate/internal/normalize"
	"github.com/dgnsrekt/narrate/internal/settings"
)

// EntryStore records finished articles.
type EntryStore interface {
	MarkAsListened(ctx context.Context, id string) error
}

// InterestUpdater learns from what gets queued.
type InterestUpdater interface {
	UpdateInterest(ctx context.Context, a narration.Article) error
}

// ConfigSource supplies the engine configuration.
type ConfigSource interface {
	Load(ctx context.Context) (settings.EngineConfig, error)
}

// Options configures an Engine. Device is required. A nil Remote means no
// remote credential is configured.
type Options struct {
	Device    narration.Backend
	Remote    narration.Backend
	Config    ConfigSource
	Store     EntryStore
	Interests InterestUpdater
	Signals   *Signals
	Logger    *log.Logger

	// Normalize cleans entry text. Defaults to normalize.Text.
	Normalize func(string) string

	WatchdogInterval time.Duration
	NewTicker        func(time.Duration) Ticker

	// StoreTimeout bounds MarkAsListened and UpdateInterest calls.
	StoreTimeout time.Duration
}

const defaultStoreTimeout = 10 * time.Second

// Snapshot is a consistent view of the engine state.
type Snapshot struct {
	Queue        []narration.Article
	CurrentIndex int
	State        narration.State
	Phase        narration.Phase
	Backend      narration.BackendKind
}

// Current returns the current article, if any.
func (s Snapshot) Current() (narration.Article, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return narration.Article{}, false
	}
	return s.Queue[s.CurrentIndex], true
}

// Engine is the playback state machine. All methods are safe for
// concurrent use. Subscribers are called synchronously after each change
// and may call getters, but must not call mutating methods from the
// callback.
type Engine struct {
	device    narration.Backend
	remote    narration.Backend
	config    ConfigSource
	store     EntryStore
	interests InterestUpdater
	signals   *Signals
	logger    *log.Logger
	normalize func(string) string
	timeout   time.Duration

	notifier *Notifier
	watchdog *Watchdog

	ctx    context.Context
	cancel context.CancelFunc

	// notifyMu is taken before mu is released, so notifications are
	// delivered in mutation order.
	notifyMu sync.Mutex

	mu          sync.Mutex
	queue       []narration.Article
	current     int
	lastIndex   int
	playing     bool
	paused      bool
	phase       narration.Phase
	active      narration.Backend
	gen         uint64
	localOnly   bool
	closed      bool
	pending     []signal
	interestsWG sync.WaitGroup
}

// New creates a stopped engine with an empty queue.
func New(opts Options) *Engine {
	if opts.Device == nil {
		panic("engine: a device backend is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Config == nil {
		opts.Config = settings.Static(settings.Default())
	}
	if opts.Signals == nil {
		opts.Signals = NewSignals()
	}
	if opts.Normalize == nil {
		opts.Normalize = normalize.Text
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		device:    opts.Device,
		remote:    opts.Remote,
		config:    opts.Config,
		store:     opts.Store,
		interests: opts.Interests,
		signals:   opts.Signals,
		logger:    opts.Logger,
		normalize: opts.Normalize,
		timeout:   opts.StoreTimeout,
		notifier:  NewNotifier(),
		watchdog:  NewWatchdog(opts.WatchdogInterval, opts.NewTicker, opts.Logger),
		ctx:       ctx,
		cancel:    cancel,
		current:   -1,
		lastIndex: -1,
	}
}

// Subscribe registers fn to be called after every state change.
func (e *Engine) Subscribe(fn func()) (unsubscribe func()) {
	return e.notifier.Subscribe(fn)
}

// Signals returns the engine's signal bus.
func (e *Engine) Signals() *Signals { return e.signals }

// Watchdog returns the keep-alive watchdog.
func (e *Engine) Watchdog() *Watchdog { return e.watchdog }

// unlockAndNotify releases mu, publishes queued signals and then notifies
// subscribers, so a subscriber that sees the final state has already seen
// every signal that led to it. Must be called with mu held.
func (e *Engine) unlockAndNotify() {
	e.release(true)
}

// unlockAndPublish is unlockAndNotify for calls that changed nothing.
func (e *Engine) unlockAndPublish() {
	e.release(false)
}

func (e *Engine) release(notify bool) {
	sigs := e.pending
	e.pending = nil
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	for _, s := range sigs {
		e.signals.publish(s)
	}
	if notify {
		e.notifier.Notify()
	}
}

func (e *Engine) emit(topic string, args ...any) {
	e.pending = append(e.pending, signal{topic: topic, args: args})
}

// Enqueue normalizes entry and appends it to the queue. An entry whose id
// is already queued is rejected with a duplicate signal. If the engine is
// stopped, the new article starts playing at once.
func (e *Engine) Enqueue(entry narration.Entry) {
	a := narration.Article{
		ID:      entry.ID,
		Title:   strings.TrimSpace(entry.Title),
		Source:  strings.TrimSpace(entry.Source),
		Summary: e.normalize(entry.Summary),
		Content: e.normalize(entry.Content),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	for _, q := range e.queue {
		if q.ID == a.ID {
			e.logger.Debug("rejected duplicate", "id", a.ID)
			e.emit(TopicDuplicate, a.ID)
			e.unlockAndPublish()
			return
		}
	}

	e.queue = append(e.queue, a)
	if !e.playing && !e.paused {
		e.current = len(e.queue) - 1
		e.startLocked()
	}
	e.updateInterest(a)
	e.unlockAndNotify()
}

// EnqueueAll enqueues entries in order.
func (e *Engine) EnqueueAll(entries []narration.Entry) {
	for _, en := range entries {
		e.Enqueue(en)
	}
}

func (e *Engine) updateInterest(a narration.Article) {
	if e.interests == nil {
		return
	}
	e.interestsWG.Add(1)
	go func() {
		defer e.interestsWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.interests.UpdateInterest(ctx, a); err != nil {
			e.logger.Warn("failed to update interest", "id", a.ID, "source", a.Source, "err", err)
		}
	}()
}

// TogglePlayPause starts playback when stopped, pauses when playing and
// resumes when paused. It does nothing on an empty queue.
func (e *Engine) TogglePlayPause() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	switch {
	case e.paused:
		if err := e.active.Resume(); err != nil {
			e.logger.Warn("failed to resume", "backend", e.active.Kind(), "err", err)
		}
		e.paused = false
		e.playing = true
		if e.active.Kind() == narration.BackendDevice {
			e.watchdog.Arm(e.active)
		}
	case e.playing:
		e.watchdog.Disarm()
		if err := e.active.Pause(); err != nil {
			e.logger.Warn("failed to pause", "backend", e.active.Kind(), "err", err)
		}
		e.playing = false
		e.paused = true
	default:
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		e.current = e.lastIndex
		if e.current < 0 || e.current >= len(e.queue) {
			e.current = 0
		}
		e.startLocked()
	}
	e.unlockAndNotify()
}

// SkipNext abandons the current article, removes it from the queue and
// plays the one that takes its place. It does nothing while stopped.
func (e *Engine) SkipNext() {
	e.mu.Lock()
	if e.closed || e.current < 0 || len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	e.cancelActiveLocked()
	e.removeCurrentLocked()
	e.continueLocked()
	e.unlockAndNotify()
}

// SkipPrevious abandons the current article, leaving it queued, and plays
// the one before it. It does nothing at the head of the queue.
func (e *Engine) SkipPrevious() {
	e.mu.Lock()
	if e.closed || e.current <= 0 {
		e.mu.Unlock()
		return
	}
	e.cancelActiveLocked()
	e.current--
	e.startLocked()
	e.unlockAndNotify()
}

// Stop cancels narration and leaves the queue intact.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.playing && !e.paused {
		e.mu.Unlock()
		return
	}
	e.cancelActiveLocked()
	e.stopLocked()
	e.unlockAndNotify()
}

// ClearQueue cancels narration and empties the queue.
func (e *Engine) ClearQueue() {
	e.mu.Lock()
	e.cancelActiveLocked()
	e.stopLocked()
	e.queue = nil
	e.lastIndex = -1
	e.unlockAndNotify()
}

// Close stops narration, closes both backends and waits for background
// interest updates. The engine cannot be used afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancelActiveLocked()
	e.stopLocked()
	e.unlockAndNotify()

	e.cancel()
	e.interestsWG.Wait()

	var errs []error
	errs = append(errs, e.device.Close())
	if e.remote != nil {
		errs = append(errs, e.remote.Close())
	}
	return errors.Join(errs...)
}

// cancelActiveLocked stops the active unit and makes sure its outcome is
// ignored.
func (e *Engine) cancelActiveLocked() {
	e.gen++
	e.watchdog.Disarm()
	if e.active != nil {
		e.active.Cancel()
	}
}

func (e *Engine) stopLocked() {
	e.watchdog.Disarm()
	if e.current >= 0 {
		e.lastIndex = e.current
	}
	e.current = -1
	e.playing = false
	e.paused = false
	e.phase = narration.Phase{}
	e.active = nil
}

func (e *Engine) removeCurrentLocked() {
	e.queue = append(e.queue[:e.current], e.queue[e.current+1:]...)
}

// continueLocked plays the article now at the current index, clamped into
// the queue, or stops if the queue is empty.
func (e *Engine) continueLocked() {
	if len(e.queue) == 0 {
		e.stopLocked()
		e.lastIndex = -1
		return
	}
	if e.current >= len(e.queue) {
		e.current = len(e.queue) - 1
	}
	e.startLocked()
}

// startLocked narrates queue[current] with the configured backend.
func (e *Engine) startLocked() {
	a := e.queue[e.current]

	cfg, err := e.config.Load(e.ctx)
	if err != nil {
		e.logger.Warn("failed to load settings, using defaults", "err", err)
		cfg = settings.Default()
	}

	if cfg.Backend == narration.BackendRemote && !e.localOnly {
		if e.remote != nil {
			e.launchLocked(e.remote, narration.Request{Article: a, Voice: cfg.RemoteVoice, Rate: cfg.RemoteSpeed})
			return
		}
		e.localOnly = true
		e.logger.Debug("remote backend has no credential, narrating on device for this session")
	}
	e.launchLocked(e.device, narration.Request{Article: a, Voice: cfg.DeviceVoiceID, Rate: cfg.DeviceRate})
}

func (e *Engine) launchLocked(b narration.Backend, req narration.Request) {
	e.gen++
	gen := e.gen

	e.active = b
	e.playing = true
	e.paused = false
	e.phase = narration.Phase{}

	if b.Kind() == narration.BackendDevice {
		e.watchdog.Arm(b)
	} else {
		e.watchdog.Disarm()
	}

	e.logger.Debug("narrating", "id", req.Article.ID, "backend", b.Kind())
	ch := b.Narrate(e.ctx, req, func(p narration.Phase) { e.setPhase(gen, p) })
	go e.await(gen, b, req, ch)
}

func (e *Engine) setPhase(gen uint64, p narration.Phase) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.phase = p
	e.unlockAndNotify()
}

// await handles the outcome of one unit.
func (e *Engine) await(gen uint64, b narration.Backend, req narration.Request, ch <-chan narration.Outcome) {
	o := <-ch
	a := req.Article

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	held := e.paused

	switch {
	case o.Status == narration.StatusSuccess:
		e.releaseLocked(b, held)
		e.removeCurrentLocked()
		e.continueLocked()
		e.holdLocked(held)
		e.emit(TopicListened, a.ID)
		e.unlockAndNotify()
		e.markAsListened(a.ID)
		return

	case o.Status == narration.StatusCancelled,
		narration.KindOf(o.Err) == narration.KindBenignInterruption:
		e.logger.Debug("narration interrupted", "id", a.ID)
		e.mu.Unlock()
		return

	case b.Kind() == narration.BackendRemote:
		// The remote unit is over, but a pause may have left its output
		// suspended.
		b.Cancel()
		kind := narration.KindOf(o.Err)
		if kind == narration.KindConfigurationMissing {
			e.localOnly = true
			e.logger.Debug("remote backend unavailable, narrating on device for this session", "err", o.Err)
		} else {
			e.logger.Warn("remote narration failed, restarting on device", "id", a.ID, "kind", kind, "err", o.Err)
			e.emit(TopicFallback, a.ID, o.Err.Error())
		}
		cfg, err := e.config.Load(e.ctx)
		if err != nil {
			cfg = settings.Default()
		}
		e.launchLocked(e.device, narration.Request{Article: a, Voice: cfg.DeviceVoiceID, Rate: cfg.DeviceRate})
		e.holdLocked(held)
		e.unlockAndNotify()
		return

	default:
		e.logger.Warn("narration failed, dropping article", "id", a.ID, "backend", b.Kind(), "err", o.Err)
		e.releaseLocked(b, held)
		e.removeCurrentLocked()
		e.continueLocked()
		e.holdLocked(held)
		reason := "unknown error"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		e.emit(TopicDropped, a.ID, reason)
		e.unlockAndNotify()
	}
}

// releaseLocked clears a pause left on b by a unit that ended on its own.
func (e *Engine) releaseLocked(b narration.Backend, held bool) {
	if held {
		b.Cancel()
	}
}

// holdLocked keeps the user's pause across a transition the user did not
// ask for: the unit that just started is paused before it is heard.
func (e *Engine) holdLocked(held bool) {
	if !held || e.active == nil || !e.playing {
		return
	}
	e.watchdog.Disarm()
	if err := e.active.Pause(); err != nil {
		e.logger.Warn("failed to pause", "backend", e.active.Kind(), "err", err)
	}
	e.playing = false
	e.paused = true
}

func (e *Engine) markAsListened(id string) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.store.MarkAsListened(ctx, id); err != nil {
		e.logger.Warn("failed to mark as listened", "id", id, "err", err)
	}
}

// Queue returns a copy of the queue.
func (e *Engine) Queue() []narration.Article {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]narration.Article(nil), e.queue...)
}

// Len returns the queue length.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Current returns the article being narrated or paused.
func (e *Engine) Current() (narration.Article, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current < 0 {
		return narration.Article{}, false
	}
	return e.queue[e.current], true
}

// CurrentIndex returns the index of the current article, or -1 when
// stopped.
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// IsPlaying reports whether narration is running.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// IsPaused reports whether narration is paused.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// State returns the playback state.
func (e *Engine) State() narration.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() narration.State {
	switch {
	case e.playing:
		return narration.StatePlaying
	case e.paused:
		return narration.StatePaused
	default:
		return narration.StateStopped
	}
}

// HasNext reports whether an article follows the current one.
func (e *Engine) HasNext() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current >= 0 && e.current < len(e.queue)-1
}

// HasPrevious reports whether SkipPrevious would do anything.
func (e *Engine) HasPrevious() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current > 0
}

// Phase returns where narration is within the current article.
func (e *Engine) Phase() narration.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// ActiveBackend returns the kind of backend narrating, or "" when stopped.
func (e *Engine) ActiveBackend() narration.BackendKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ""
	}
	return e.active.Kind()
}

// Snapshot returns the whole state at once.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		Queue:        append([]narration.Article(nil), e.queue...),
		CurrentIndex: e.current,
		State:        e.stateLocked(),
		Phase:        e.phase,
	}
	if e.active != nil {
		s.Backend = e.active.Kind()
	}
	return s
}
