package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dgnsrekt/narrate/internal/settings"
)

// fakeBackend narrates nothing. Each Narrate stays pending until the test
// calls finish, or until Cancel delivers cancelOutcome.
type fakeBackend struct {
	kind narration.BackendKind

	mu            sync.Mutex
	reqs          []narration.Request
	current       chan narration.Outcome
	onPhase       func(narration.Phase)
	pauses        int
	resumes       int
	cancels       int
	cancelOutcome narration.Outcome
	started       chan narration.Request
}

func newFakeBackend(kind narration.BackendKind) *fakeBackend {
	return &fakeBackend{
		kind:          kind,
		cancelOutcome: narration.Cancelled(),
		started:       make(chan narration.Request, 64),
	}
}

func (f *fakeBackend) Kind() narration.BackendKind { return f.kind }

func (f *fakeBackend) Narrate(_ context.Context, req narration.Request, onPhase func(narration.Phase)) <-chan narration.Outcome {
	ch := make(chan narration.Outcome, 1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.current = ch
	f.onPhase = onPhase
	f.mu.Unlock()
	f.started <- req
	return ch
}

func (f *fakeBackend) finish(o narration.Outcome) {
	f.mu.Lock()
	ch := f.current
	f.current = nil
	f.mu.Unlock()
	if ch != nil {
		ch <- o
	}
}

func (f *fakeBackend) phase(p narration.Phase) {
	f.mu.Lock()
	fn := f.onPhase
	f.mu.Unlock()
	fn(p)
}

func (f *fakeBackend) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeBackend) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return nil
}

func (f *fakeBackend) Cancel() {
	f.mu.Lock()
	f.cancels++
	ch := f.current
	f.current = nil
	o := f.cancelOutcome
	f.mu.Unlock()
	if ch != nil {
		ch <- o
	}
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) counts() (pauses, resumes, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses, f.resumes, f.cancels
}

func (f *fakeBackend) requests() []narration.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]narration.Request(nil), f.reqs...)
}

type fakeStore struct {
	mu     sync.Mutex
	ids    []string
	marked chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{marked: make(chan string, 16)}
}

func (s *fakeStore) MarkAsListened(_ context.Context, id string) error {
	s.mu.Lock()
	s.ids = append(s.ids, id)
	s.mu.Unlock()
	s.marked <- id
	return nil
}

func (s *fakeStore) listened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type fakeInterests struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeInterests) UpdateInterest(_ context.Context, a narration.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, a.ID)
	return nil
}

type fakeTicker struct{ c chan time.Time }

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               {}

type tickers struct {
	mu   sync.Mutex
	list []*fakeTicker
}

func (ts *tickers) new(time.Duration) Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	ts.list = append(ts.list, t)
	return t
}

func (ts *tickers) last() *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.list[len(ts.list)-1]
}

type harness struct {
	engine    *Engine
	device    *fakeBackend
	remote    *fakeBackend
	store     *fakeStore
	interests *fakeInterests
	tickers   *tickers
}

func newHarness(t *testing.T, cfg settings.EngineConfig, withRemote bool) *harness {
	t.Helper()
	h := &harness{
		device:    newFakeBackend(narration.BackendDevice),
		store:     newFakeStore(),
		interests: &fakeInterests{},
		tickers:   &tickers{},
	}
	opts := Options{
		Device:    h.device,
		Config:    settings.Static(cfg),
		Store:     h.store,
		Interests: h.interests,
		Logger:    log.New(io.Discard),
		Normalize: strings.TrimSpace,
		NewTicker: h.tickers.new,
	}
	if withRemote {
		h.remote = newFakeBackend(narration.BackendRemote)
		opts.Remote = h.remote
	}
	h.engine = New(opts)
	t.Cleanup(func() { _ = h.engine.Close() })
	return h
}

func deviceConfig() settings.EngineConfig {
	cfg := settings.Default()
	cfg.DeviceVoiceID = "Samantha"
	cfg.DeviceRate = 1.2
	return cfg
}

func remoteConfig() settings.EngineConfig {
	cfg := deviceConfig()
	cfg.Backend = narration.BackendRemote
	cfg.RemoteVoice = "nova"
	cfg.RemoteSpeed = 1.5
	return cfg
}

func entry(id string) narration.Entry {
	return narration.Entry{
		ID:      id,
		Title:   "Title " + id,
		Source:  "Source",
		Content: "Body of " + id + ".",
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func expectStart(t *testing.T, b *fakeBackend, id string) narration.Request {
	t.Helper()
	select {
	case req := <-b.started:
		if req.Article.ID != id {
			t.Fatalf("%s backend started %q, want %q", b.kind, req.Article.ID, id)
		}
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("%s backend never started %q", b.kind, id)
		return narration.Request{}
	}
}

func expectNoStart(t *testing.T, b *fakeBackend) {
	t.Helper()
	select {
	case req := <-b.started:
		t.Fatalf("%s backend unexpectedly started %q", b.kind, req.Article.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func ids(articles []narration.Article) string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.ID
	}
	return strings.Join(out, ",")
}

func TestSingleArticleCompletes(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	req := expectStart(t, h.device, "a")
	if req.Voice != "Samantha" || req.Rate != 1.2 {
		t.Errorf("request voice/rate = %q/%v", req.Voice, req.Rate)
	}
	if e.State() != narration.StatePlaying || e.CurrentIndex() != 0 {
		t.Fatalf("state = %s index = %d", e.State(), e.CurrentIndex())
	}
	if e.ActiveBackend() != narration.BackendDevice {
		t.Errorf("active backend = %q", e.ActiveBackend())
	}

	h.device.finish(narration.Succeeded())

	select {
	case id := <-h.store.marked:
		if id != "a" {
			t.Errorf("marked %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("article never marked as listened")
	}
	waitFor(t, "stop", func() bool { return e.State() == narration.StateStopped })

	if e.Len() != 0 || e.CurrentIndex() != -1 {
		t.Errorf("len = %d index = %d", e.Len(), e.CurrentIndex())
	}
	if e.ActiveBackend() != "" {
		t.Errorf("active backend = %q after stop", e.ActiveBackend())
	}
	time.Sleep(20 * time.Millisecond)
	if got := h.store.listened(); len(got) != 1 {
		t.Errorf("listened = %v, want exactly one mark", got)
	}
}

func TestCompletionAdvancesQueue(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	var listened []string
	var mu sync.Mutex
	if _, err := e.Signals().OnListened(func(id string) {
		mu.Lock()
		listened = append(listened, id)
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	e.Enqueue(entry("a"))
	e.Enqueue(entry("b"))
	expectStart(t, h.device, "a")
	expectNoStart(t, h.device)

	h.device.finish(narration.Succeeded())
	expectStart(t, h.device, "b")
	if got := ids(e.Queue()); got != "b" {
		t.Errorf("queue = %s", got)
	}
	if e.CurrentIndex() != 0 {
		t.Errorf("index = %d", e.CurrentIndex())
	}

	h.device.finish(narration.Succeeded())
	waitFor(t, "stop", func() bool { return e.State() == narration.StateStopped })
	waitFor(t, "marks", func() bool { return len(h.store.listened()) == 2 })

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(listened, ",") != "a,b" {
		t.Errorf("listened signals = %v", listened)
	}
}

func TestDuplicateRejected(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	var dups []string
	if _, err := e.Signals().OnDuplicate(func(id string) { dups = append(dups, id) }); err != nil {
		t.Fatal(err)
	}

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")

	notified := 0
	e.Subscribe(func() { notified++ })

	e.Enqueue(entry("a"))
	if e.Len() != 1 {
		t.Errorf("len = %d, want 1", e.Len())
	}
	if len(dups) != 1 || dups[0] != "a" {
		t.Errorf("duplicate signals = %v", dups)
	}
	if notified != 0 {
		t.Errorf("rejection notified %d subscribers", notified)
	}
	expectNoStart(t, h.device)

	// A queued, not yet playing, id is a duplicate too.
	e.Enqueue(entry("b"))
	e.Enqueue(entry("b"))
	if got := ids(e.Queue()); got != "a,b" {
		t.Errorf("queue = %s", got)
	}
	if len(dups) != 2 {
		t.Errorf("duplicate signals = %v", dups)
	}
}

func TestSkipNext(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	for _, id := range []string{"a", "b", "c"} {
		e.Enqueue(entry(id))
	}
	expectStart(t, h.device, "a")

	e.SkipNext()
	expectStart(t, h.device, "b")

	if got := ids(e.Queue()); got != "b,c" {
		t.Errorf("queue = %s, want b,c", got)
	}
	if e.CurrentIndex() != 0 || !e.IsPlaying() {
		t.Errorf("index = %d playing = %v", e.CurrentIndex(), e.IsPlaying())
	}
	if _, _, cancels := h.device.counts(); cancels != 1 {
		t.Errorf("cancels = %d", cancels)
	}
	if got := h.store.listened(); len(got) != 0 {
		t.Errorf("skipped article marked listened: %v", got)
	}
}

func TestSkipNextAtEndStops(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	e.Enqueue(entry("b"))
	expectStart(t, h.device, "a")
	e.SkipNext()
	expectStart(t, h.device, "b")
	e.SkipNext()

	if e.State() != narration.StateStopped || e.Len() != 0 || e.CurrentIndex() != -1 {
		t.Errorf("state = %s len = %d index = %d", e.State(), e.Len(), e.CurrentIndex())
	}
}

func TestNoOps(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	notified := 0
	e.Subscribe(func() { notified++ })

	e.TogglePlayPause()
	e.SkipNext()
	e.SkipPrevious()
	e.Stop()
	if notified != 0 {
		t.Errorf("no-ops notified %d times", notified)
	}
	expectNoStart(t, h.device)

	// SkipNext while stopped leaves the queue alone.
	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	e.Stop()
	e.SkipNext()
	if e.Len() != 1 {
		t.Errorf("SkipNext while stopped removed an article")
	}

	// SkipPrevious at index 0.
	e.TogglePlayPause()
	expectStart(t, h.device, "a")
	_, _, before := h.device.counts()
	e.SkipPrevious()
	if _, _, after := h.device.counts(); after != before {
		t.Errorf("SkipPrevious at index 0 cancelled the unit")
	}
	if e.CurrentIndex() != 0 || !e.IsPlaying() {
		t.Errorf("index = %d playing = %v", e.CurrentIndex(), e.IsPlaying())
	}
}

func TestSkipPreviousKeepsArticle(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	e.Stop()

	e.Enqueue(entry("b"))
	expectStart(t, h.device, "b")
	if e.CurrentIndex() != 1 {
		t.Fatalf("index = %d, want 1", e.CurrentIndex())
	}
	if !e.HasPrevious() || e.HasNext() {
		t.Errorf("HasPrevious = %v HasNext = %v", e.HasPrevious(), e.HasNext())
	}

	e.SkipPrevious()
	expectStart(t, h.device, "a")
	if got := ids(e.Queue()); got != "a,b" {
		t.Errorf("queue = %s, want a,b", got)
	}
	if e.CurrentIndex() != 0 || !e.HasNext() {
		t.Errorf("index = %d HasNext = %v", e.CurrentIndex(), e.HasNext())
	}
	if got := h.store.listened(); len(got) != 0 {
		t.Errorf("SkipPrevious marked %v", got)
	}
}

func TestStopIsTransparent(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	var dropped []string
	if _, err := e.Signals().OnDropped(func(id, _ string) { dropped = append(dropped, id) }); err != nil {
		t.Fatal(err)
	}

	// A killed synthesizer may report the kill as an ordinary failure.
	h.device.cancelOutcome = narration.Failed(narration.NewError(narration.KindSynthesis, "signal: killed", nil))

	e.Enqueue(entry("a"))
	e.Enqueue(entry("b"))
	expectStart(t, h.device, "a")
	e.Stop()

	time.Sleep(20 * time.Millisecond)
	if got := ids(e.Queue()); got != "a,b" {
		t.Errorf("queue = %s, want a,b", got)
	}
	if e.State() != narration.StateStopped || e.CurrentIndex() != -1 {
		t.Errorf("state = %s index = %d", e.State(), e.CurrentIndex())
	}
	if len(dropped) != 0 {
		t.Errorf("stop dropped %v", dropped)
	}
	expectNoStart(t, h.device)

	e.TogglePlayPause()
	expectStart(t, h.device, "a")
}

func TestStopResumesAtStoppedArticle(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	e.Stop()
	e.Enqueue(entry("b"))
	expectStart(t, h.device, "b")
	e.Stop()

	e.TogglePlayPause()
	expectStart(t, h.device, "b")
	if e.CurrentIndex() != 1 {
		t.Errorf("index = %d, want 1", e.CurrentIndex())
	}
}

func TestGenuineErrorDropsArticle(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	var mu sync.Mutex
	var dropped []string
	if _, err := e.Signals().OnDropped(func(id, reason string) {
		mu.Lock()
		dropped = append(dropped, id+": "+reason)
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	e.Enqueue(entry("a"))
	e.Enqueue(entry("b"))
	expectStart(t, h.device, "a")

	h.device.finish(narration.Failed(errors.New("voice unavailable")))
	expectStart(t, h.device, "b")
	if got := ids(e.Queue()); got != "b" {
		t.Errorf("queue = %s", got)
	}

	h.device.finish(narration.Failed(errors.New("voice unavailable")))
	waitFor(t, "stop", func() bool { return e.State() == narration.StateStopped })
	if e.Len() != 0 {
		t.Errorf("len = %d", e.Len())
	}
	if got := h.store.listened(); len(got) != 0 {
		t.Errorf("dropped articles marked listened: %v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 2 || !strings.Contains(dropped[0], "voice unavailable") {
		t.Errorf("dropped signals = %v", dropped)
	}
}

func TestBenignInterruptionIgnored(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")

	h.device.finish(narration.Failed(narration.ErrInterrupted))
	time.Sleep(20 * time.Millisecond)

	if e.Len() != 1 || !e.IsPlaying() {
		t.Errorf("len = %d playing = %v", e.Len(), e.IsPlaying())
	}
	expectNoStart(t, h.device)
}

func TestRemoteFallback(t *testing.T) {
	h := newHarness(t, remoteConfig(), true)
	e := h.engine

	var mu sync.Mutex
	var fallbacks []string
	if _, err := e.Signals().OnFallback(func(id, _ string) {
		mu.Lock()
		fallbacks = append(fallbacks, id)
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	e.Enqueue(entry("a"))
	req := expectStart(t, h.remote, "a")
	if req.Voice != "nova" || req.Rate != 1.5 {
		t.Errorf("remote request voice/rate = %q/%v", req.Voice, req.Rate)
	}
	if e.ActiveBackend() != narration.BackendRemote {
		t.Errorf("active backend = %q", e.ActiveBackend())
	}

	h.remote.finish(narration.Failed(narration.NewError(narration.KindNetworkOrAPI, "proxy returned 500 Internal Server Error", nil)))
	req = expectStart(t, h.device, "a")
	if req.Voice != "Samantha" {
		t.Errorf("device request voice = %q", req.Voice)
	}
	if e.ActiveBackend() != narration.BackendDevice || e.Len() != 1 {
		t.Errorf("after fallback: backend = %q len = %d", e.ActiveBackend(), e.Len())
	}

	h.device.finish(narration.Succeeded())
	waitFor(t, "stop", func() bool { return e.State() == narration.StateStopped })
	waitFor(t, "mark", func() bool { return len(h.store.listened()) == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(fallbacks) != 1 || fallbacks[0] != "a" {
		t.Errorf("fallback signals = %v", fallbacks)
	}

	// The next article tries remote again.
	e.Enqueue(entry("b"))
	expectStart(t, h.remote, "b")
}

func TestDecodeFailureFallsBack(t *testing.T) {
	h := newHarness(t, remoteConfig(), true)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.remote, "a")
	h.remote.finish(narration.Failed(narration.NewError(narration.KindDecode, "decode chunk 1/1", nil)))
	expectStart(t, h.device, "a")
}

func TestMissingCredentialUsesDevice(t *testing.T) {
	h := newHarness(t, remoteConfig(), false)
	e := h.engine

	var fallbacks int
	if _, err := e.Signals().OnFallback(func(string, string) { fallbacks++ }); err != nil {
		t.Fatal(err)
	}

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	if fallbacks != 0 {
		t.Errorf("missing credential raised %d fallback signals", fallbacks)
	}
}

func TestConfigurationMissingIsSessionWide(t *testing.T) {
	h := newHarness(t, remoteConfig(), true)
	e := h.engine

	e.Enqueue(entry("a"))
	e.Enqueue(entry("b"))
	expectStart(t, h.remote, "a")

	h.remote.finish(narration.Failed(narration.NewError(narration.KindConfigurationMissing, "no credential", narration.ErrNoCredential)))
	expectStart(t, h.device, "a")

	h.device.finish(narration.Succeeded())
	expectStart(t, h.device, "b")
	expectNoStart(t, h.remote)
}

func TestRemoteSynthesisErrorFallsBack(t *testing.T) {
	h := newHarness(t, remoteConfig(), true)
	e := h.engine

	e.Enqueue(entry("a"))
	e.Enqueue(entry("b"))
	expectStart(t, h.remote, "a")

	h.remote.finish(narration.Failed(narration.NewError(narration.KindSynthesis, "bad input", nil)))
	expectStart(t, h.device, "a")
	expectNoStart(t, h.remote)
	if got := ids(e.Queue()); got != "a,b" {
		t.Errorf("queue = %s", got)
	}
}

func TestRemoteFailureWhilePausedStaysPaused(t *testing.T) {
	h := newHarness(t, remoteConfig(), true)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.remote, "a")
	e.TogglePlayPause()
	if !e.IsPaused() {
		t.Fatalf("state = %s, want paused", e.State())
	}

	// The fetch in flight fails after the user paused.
	h.remote.finish(narration.Failed(narration.NewError(narration.KindNetworkOrAPI, "proxy returned 502 Bad Gateway", nil)))
	expectStart(t, h.device, "a")
	waitFor(t, "device paused", func() bool {
		pauses, _, _ := h.device.counts()
		return pauses == 1
	})
	if !e.IsPaused() || e.IsPlaying() {
		t.Errorf("after fallback: paused = %v playing = %v", e.IsPaused(), e.IsPlaying())
	}
	if e.ActiveBackend() != narration.BackendDevice {
		t.Errorf("active backend = %q", e.ActiveBackend())
	}
	// Cancelling the remote releases its suspended output.
	if _, _, cancels := h.remote.counts(); cancels != 1 {
		t.Errorf("remote cancels = %d, want 1", cancels)
	}

	e.TogglePlayPause()
	if !e.IsPlaying() {
		t.Errorf("state = %s, want playing", e.State())
	}
	if _, resumes, _ := h.device.counts(); resumes != 1 {
		t.Errorf("device resumes = %d, want 1", resumes)
	}
}

func TestOutcomeWhilePausedStartsNextPaused(t *testing.T) {
	tests := []struct {
		name    string
		outcome narration.Outcome
	}{
		{"completed", narration.Succeeded()},
		{"dropped", narration.Failed(errors.New("voice unavailable"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, deviceConfig(), false)
			e := h.engine

			e.Enqueue(entry("a"))
			e.Enqueue(entry("b"))
			expectStart(t, h.device, "a")
			e.TogglePlayPause()

			h.device.finish(tt.outcome)
			expectStart(t, h.device, "b")
			waitFor(t, "b paused", func() bool {
				pauses, _, _ := h.device.counts()
				return pauses == 2
			})
			if !e.IsPaused() {
				t.Errorf("state = %s, want paused", e.State())
			}
			if cur, ok := e.Current(); !ok || cur.ID != "b" {
				t.Errorf("current = %q, want b", cur.ID)
			}
		})
	}
}

func TestCompletionWhilePausedOnLastArticleStops(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	e.TogglePlayPause()

	h.device.finish(narration.Succeeded())
	waitFor(t, "stop", func() bool { return e.State() == narration.StateStopped })
	if e.IsPaused() {
		t.Error("stopped engine still paused")
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")

	e.TogglePlayPause()
	if !e.IsPaused() || e.IsPlaying() || e.State() != narration.StatePaused {
		t.Fatalf("paused = %v playing = %v", e.IsPaused(), e.IsPlaying())
	}
	if e.CurrentIndex() != 0 {
		t.Errorf("pause lost position: index = %d", e.CurrentIndex())
	}

	e.TogglePlayPause()
	if !e.IsPlaying() || e.IsPaused() {
		t.Fatalf("paused = %v playing = %v", e.IsPaused(), e.IsPlaying())
	}
	pauses, resumes, cancels := h.device.counts()
	if pauses != 1 || resumes != 1 || cancels != 0 {
		t.Errorf("pauses=%d resumes=%d cancels=%d", pauses, resumes, cancels)
	}
	expectNoStart(t, h.device)
}

func TestStopWhilePaused(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	e.TogglePlayPause()
	e.Stop()

	if e.State() != narration.StateStopped || e.Len() != 1 {
		t.Errorf("state = %s len = %d", e.State(), e.Len())
	}
}

func TestEnqueueWhilePausedDoesNotStart(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	e.TogglePlayPause()

	e.Enqueue(entry("b"))
	expectNoStart(t, h.device)
	if !e.IsPaused() || e.CurrentIndex() != 0 {
		t.Errorf("paused = %v index = %d", e.IsPaused(), e.CurrentIndex())
	}
}

func TestClearQueue(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	for _, id := range []string{"a", "b", "c"} {
		e.Enqueue(entry(id))
	}
	expectStart(t, h.device, "a")
	e.ClearQueue()

	if e.Len() != 0 || e.State() != narration.StateStopped || e.CurrentIndex() != -1 {
		t.Errorf("len = %d state = %s index = %d", e.Len(), e.State(), e.CurrentIndex())
	}
	if _, _, cancels := h.device.counts(); cancels != 1 {
		t.Errorf("cancels = %d", cancels)
	}

	// Cleared articles may be queued again.
	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
}

func TestWatchdogFollowsState(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine
	w := e.Watchdog()

	if w.Armed() {
		t.Fatal("armed before playback")
	}
	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	if !w.Armed() {
		t.Fatal("not armed while playing on device")
	}

	h.tickers.last().c <- time.Now()
	waitFor(t, "watchdog cycle", func() bool { return w.Cycles() == 1 })
	if pauses, resumes, _ := h.device.counts(); pauses != 1 || resumes != 1 {
		t.Errorf("pauses=%d resumes=%d", pauses, resumes)
	}

	e.TogglePlayPause()
	if w.Armed() {
		t.Error("armed while paused")
	}
	e.TogglePlayPause()
	if !w.Armed() {
		t.Error("not re-armed on resume")
	}

	h.device.finish(narration.Succeeded())
	waitFor(t, "stop", func() bool { return e.State() == narration.StateStopped })
	if w.Armed() {
		t.Error("armed after completion")
	}
}

func TestWatchdogIdleOnRemote(t *testing.T) {
	h := newHarness(t, remoteConfig(), true)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.remote, "a")
	if e.Watchdog().Armed() {
		t.Error("armed while playing remotely")
	}

	h.remote.finish(narration.Failed(narration.NewError(narration.KindNetworkOrAPI, "timeout", nil)))
	expectStart(t, h.device, "a")
	if !e.Watchdog().Armed() {
		t.Error("not armed after switching to device")
	}

	e.Stop()
	if e.Watchdog().Armed() {
		t.Error("armed after stop")
	}
}

func TestPhaseUpdates(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	e.Enqueue(entry("b"))
	expectStart(t, h.device, "a")
	h.device.phase(narration.Phase{Kind: narration.PhaseSummary})
	if e.Phase().Kind != narration.PhaseSummary {
		t.Errorf("phase = %s", e.Phase())
	}

	h.device.mu.Lock()
	stale := h.device.onPhase
	h.device.mu.Unlock()

	e.SkipNext()
	expectStart(t, h.device, "b")
	stale(narration.Phase{Kind: narration.PhaseContent})
	if e.Phase().Kind != narration.PhaseNone {
		t.Errorf("stale phase applied: %s", e.Phase())
	}
}

func TestSubscribersSeeConsistentState(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	var mu sync.Mutex
	var states []string
	unsubscribe := e.Subscribe(func() {
		s := e.Snapshot()
		mu.Lock()
		states = append(states, s.State.String()+":"+ids(s.Queue))
		mu.Unlock()
	})

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	e.TogglePlayPause()
	e.Stop()
	unsubscribe()
	e.TogglePlayPause()
	expectStart(t, h.device, "a")

	mu.Lock()
	defer mu.Unlock()
	want := "playing:a|paused:a|stopped:a"
	if got := strings.Join(states, "|"); got != want {
		t.Errorf("notifications = %s, want %s", got, want)
	}
}

func TestInterestUpdatedPerAcceptedEnqueue(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	e.Enqueue(entry("a"))
	e.Enqueue(entry("b"))

	waitFor(t, "interest updates", func() bool {
		h.interests.mu.Lock()
		defer h.interests.mu.Unlock()
		return len(h.interests.ids) == 2
	})
	time.Sleep(20 * time.Millisecond)
	h.interests.mu.Lock()
	defer h.interests.mu.Unlock()
	if len(h.interests.ids) != 2 {
		t.Errorf("interest updates = %v", h.interests.ids)
	}
}

func TestEnqueueNormalizes(t *testing.T) {
	dev := newFakeBackend(narration.BackendDevice)
	e := New(Options{Device: dev, Logger: log.New(io.Discard)})
	defer e.Close() //nolint:errcheck

	e.Enqueue(narration.Entry{
		ID:      "md",
		Title:   "  Spaced  ",
		Summary: "**Bold** claim",
		Content: "# Heading\n\nSee [the docs](https://example.com).",
	})
	req := expectStart(t, dev, "md")
	a := req.Article
	if a.Title != "Spaced" {
		t.Errorf("title = %q", a.Title)
	}
	if strings.ContainsAny(a.Summary+a.Content, "*#[]") || strings.Contains(a.Content, "https") {
		t.Errorf("article not normalized: %+v", a)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	h := newHarness(t, deviceConfig(), false)
	e := h.engine

	e.Enqueue(entry("a"))
	expectStart(t, h.device, "a")
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if e.State() != narration.StateStopped {
		t.Errorf("state = %s", e.State())
	}
	e.Enqueue(entry("b"))
	e.TogglePlayPause()
	expectNoStart(t, h.device)
}
