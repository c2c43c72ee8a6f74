package synth

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/cache"
	"golang.org/x/time/rate"
)

// Limited throttles calls to the wrapped synthesizer.
type Limited struct {
	next    Synthesizer
	limiter *rate.Limiter
}

// NewLimited allows at most rpm calls per minute, with no burst.
func NewLimited(next Synthesizer, rpm int) *Limited {
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// Name implements Synthesizer.
func (l *Limited) Name() string { return l.next.Name() }

// Synthesize waits for the limiter, then calls through.
func (l *Limited) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, apiError("rate limit wait", err)
	}
	return l.next.Synthesize(ctx, req)
}

// Forgetter drops a stored response that turned out to be unusable.
type Forgetter interface {
	Forget(req Request)
}

// Cached serves repeated requests from a cache.
type Cached struct {
	next   Synthesizer
	store  cache.Cache
	logger *log.Logger
}

// NewCached wraps next with store.
func NewCached(next Synthesizer, store cache.Cache, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{next: next, store: store, logger: logger}
}

// Name implements Synthesizer.
func (c *Cached) Name() string { return c.next.Name() }

// Synthesize implements Synthesizer.
func (c *Cached) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	key := c.key(req)
	if data, ok := c.store.Get(key); ok {
		c.logger.Debug("audio cache hit", "bytes", len(data))
		return data, nil
	}

	data, err := c.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(key, data); err != nil {
		c.logger.Warn("failed to cache audio", "err", err)
	}
	return data, nil
}

// Forget evicts the response stored for req, so the next call asks the
// provider again.
func (c *Cached) Forget(req Request) {
	if err := c.store.Delete(c.key(req)); err != nil {
		c.logger.Debug("failed to evict audio", "err", err)
	}
}

func (c *Cached) key(req Request) string {
	return cache.Key{
		Provider: c.next.Name(),
		Model:    req.Model,
		Voice:    req.Voice,
		Speed:    req.Speed,
		Text:     req.Text,
	}.String()
}

var (
	_ Synthesizer = (*Limited)(nil)
	_ Synthesizer = (*Cached)(nil)
	_ Forgetter   = (*Cached)(nil)
)
