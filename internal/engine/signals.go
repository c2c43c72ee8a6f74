package engine

import (
	evbus "github.com/asaskevich/EventBus"
)

// Signal topics.
const (
	TopicDuplicate = "narration:duplicate"
	TopicListened  = "narration:listened"
	TopicFallback  = "narration:fallback"
	TopicDropped   = "narration:dropped"
)

// Signals carries discrete events that the plain change notification does
// not: a rejected duplicate, a finished article, a fallback to on-device
// narration and a dropped article.
type Signals struct {
	bus evbus.Bus
}

// NewSignals creates a signal bus.
func NewSignals() *Signals {
	return &Signals{bus: evbus.New()}
}

// OnDuplicate subscribes to rejected enqueues.
func (s *Signals) OnDuplicate(fn func(id string)) (unsubscribe func(), err error) {
	return s.subscribe(TopicDuplicate, fn)
}

// OnListened subscribes to completed articles.
func (s *Signals) OnListened(fn func(id string)) (unsubscribe func(), err error) {
	return s.subscribe(TopicListened, fn)
}

// OnFallback subscribes to remote failures that restart an article on the
// device backend.
func (s *Signals) OnFallback(fn func(id, reason string)) (unsubscribe func(), err error) {
	return s.subscribe(TopicFallback, fn)
}

// OnDropped subscribes to articles removed after a synthesis error.
func (s *Signals) OnDropped(fn func(id, reason string)) (unsubscribe func(), err error) {
	return s.subscribe(TopicDropped, fn)
}

func (s *Signals) subscribe(topic string, fn any) (func(), error) {
	if err := s.bus.Subscribe(topic, fn); err != nil {
		return nil, err
	}
	return func() { _ = s.bus.Unsubscribe(topic, fn) }, nil
}

type signal struct {
	topic string
	args  []any
}

func (s *Signals) publish(sig signal) {
	s.bus.Publish(sig.topic, sig.args...)
}
