package engine

import "sync"

// Notifier is a registry of change callbacks. Callbacks get no payload;
// they re-read whatever getters they care about.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func()
	order  []int
}

// NewNotifier creates an empty registry.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func())}
}

// Subscribe registers fn and returns a function that removes it. Calling
// the returned function more than once is harmless.
func (n *Notifier) Subscribe(fn func()) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.order = append(n.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			for i, v := range n.order {
				if v == id {
					n.order = append(n.order[:i], n.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Notify calls every subscriber in subscription order.
func (n *Notifier) Notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.order))
	for _, id := range n.order {
		fns = append(fns, n.subs[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
