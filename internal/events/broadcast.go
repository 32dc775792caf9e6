package events

import (
	"sync"
)

const defaultBufferSize = 16

// Broadcaster is a value-replaying publish-subscribe fan-out. It keeps the
// most recently published value and replays it to every new subscriber before
// pushing subsequent updates, mirroring the behavior of an observable state
// container.
//
// Publishes never block: a subscriber whose buffer is full misses the
// intermediate value and observes the next one, which is acceptable for
// last-value-wins state streams.
type Broadcaster[T any] struct {
	mu      sync.RWMutex
	subs    map[chan T]struct{}
	current T
	primed  bool
	closed  bool
}

// NewBroadcaster creates an empty broadcaster. Until the first Publish,
// subscribers receive nothing on attach.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs: make(map[chan T]struct{}),
	}
}

// Publish records value as current and fans it out to all subscribers.
func (b *Broadcaster[T]) Publish(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.current = value
	b.primed = true

	for ch := range b.subs {
		select {
		case ch <- value:
		default:
		}
	}
}

// Subscribe attaches a new subscriber, replaying the current value when one
// exists. The cancel function detaches the subscriber and closes its channel.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, defaultBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.subs[ch] = struct{}{}
	if b.primed {
		ch <- b.current
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close detaches and closes every subscriber channel. Further publishes and
// subscriptions are no-ops.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
