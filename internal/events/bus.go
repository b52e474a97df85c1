package events

import (
	"sync"
)

// Subscriber receives events. Handlers run on the dispatch goroutine and
// must not block.
type Subscriber func(Event)

type subscription struct {
	types   map[EventType]struct{} // nil means all types
	handler Subscriber
}

// Bus is an in-memory publish/subscribe event bus. Publishing is
// fire-and-forget: when the buffer is full the event is dropped rather than
// blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int

	ch     chan Event
	recent *ring
	closed bool
	done   chan struct{}
}

// NewBus creates a bus with the given buffer size and starts its dispatch
// goroutine.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	b := &Bus{
		subs:   make(map[int]*subscription),
		ch:     make(chan Event, bufferSize),
		recent: newRing(bufferSize),
		done:   make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case e := <-b.ch:
			b.recent.add(e)
			b.deliver(e)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.types != nil {
			if _, ok := sub.types[e.Type]; !ok {
				continue
			}
		}
		sub.handler(e)
	}
}

// Publish enqueues an event. Drops silently when the bus is closed or full.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	select {
	case b.ch <- e:
	default:
	}
}

// Subscribe registers a handler, optionally filtered to specific event
// types. The returned function unsubscribes.
func (b *Bus) Subscribe(handler Subscriber, types ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filter map[EventType]struct{}
	if len(types) > 0 {
		filter = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			filter[t] = struct{}{}
		}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{types: filter, handler: handler}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// History returns up to limit recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.recent.get(limit)
}

// Close stops dispatching. Further publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// ring is a fixed-size buffer of the most recent events.
type ring struct {
	mu    sync.Mutex
	buf   []Event
	pos   int
	count int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Event, size)}
}

func (r *ring) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.pos] = e
	r.pos = (r.pos + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) get(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	start := (r.pos - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
