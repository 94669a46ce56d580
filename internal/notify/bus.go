// Package notify fans observable playback notifications out to host
// subscribers.
//
// Publish never blocks: a subscriber whose channel is full loses the event
// and its Dropped counter grows. The controller publishes from the worker
// and from streaming threads, so a slow host must not stall either.
package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

type subscriber struct {
	ch    chan<- Event
	stats SubscriberStats // atomic fields
}

// Bus distributes events to registered channels.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	published   uint64
	closed      bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch under id.
func (b *Bus) Subscribe(id string, ch chan<- Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	b.subscribers[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes a subscriber. The channel is not closed; it belongs to
// the caller.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Publish stamps ev and offers it to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	ev.Seq = atomic.AddUint64(&b.published, 1)
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	for _, s := range b.subscribers {
		select {
		case s.ch <- ev:
			atomic.AddUint64(&s.stats.Sent, 1)
		default:
			atomic.AddUint64(&s.stats.Dropped, 1)
		}
	}
}

// Stats returns a snapshot of distribution counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := Stats{
		TotalPublished: atomic.LoadUint64(&b.published),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, s := range b.subscribers {
		out.Subscribers[id] = SubscriberStats{
			Sent:    atomic.LoadUint64(&s.stats.Sent),
			Dropped: atomic.LoadUint64(&s.stats.Dropped),
		}
	}
	return out
}

// Close drops every subscriber; later publishes are no-ops. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subscribers = nil
}
