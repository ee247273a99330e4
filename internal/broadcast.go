package internal

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrNoSubscribers is returned by Send when nobody is listening.
	ErrNoSubscribers = errors.New("broadcast: no active subscribers")
	// ErrBusClosed is returned by Send once the bus has been shut down.
	ErrBusClosed = errors.New("broadcast: bus closed")
)

// Bus fans events out to every subscriber without ever blocking the sender.
// Each subscriber owns a queue of fixed capacity; when it is full the oldest
// pending event is dropped and counted as lag for that subscriber only.
type Bus struct {
	// sendMu serializes fan-out so every subscriber sees one send order.
	sendMu   sync.Mutex
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	capacity int
	closed   bool
	onDrop   func(Event)
}

// NewBus builds a bus whose subscribers buffer up to capacity events.
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscription is one receiver on a Bus.
type Subscription struct {
	bus    *Bus
	events chan Event
	lagged atomic.Uint64
	once   sync.Once
}

// Subscribe registers a new receiver. Events sent before this call are never
// delivered to it. Subscribing to a closed bus returns an already closed
// subscription.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{bus: b, events: make(chan Event, b.capacity)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(sub.events) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Send delivers evt to every subscriber and returns how many were reached.
// Concurrent sends are applied one at a time.
func (b *Bus) Send(evt Event) (int, error) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrBusClosed
	}
	if len(b.subs) == 0 {
		return 0, ErrNoSubscribers
	}
	for sub := range b.subs {
		b.deliver(sub, evt)
	}
	return len(b.subs), nil
}

func (b *Bus) deliver(sub *Subscription, evt Event) {
	for {
		select {
		case sub.events <- evt:
			return
		default:
		}
		// queue is full: evict the oldest pending event and retry
		select {
		case dropped := <-sub.events:
			sub.lagged.Add(1)
			if b.onDrop != nil {
				b.onDrop(dropped)
			}
		default:
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later sends fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.once.Do(func() { close(sub.events) })
		delete(b.subs, sub)
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	sub.once.Do(func() { close(sub.events) })
}

// C returns the receive side. It is closed when the subscription or the bus
// is closed.
func (s *Subscription) C() <-chan Event {
	return s.events
}

// Lagged reports how many events were dropped because this subscriber fell
// behind.
func (s *Subscription) Lagged() uint64 {
	return s.lagged.Load()
}

// Close detaches the subscription from its bus. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s)
}
