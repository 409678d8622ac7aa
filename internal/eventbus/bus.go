// Package eventbus is the in-process fanout used to observe the relay:
// revival passes, delivered payloads and drops are published here and
// consumed by metrics and in-process message callbacks.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the relay.
const (
	TypeRevival          = "receiver.revival"
	TypeRevivalPostponed = "receiver.revival_postponed"
	TypeHandled          = "message.handled"
	TypeDropped          = "message.dropped"
	TypeDelivered        = "notification.delivered"
	TypeRenderFailed     = "notification.render_failed"
)

// Event is a small in-memory signal. Publish never blocks: subscribers use
// buffered channels and slow ones lose events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Subscribers reports how many subscriptions are open.
	Subscribers() int
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// The channel may be closed by a concurrent unsubscribe.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *memBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Delivered is the payload of a TypeDelivered event.
type Delivered struct {
	DeliveryID string            `json:"delivery_id"`
	Payload    map[string]string `json:"payload"`
}

// Callbacks tracks in-process message callbacks: subscribers that only want
// delivered payloads. Its Active count drives foreground notification
// suppression.
type Callbacks struct {
	bus    Bus
	active atomic.Int32
}

func NewCallbacks(bus Bus) *Callbacks { return &Callbacks{bus: bus} }

// Subscribe returns a channel of delivered payloads. Call the returned func to
// stop.
func (c *Callbacks) Subscribe(buffer int) (<-chan Delivered, func()) {
	events, unsub := c.bus.Subscribe(buffer)
	out := make(chan Delivered, cap(events))
	c.active.Add(1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for e := range events {
			if e.Type != TypeDelivered {
				continue
			}
			d, ok := e.Data.(Delivered)
			if !ok {
				continue
			}
			select {
			case out <- d:
			default:
			}
		}
		close(done)
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			c.active.Add(-1)
			unsub()
			<-done
		})
	}
}

// Active reports whether at least one callback is subscribed.
func (c *Callbacks) Active() bool { return c.active.Load() > 0 }
