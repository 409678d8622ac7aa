package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeHandled})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeHandled || e.Time.IsZero() {
				t.Fatalf("event=%+v", e)
			}
		case <-time.After(time.Second):
			t.Fatalf("event not delivered")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: TypeDropped})
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	if got := b.Subscribers(); got != 1 {
		t.Fatalf("subscribers=%d want 1", got)
	}
	unsub()
	unsub()
	if got := b.Subscribers(); got != 0 {
		t.Fatalf("subscribers=%d want 0", got)
	}
	b.Publish(Event{Type: TypeHandled})
}

func TestCallbacksFilterDelivered(t *testing.T) {
	b := New()
	cb := NewCallbacks(b)
	if cb.Active() {
		t.Fatalf("no callback should be active")
	}
	ch, stop := cb.Subscribe(4)
	if !cb.Active() {
		t.Fatalf("callback should be active")
	}

	b.Publish(Event{Type: TypeHandled})
	b.Publish(Event{Type: TypeDelivered, Data: Delivered{DeliveryID: "d1", Payload: map[string]string{"id": "1"}}})

	select {
	case d := <-ch:
		if d.DeliveryID != "d1" || d.Payload["id"] != "1" {
			t.Fatalf("delivered=%+v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("delivered payload not forwarded")
	}

	stop()
	if cb.Active() {
		t.Fatalf("callback still active after stop")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}
