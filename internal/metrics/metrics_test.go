package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/receiver"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status=%d", rec.Code)
	}
	return rec.Body.String()
}

func TestObserveMessage(t *testing.T) {
	m := New(func() float64 { return 3 })
	m.ObserveMessage("delivered", 10*time.Millisecond)
	m.ObserveMessage("delivered", 10*time.Millisecond)
	m.ObserveMessage("handled", time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		`pushrelay_messages_total{outcome="delivered"} 2`,
		`pushrelay_messages_total{outcome="handled"} 1`,
		"pushrelay_live_receivers 3",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestConsumeRevivalEvents(t *testing.T) {
	m := New(nil)
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Consume(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for bus.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	bus.Publish(eventbus.Event{Type: eventbus.TypeRevival, Data: receiver.RevivalReport{
		Revived:  []receiver.Identity{"a", "b"},
		Retained: []receiver.Identity{"c"},
		Dropped:  []receiver.Dropped{{ID: "d", Reason: receiver.ReasonStaleUnknown}},
	}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeRevivalPostponed})

	var body string
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		body = scrape(t, m)
		if strings.Contains(body, "pushrelay_revival_postponed_total 1") {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	for _, want := range []string{
		`pushrelay_revival_identities_total{result="revived"} 2`,
		`pushrelay_revival_identities_total{result="retained"} 1`,
		`pushrelay_revival_identities_total{result="stale_unknown"} 1`,
		"pushrelay_revival_passes_total 1",
		"pushrelay_revival_postponed_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/messages", nil))

	if body := scrape(t, m); !strings.Contains(body, `http_requests_total{method="POST",path="/v1/messages",status="202"} 1`) {
		t.Fatalf("request not counted:\n%s", body)
	}
}
