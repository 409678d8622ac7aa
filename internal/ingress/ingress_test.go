package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"pushrelay/internal/message"
	"pushrelay/internal/relay"
)

type fakeHandler struct {
	mu   sync.Mutex
	msgs []*message.RawMessage
	res  relay.Result
}

func (f *fakeHandler) OnMessage(_ context.Context, msg *message.RawMessage) relay.Result {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	return f.res
}

func TestHTTPAcceptsMessage(t *testing.T) {
	h := &fakeHandler{res: relay.Result{ID: "abc", Handled: true, Outcome: relay.OutcomeHandled}}
	srv := NewHTTP(HTTPConfig{}, h, HTTPDeps{})

	body := `{"message_id":"m1","data":{"k":"v"},"notification":{"title":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var got acceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.Handled || got.ID != "abc" {
		t.Fatalf("response=%+v", got)
	}
	if len(h.msgs) != 1 || h.msgs[0].MessageID != "m1" || h.msgs[0].Notification.Title != "hi" {
		t.Fatalf("handler saw %+v", h.msgs)
	}
}

func TestHTTPRejectsBadBodies(t *testing.T) {
	h := &fakeHandler{}
	srv := NewHTTP(HTTPConfig{MaxBodyBytes: 64}, h, HTTPDeps{})

	cases := []struct {
		name string
		body string
		want int
	}{
		{"not json", "nope", http.StatusBadRequest},
		{"too large", `{"data":{"k":"` + strings.Repeat("x", 100) + `"}}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(tc.body)))
			if rec.Code != tc.want {
				t.Fatalf("status=%d want %d", rec.Code, tc.want)
			}
		})
	}
	if len(h.msgs) != 0 {
		t.Fatalf("handler must not be called")
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/messages", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d want 405", rec.Code)
	}
}

func TestHTTPHealthAndStats(t *testing.T) {
	var healthErr error
	srv := NewHTTP(HTTPConfig{}, &fakeHandler{}, HTTPDeps{
		Stats:   func() any { return map[string]int{"live": 2} },
		Health:  func() error { return healthErr },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("m 1\n")) }),
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz=%d", rec.Code)
	}
	healthErr = errors.New("nats down")
	if rec := get("/healthz"); rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "nats down") {
		t.Fatalf("degraded healthz=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := get("/v1/receivers"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"live":2`) {
		t.Fatalf("receivers=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := get("/metrics"); rec.Body.String() != "m 1\n" {
		t.Fatalf("metrics body=%q", rec.Body.String())
	}
	if rec := get("/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof should be off by default, got %d", rec.Code)
	}
}

func TestNATSRelayDecodes(t *testing.T) {
	h := &fakeHandler{res: relay.Result{ID: "x"}}
	n, err := NewNATS(NATSConfig{Subject: "push.in"}, h, nopLog())
	if err != nil {
		t.Fatalf("NewNATS: %v", err)
	}

	res, err := n.relay(context.Background(), []byte(`{"data":{"a":"b"}}`))
	if err != nil || res.ID != "x" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if _, err := n.relay(context.Background(), []byte(`{`)); !errors.Is(err, message.ErrInvalid) {
		t.Fatalf("err=%v want ErrInvalid", err)
	}
	if len(h.msgs) != 1 || h.msgs[0].Data["a"] != "b" {
		t.Fatalf("handler saw %+v", h.msgs)
	}
}

func TestNewNATSRequiresSubject(t *testing.T) {
	if _, err := NewNATS(NATSConfig{URL: "nats://x"}, &fakeHandler{}, nopLog()); err == nil {
		t.Fatalf("expected error")
	}
}
