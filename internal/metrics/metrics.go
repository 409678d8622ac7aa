// Package metrics exposes relay counters in Prometheus format. Counters are
// fed from the event bus so the core packages stay free of metric code.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/receiver"
)

type Metrics struct {
	reg *prometheus.Registry

	messages  *prometheus.CounterVec
	revival   *prometheus.CounterVec
	revivals  prometheus.Counter
	postponed prometheus.Counter
	dispatch  *prometheus.HistogramVec
	httpDur   *prometheus.HistogramVec
	httpReqs  *prometheus.CounterVec
}

// New registers the relay collectors on a private registry. live, when not
// nil, reports the current number of live receivers.
func New(live func() float64) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pushrelay_messages_total",
			Help: "Inbound messages by outcome.",
		}, []string{"outcome"}),
		revival: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pushrelay_revival_identities_total",
			Help: "Receiver identities processed by revival, by result.",
		}, []string{"result"}),
		revivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushrelay_revival_passes_total",
			Help: "Completed revival passes.",
		}),
		postponed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushrelay_revival_postponed_total",
			Help: "Revival passes postponed because the store was unavailable.",
		}),
		dispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pushrelay_message_duration_seconds",
			Help:    "Time spent relaying one message.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		httpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"path", "method", "status"}),
	}
	m.reg.MustRegister(m.messages, m.revival, m.revivals, m.postponed, m.dispatch, m.httpDur, m.httpReqs)
	if live != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pushrelay_live_receivers",
			Help: "Receivers currently registered.",
		}, live))
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveMessage records one relayed message.
func (m *Metrics) ObserveMessage(outcome string, took time.Duration) {
	m.messages.WithLabelValues(outcome).Inc()
	m.dispatch.WithLabelValues(outcome).Observe(took.Seconds())
}

// Consume updates counters from bus events until ctx is done.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.observe(e)
		}
	}
}

func (m *Metrics) observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeRevival:
		rep, ok := e.Data.(receiver.RevivalReport)
		if !ok {
			return
		}
		m.revivals.Inc()
		m.revival.WithLabelValues("revived").Add(float64(len(rep.Revived)))
		m.revival.WithLabelValues("retained").Add(float64(len(rep.Retained)))
		for _, d := range rep.Dropped {
			m.revival.WithLabelValues(d.Reason).Inc()
		}
	case eventbus.TypeRevivalPostponed:
		m.postponed.Inc()
	case eventbus.TypeRenderFailed:
		m.messages.WithLabelValues("render_failed").Inc()
	}
}

// Middleware records request rate, errors and duration per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := strconv.Itoa(ww.Status())
		m.httpDur.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
		m.httpReqs.WithLabelValues(path, r.Method, status).Inc()
	})
}
