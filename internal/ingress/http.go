package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	logx "pushrelay/pkg/logx"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pushrelay/internal/message"
)

const defaultMaxBody = 1 << 20

type HTTPConfig struct {
	Addr         string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	// Pprof mounts net/http/pprof under /debug/pprof.
	Pprof bool
}

// HTTPDeps are optional collaborators of the HTTP ingress.
type HTTPDeps struct {
	Logger logx.Logger
	// Stats backs GET /v1/receivers.
	Stats func() any
	// Health backs GET /healthz; a non-nil error reports 503.
	Health func() error
	// Metrics is served on GET /metrics.
	Metrics http.Handler
	// Middleware wraps every route (request metrics).
	Middleware func(http.Handler) http.Handler
}

type HTTP struct {
	cfg    HTTPConfig
	h      Handler
	deps   HTTPDeps
	log    logx.Logger
	router chi.Router
}

func NewHTTP(cfg HTTPConfig, h Handler, deps HTTPDeps) *HTTP {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	s := &HTTP{cfg: cfg, h: h, deps: deps, log: deps.Logger}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.router = s.routes()
	return s
}

func (s *HTTP) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.deps.Middleware != nil {
		r.Use(s.deps.Middleware)
	}
	r.Post("/v1/messages", s.handleMessage)
	r.Get("/v1/receivers", s.handleReceivers)
	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}
	if s.cfg.Pprof {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/{name}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pprof.Handler(chi.URLParam(r, "name")).ServeHTTP(w, r)
		}))
	}
	return r
}

func (s *HTTP) Handler() http.Handler { return s.router }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type acceptedResponse struct {
	Handled bool   `json:"handled"`
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

func (s *HTTP) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	msg, err := message.Decode(body)
	if err != nil {
		s.log.Debug("rejecting undecodable message", logx.Err(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.h.OnMessage(r.Context(), msg)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Handled: res.Handled, ID: res.ID, Outcome: res.Outcome})
}

func (s *HTTP) handleReceivers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeError(w, http.StatusNotFound, "no registry")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Stats())
}

func (s *HTTP) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTP) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *HTTP) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()
	s.log.Info("http ingress started", logx.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
