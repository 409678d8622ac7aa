// Package supervisor runs the long-lived goroutines of the relay (ingress
// subscribers, the HTTP listener, the config watcher, event consumers) under
// one cancellable context with panic recovery and restart backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	logx "pushrelay/pkg/logx"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Supervisor owns a context and the goroutines started on it.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	errOnce  sync.Once
	firstErr atomic.Value // error
	doneOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*taskStats
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels the supervisor context on the first goroutine
// error or panic.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

// TaskStats is a best-effort view of one named goroutine.
type TaskStats struct {
	Name      string    `json:"name"`
	Active    int       `json:"active"`
	Started   uint64    `json:"started"`
	Restarts  uint64    `json:"restarts"`
	Panics    uint64    `json:"panics"`
	LastErr   string    `json:"last_err,omitempty"`
	LastStart time.Time `json:"last_start"`
}

type Snapshot struct {
	FirstError string      `json:"first_error,omitempty"`
	Tasks      []TaskStats `json:"tasks"`
}

type taskStats struct {
	TaskStats
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
		tasks:  map[string]*taskStats{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	err, _ := s.firstErr.Load().(error)
	return err
}

func (s *Supervisor) Snapshot() Snapshot {
	var snap Snapshot
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}
	s.mu.Lock()
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, t.TaskStats)
	}
	s.mu.Unlock()
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].Name < snap.Tasks[j].Name })
	return snap
}

func (s *Supervisor) note(name string, fn func(t *taskStats)) {
	s.mu.Lock()
	t := s.tasks[name]
	if t == nil {
		t = &taskStats{TaskStats: TaskStats{Name: name}}
		s.tasks[name] = t
	}
	fn(t)
	s.mu.Unlock()
}

// Go runs fn once. A returned error (other than cancellation) or a panic is
// recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.note(name, func(t *taskStats) { t.Active++; t.Started++; t.LastStart = time.Now() })
		err := s.run(name, fn)
		s.note(name, func(t *taskStats) {
			t.Active--
			if err != nil {
				t.LastErr = err.Error()
			}
		})
		if err != nil {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// run calls fn and converts a panic into an error.
func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.note(name, func(t *taskStats) { t.Panics++ })
			s.log.Error("goroutine panicked",
				logx.String("name", name),
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 16)),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = fn(s.ctx)
	if errors.Is(err, context.Canceled) || s.ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Supervisor) fail(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
	if s.cancelOnErr {
		s.cancel()
	}
}

// RestartPolicy controls GoRestart.
type RestartPolicy struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxRestarts <= 0 means unlimited.
	MaxRestarts int
}

func (p RestartPolicy) withDefaults() RestartPolicy {
	if p.MinBackoff <= 0 {
		p.MinBackoff = 250 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = p.MinBackoff
	}
	return p
}

// GoRestart runs fn and restarts it with exponential backoff after an error
// or panic until the context is cancelled. A nil return stops the loop.
func (s *Supervisor) GoRestart(name string, p RestartPolicy, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	p = p.withDefaults()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := p.MinBackoff
		for restarts := 0; ; restarts++ {
			started := time.Now()
			s.note(name, func(t *taskStats) {
				t.Active++
				t.Started++
				t.LastStart = started
				if restarts > 0 {
					t.Restarts++
				}
			})
			err := s.run(name, fn)
			s.note(name, func(t *taskStats) {
				t.Active--
				if err != nil {
					t.LastErr = err.Error()
				}
			})
			if err == nil || s.ctx.Err() != nil {
				return
			}
			if p.MaxRestarts > 0 && restarts >= p.MaxRestarts {
				s.log.Error("goroutine gave up", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(fmt.Errorf("%s: %w", name, err))
				return
			}
			if time.Since(started) >= 30*time.Second {
				backoff = p.MinBackoff
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", backoff), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, p.MaxBackoff)
		}
	}()
}

// Stop cancels the context and waits for every goroutine or ctx expiry.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
