package notification

import (
	"context"
	"sync/atomic"
)

// Renderer presents a visible notification. It only sees descriptors whose
// ShowNotification is true.
type Renderer interface {
	Render(ctx context.Context, d Descriptor) error
}

// Sink receives every delivered payload regardless of ShowNotification.
type Sink interface {
	Deliver(ctx context.Context, payload map[string]string) error
}

type RendererFunc func(ctx context.Context, d Descriptor) error

func (f RendererFunc) Render(ctx context.Context, d Descriptor) error { return f(ctx, d) }

type SinkFunc func(ctx context.Context, payload map[string]string) error

func (f SinkFunc) Deliver(ctx context.Context, payload map[string]string) error {
	return f(ctx, payload)
}

// AppState answers the two host questions that decide visibility.
type AppState interface {
	InBackground() bool
	HasMessageCallback() bool
}

// State is a concurrency-safe AppState. The callback check is evaluated on
// every call so it can follow live subscriptions.
type State struct {
	background atomic.Bool
	callback   atomic.Value // func() bool
}

func NewState(background bool, hasCallback func() bool) *State {
	s := &State{}
	s.background.Store(background)
	s.SetCallbackCheck(hasCallback)
	return s
}

func (s *State) SetBackground(v bool) { s.background.Store(v) }

func (s *State) SetCallbackCheck(fn func() bool) {
	if fn == nil {
		fn = func() bool { return false }
	}
	s.callback.Store(fn)
}

func (s *State) InBackground() bool { return s.background.Load() }

func (s *State) HasMessageCallback() bool {
	fn, _ := s.callback.Load().(func() bool)
	return fn != nil && fn()
}
