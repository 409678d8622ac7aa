// Package delivery holds the renderers that present visible notifications
// (Telegram, desktop) and the sinks that receive every delivered payload
// (NATS, log, in-process event bus).
package delivery

import (
	"context"
	"errors"
	"fmt"

	"pushrelay/internal/notification"
)

// Renderers fans a descriptor out to every renderer. Errors are joined;
// one failing renderer does not stop the others.
type Renderers []notification.Renderer

func (rs Renderers) Render(ctx context.Context, d notification.Descriptor) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Render(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sinks fans a payload out to every sink. Each sink gets its own copy.
type Sinks []notification.Sink

func (ss Sinks) Deliver(ctx context.Context, payload map[string]string) error {
	var errs []error
	for _, s := range ss {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, notification.Payload(payload).Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Named tags errors from a renderer or sink with its name.
type Named struct {
	Name     string
	Renderer notification.Renderer
	Sink     notification.Sink
}

func (n Named) Render(ctx context.Context, d notification.Descriptor) error {
	if n.Renderer == nil {
		return nil
	}
	if err := n.Renderer.Render(ctx, d); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}
	return nil
}

func (n Named) Deliver(ctx context.Context, payload map[string]string) error {
	if n.Sink == nil {
		return nil
	}
	if err := n.Sink.Deliver(ctx, payload); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}
	return nil
}

// truncate cuts s to at most max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
