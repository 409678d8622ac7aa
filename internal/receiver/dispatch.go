package receiver

import (
	"context"
	logx "pushrelay/pkg/logx"

	"pushrelay/internal/message"
	"pushrelay/internal/notification"
)

// Dispatch offers msg to every live receiver in registration order and
// reports whether any of them handled it. A handled result never stops later
// receivers. A panicking receiver counts as not handled.
func (g *Registry) Dispatch(ctx context.Context, msg *message.RawMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	handled := false
	for i, r := range g.CurrentReceivers(ctx) {
		if g.call(i, "message", func() bool {
			if cr, ok := r.(ContextReceiver); ok {
				return cr.HandleMessageContext(ctx, msg)
			}
			return r.HandleMessage(msg)
		}) {
			handled = true
		}
	}
	return handled
}

// DispatchPayload runs the payload stage. Receivers share p, so a later
// receiver's writes win over an earlier one's.
func (g *Registry) DispatchPayload(ctx context.Context, p notification.Payload) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	handled := false
	for i, r := range g.CurrentReceivers(ctx) {
		if g.call(i, "payload", func() bool {
			if cr, ok := r.(ContextReceiver); ok {
				return cr.HandlePayloadContext(ctx, p)
			}
			return r.HandlePayload(p)
		}) {
			handled = true
		}
	}
	return handled
}

func (g *Registry) call(idx int, stage string, fn func() bool) (handled bool) {
	defer func() {
		if rec := recover(); rec != nil {
			g.panics.Add(1)
			g.log.Error("panic in receiver",
				logx.String("stage", stage),
				logx.Int("index", idx),
				logx.Any("panic", rec),
				logx.Stack(logx.StackTrace(3, 16)),
			)
			handled = false
		}
	}()
	return fn()
}
