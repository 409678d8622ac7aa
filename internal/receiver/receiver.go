package receiver

import (
	"context"
	"errors"

	"pushrelay/internal/message"
	"pushrelay/internal/notification"
)

// Identity is the stable, serializable name of a receiver implementation.
type Identity string

// ErrNotConstructible is returned (possibly wrapped) by a factory whose
// receiver can never be built again. Its identity is dropped from the set.
var ErrNotConstructible = errors.New("receiver not constructible")

// Receiver claims messages. Returning true means "handled"; it does not stop
// later receivers from being called.
type Receiver interface {
	HandleMessage(msg *message.RawMessage) bool
	HandlePayload(p notification.Payload) bool
}

// ContextReceiver is implemented by receivers that want the dispatch context.
// When it is absent the context-free methods are called.
type ContextReceiver interface {
	Receiver
	HandleMessageContext(ctx context.Context, msg *message.RawMessage) bool
	HandlePayloadContext(ctx context.Context, p notification.Payload) bool
}

// Factory builds a fresh receiver during revival. It must not register the
// receiver it returns; the registry does that.
type Factory func(ctx context.Context) (Receiver, error)

// Funcs adapts plain functions to Receiver. Nil funcs never handle.
type Funcs struct {
	Message func(ctx context.Context, msg *message.RawMessage) bool
	Payload func(ctx context.Context, p notification.Payload) bool
}

func (f Funcs) HandleMessage(msg *message.RawMessage) bool {
	return f.HandleMessageContext(context.Background(), msg)
}

func (f Funcs) HandlePayload(p notification.Payload) bool {
	return f.HandlePayloadContext(context.Background(), p)
}

func (f Funcs) HandleMessageContext(ctx context.Context, msg *message.RawMessage) bool {
	if f.Message == nil {
		return false
	}
	return f.Message(ctx, msg)
}

func (f Funcs) HandlePayloadContext(ctx context.Context, p notification.Payload) bool {
	if f.Payload == nil {
		return false
	}
	return f.Payload(ctx, p)
}
