// Package ingress feeds inbound push messages into the relay. Two transports
// exist: a NATS subscriber and an HTTP webhook. Both decode the JSON wire
// format from internal/message and acknowledge every message once the relay
// returns.
package ingress

import (
	"context"

	"pushrelay/internal/message"
	"pushrelay/internal/relay"
)

// Handler consumes decoded messages. *relay.Service implements it.
type Handler interface {
	OnMessage(ctx context.Context, msg *message.RawMessage) relay.Result
}
