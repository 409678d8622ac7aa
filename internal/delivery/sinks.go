package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	logx "pushrelay/pkg/logx"
	"sort"
	"strings"

	natspkg "github.com/nats-io/nats.go"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/notification"
)

// publisher is the part of *nats.Conn the NATS sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes every delivered payload as a JSON object.
type NATS struct {
	pub     publisher
	subject string
	// owned is closed with the sink when the sink dialed the connection.
	owned *natspkg.Conn
}

// DialNATS connects to url and returns a sink owning that connection.
func DialNATS(url, subject string) (*NATS, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("nats sink subject is empty")
	}
	if strings.TrimSpace(url) == "" {
		url = natspkg.DefaultURL
	}
	nc, err := natspkg.Connect(url, natspkg.Name("pushrelay-sink"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{pub: nc, subject: subject, owned: nc}, nil
}

// NewNATS publishes on an existing connection.
func NewNATS(pub publisher, subject string) *NATS {
	return &NATS{pub: pub, subject: subject}
}

func (n *NATS) Deliver(ctx context.Context, payload map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.pub.Publish(n.subject, b)
}

func (n *NATS) Close() error {
	if n.owned != nil {
		n.owned.Close()
	}
	return nil
}

// Log writes every delivered payload to the log.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log}
}

func (l *Log) Deliver(_ context.Context, payload map[string]string) error {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	l.log.Info("notification delivered",
		logx.String("id", payload[notification.KeyID]),
		logx.String("type", payload[notification.KeyMessageType]),
		logx.String("title", payload[notification.KeyTitle]),
		logx.String("show", payload[notification.KeyShowNotification]),
		logx.Strs("keys", keys),
	)
	return nil
}

// Bus publishes delivered payloads on the event bus, where in-process message
// callbacks pick them up.
type Bus struct {
	bus eventbus.Bus
}

func NewBus(bus eventbus.Bus) *Bus { return &Bus{bus: bus} }

func (b *Bus) Deliver(ctx context.Context, payload map[string]string) error {
	b.bus.Publish(eventbus.Event{Type: eventbus.TypeDelivered, Data: eventbus.Delivered{
		DeliveryID: DeliveryID(ctx),
		Payload:    payload,
	}})
	return nil
}

type deliveryIDKey struct{}

// WithDeliveryID attaches the relay's correlation id to ctx.
func WithDeliveryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deliveryIDKey{}, id)
}

func DeliveryID(ctx context.Context) string {
	id, _ := ctx.Value(deliveryIDKey{}).(string)
	return id
}
