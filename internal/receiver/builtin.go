package receiver

import (
	"context"
	logx "pushrelay/pkg/logx"
	"strings"

	"pushrelay/internal/message"
	"pushrelay/internal/notification"
)

// Built-in identities.
const (
	IDSilent Identity = "silent"
	IDAudit  Identity = "audit"
)

// DataSilent marks a message that must not produce a notification.
const DataSilent = "silent"

// Silent handles messages whose data carries silent=true, which suppresses
// normalization and delivery for them.
type Silent struct{}

func (Silent) HandleMessage(msg *message.RawMessage) bool {
	v, ok := msg.DataValue(DataSilent)
	return ok && strings.EqualFold(strings.TrimSpace(v), "true")
}

func (Silent) HandlePayload(notification.Payload) bool { return false }

// Audit logs every message and payload it sees and never handles any.
type Audit struct {
	log logx.Logger
}

func NewAudit(log logx.Logger) *Audit {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Audit{log: log.With(logx.String("receiver", string(IDAudit)))}
}

func (a *Audit) HandleMessage(msg *message.RawMessage) bool {
	return a.HandleMessageContext(context.Background(), msg)
}

func (a *Audit) HandlePayload(p notification.Payload) bool {
	return a.HandlePayloadContext(context.Background(), p)
}

func (a *Audit) HandleMessageContext(_ context.Context, msg *message.RawMessage) bool {
	if msg == nil {
		return false
	}
	a.log.Info("message received",
		logx.String("message_id", msg.MessageID),
		logx.String("from", msg.From),
		logx.Bool("notification", msg.HasNotification()),
		logx.Int("data_keys", len(msg.Data)),
	)
	if a.log.Enabled(logx.LevelDebug) {
		if raw, err := message.Encode(msg); err == nil {
			a.log.Debug("message body", logx.String("message_id", msg.MessageID), logx.String("raw", string(raw)))
		}
	}
	return false
}

func (a *Audit) HandlePayloadContext(_ context.Context, p notification.Payload) bool {
	a.log.Info("payload delivered",
		logx.String("id", p[notification.KeyID]),
		logx.String("type", p[notification.KeyMessageType]),
		logx.String("show", p[notification.KeyShowNotification]),
	)
	return false
}

// AddBuiltins puts the built-in factories into c. silent is plain, audit is
// revivable.
func AddBuiltins(c *Catalog, log logx.Logger) {
	c.Add(IDSilent, func(context.Context) (Receiver, error) { return Silent{}, nil })
	c.AddRevivable(IDAudit, func(context.Context) (Receiver, error) { return NewAudit(log), nil })
}

// EnableBuiltins registers the enabled built-ins on g. A built-in that is
// already live, revived or from an earlier call, is not registered twice.
func EnableBuiltins(ctx context.Context, g *Registry, enabled map[string]bool, log logx.Logger) {
	if enabled[string(IDSilent)] && !hasSilent(g.CurrentReceivers(ctx)) {
		g.Register(Silent{})
	}
	if enabled[string(IDAudit)] && !g.HasLive(ctx, IDAudit) {
		g.RegisterRevivable(ctx, IDAudit, NewAudit(log))
	}
}

func hasSilent(rs []Receiver) bool {
	for _, r := range rs {
		if _, ok := r.(Silent); ok {
			return true
		}
	}
	return false
}
