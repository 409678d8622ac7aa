package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	logx "pushrelay/pkg/logx"
	"strings"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"pushrelay/internal/message"
	"pushrelay/internal/relay"
)

type NATSConfig struct {
	URL     string
	Subject string
	// Queue joins a queue group so several relays share one subject.
	Queue string
}

// NATS subscribes to a subject and relays every message published on it.
// Requests (messages with a reply subject) are answered with the result.
type NATS struct {
	cfg NATSConfig
	h   Handler
	log logx.Logger
}

func NewNATS(cfg NATSConfig, h Handler, log logx.Logger) (*NATS, error) {
	if strings.TrimSpace(cfg.Subject) == "" {
		return nil, errors.New("nats ingress subject is empty")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = natspkg.DefaultURL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &NATS{cfg: cfg, h: h, log: log}, nil
}

// Run connects, subscribes and blocks until ctx is done. The subscription is
// drained before returning so in-flight messages finish.
func (n *NATS) Run(ctx context.Context) error {
	nc, err := natspkg.Connect(n.cfg.URL,
		natspkg.Name("pushrelay"),
		natspkg.MaxReconnects(-1),
		natspkg.ReconnectWait(time.Second),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			if err != nil {
				n.log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		natspkg.ReconnectHandler(func(c *natspkg.Conn) {
			n.log.Info("nats reconnected", logx.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	cb := func(m *natspkg.Msg) { n.onMsg(ctx, m) }
	var sub *natspkg.Subscription
	if n.cfg.Queue != "" {
		sub, err = nc.QueueSubscribe(n.cfg.Subject, n.cfg.Queue, cb)
	} else {
		sub, err = nc.Subscribe(n.cfg.Subject, cb)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", n.cfg.Subject, err)
	}
	n.log.Info("nats ingress subscribed",
		logx.String("subject", n.cfg.Subject),
		logx.String("queue", n.cfg.Queue),
	)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		n.log.Warn("nats drain failed", logx.Err(err))
	}
	return nil
}

func (n *NATS) onMsg(ctx context.Context, m *natspkg.Msg) {
	res, err := n.relay(ctx, m.Data)
	if m.Reply == "" {
		return
	}
	var reply []byte
	if err != nil {
		reply, _ = json.Marshal(map[string]string{"error": err.Error()})
	} else {
		reply, _ = json.Marshal(acceptedResponse{Handled: res.Handled, ID: res.ID, Outcome: res.Outcome})
	}
	if rerr := m.Respond(reply); rerr != nil {
		n.log.Debug("nats respond failed", logx.Err(rerr))
	}
}

// relay decodes and relays one payload. Undecodable payloads are logged and
// dropped; redelivery would not fix them.
func (n *NATS) relay(ctx context.Context, data []byte) (relay.Result, error) {
	msg, err := message.Decode(data)
	if err != nil {
		n.log.Warn("dropping undecodable message", logx.Int("bytes", len(data)), logx.Err(err))
		return relay.Result{}, err
	}
	return n.h.OnMessage(ctx, msg), nil
}
