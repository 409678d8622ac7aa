// Package relay is the entry point transports call for every inbound message.
// It runs the receiver chain, normalizes unclaimed messages, renders visible
// notifications and hands the payload to the sinks.
package relay

import (
	"context"
	"fmt"
	logx "pushrelay/pkg/logx"
	"time"

	"github.com/google/uuid"

	"pushrelay/internal/delivery"
	"pushrelay/internal/eventbus"
	"pushrelay/internal/message"
	"pushrelay/internal/notification"
	"pushrelay/internal/receiver"
)

// Outcomes reported in Result and to the Observer.
const (
	OutcomeHandled        = "handled"
	OutcomeDropped        = "dropped"
	OutcomeDelivered      = "delivered"
	OutcomePayloadHandled = "payload_handled"
	OutcomeFailed         = "failed"
)

// Observer records relayed messages (see internal/metrics).
type Observer interface {
	ObserveMessage(outcome string, took time.Duration)
}

type Deps struct {
	Registry   *receiver.Registry
	Normalizer *notification.Normalizer
	Renderer   notification.Renderer
	Sink       notification.Sink
	Bus        eventbus.Bus
	Observer   Observer
	Logger     logx.Logger
	// NewID returns the per-delivery correlation id (default: random UUID).
	NewID func() string
}

type Service struct {
	reg      *receiver.Registry
	norm     *notification.Normalizer
	renderer notification.Renderer
	sink     notification.Sink
	bus      eventbus.Bus
	obs      Observer
	log      logx.Logger
	newID    func() string
}

func New(deps Deps) *Service {
	s := &Service{
		reg:      deps.Registry,
		norm:     deps.Normalizer,
		renderer: deps.Renderer,
		sink:     deps.Sink,
		bus:      deps.Bus,
		obs:      deps.Observer,
		log:      deps.Logger,
		newID:    deps.NewID,
	}
	if s.reg == nil {
		s.reg = receiver.New(receiver.Deps{Logger: deps.Logger})
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.norm == nil {
		s.norm = notification.NewNormalizer(notification.WithLogger(s.log))
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func (s *Service) Registry() *receiver.Registry { return s.reg }

// Result describes what happened to one message.
type Result struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	// Handled is true when a receiver claimed the message or its payload.
	Handled bool `json:"handled"`
	Shown   bool `json:"shown"`
}

// OnMessage relays one inbound message. It never panics and never returns an
// error: faults are logged and the message is considered consumed, so a
// transport never redelivers it because of a bug downstream.
func (s *Service) OnMessage(ctx context.Context, msg *message.RawMessage) (res Result) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	res.ID = s.newID()
	log := s.log.With(logx.String("delivery_id", res.ID))
	ctx = delivery.WithDeliveryID(ctx, res.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while relaying message",
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 16)),
			)
			res.Outcome = OutcomeFailed
		}
		if s.obs != nil {
			s.obs.ObserveMessage(res.Outcome, time.Since(start))
		}
	}()

	if msg == nil {
		res.Outcome = OutcomeDropped
		return res
	}

	// Receivers see a copy; normalization reads the message as it arrived.
	if s.reg.Dispatch(ctx, msg.Clone()) {
		res.Outcome, res.Handled = OutcomeHandled, true
		log.Debug("message handled by receiver", logx.String("message_id", msg.MessageID))
		s.emit(eventbus.TypeHandled, res)
		return res
	}

	d := s.norm.Normalize(msg)
	if !d.Deliverable() {
		res.Outcome = OutcomeDropped
		log.Debug("empty message dropped", logx.String("message_id", msg.MessageID))
		s.emit(eventbus.TypeDropped, res)
		return res
	}

	if d.ShowNotification() && s.renderer != nil {
		if err := s.renderer.Render(ctx, d); err != nil {
			log.Warn("render notification failed", logx.String("id", d.ID()), logx.Err(err))
			s.emit(eventbus.TypeRenderFailed, fmt.Sprintf("%s: %v", res.ID, err))
		} else {
			res.Shown = true
		}
	}

	p := d.Payload()
	if s.reg.DispatchPayload(ctx, p) {
		res.Outcome, res.Handled = OutcomePayloadHandled, true
		log.Debug("payload handled by receiver", logx.String("id", d.ID()))
		return res
	}

	res.Outcome = OutcomeDelivered
	if s.sink != nil {
		if err := s.sink.Deliver(ctx, p); err != nil {
			log.Warn("deliver payload failed", logx.String("id", d.ID()), logx.Err(err))
		}
	}
	return res
}

func (s *Service) emit(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
