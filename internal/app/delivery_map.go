package app

import (
	"errors"
	"io"
	logx "pushrelay/pkg/logx"
	"strings"
	"time"

	"pushrelay/internal/config"
	"pushrelay/internal/delivery"
	"pushrelay/internal/eventbus"
)

// outputs holds the delivery side built from config. closers are released on
// stop.
type outputs struct {
	renderers delivery.Renderers
	sinks     delivery.Sinks
	closers   []io.Closer
}

func (o *outputs) Close() error {
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c.Close())
	}
	o.closers = nil
	return errors.Join(errs...)
}

// buildOutputs maps the delivery section. The bus sink is always present so
// in-process message callbacks see every delivered payload.
func buildOutputs(cfg *config.Config, bus eventbus.Bus, log logx.Logger) (*outputs, error) {
	out := &outputs{}
	dc := cfg.Delivery

	if tg := dc.Telegram; tg != nil {
		timeout, err := config.ParseDurationOrDefault("delivery.telegram.timeout", tg.Timeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		r, err := delivery.NewTelegram(delivery.TelegramConfig{
			Token:      tg.Token,
			ChatID:     tg.ChatID,
			ThreadID:   tg.ThreadID,
			RatePerSec: tg.RatePerSec,
			Timeout:    timeout,
		}, log.With(logx.String("renderer", "telegram")))
		if err != nil {
			return nil, err
		}
		out.renderers = append(out.renderers, delivery.Named{Name: "telegram", Renderer: r})
	}
	if dt := dc.Desktop; dt != nil && dt.Enabled {
		r := delivery.NewDesktop(delivery.DesktopConfig{AppName: dt.AppName, Icon: dt.Icon})
		out.renderers = append(out.renderers, delivery.Named{Name: "desktop", Renderer: r})
	}

	out.sinks = append(out.sinks, delivery.Named{Name: "bus", Sink: delivery.NewBus(bus)})
	if ls := dc.Log; ls != nil && ls.Enabled {
		out.sinks = append(out.sinks, delivery.Named{Name: "log", Sink: delivery.NewLog(log.With(logx.String("sink", "log")))})
	}
	if ns := dc.NATS; ns != nil {
		url := strings.TrimSpace(ns.URL)
		if url == "" && cfg.Ingress.NATS != nil {
			url = cfg.Ingress.NATS.URL
		}
		s, err := delivery.DialNATS(url, ns.Subject)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		out.closers = append(out.closers, s)
		out.sinks = append(out.sinks, delivery.Named{Name: "nats", Sink: s})
	}
	return out, nil
}
