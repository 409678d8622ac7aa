package delivery

import (
	"context"
	"errors"
	"html"
	"net/http"
	logx "pushrelay/pkg/logx"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"pushrelay/internal/notification"
)

// telegramCaptionLimit is the Bot API limit for photo captions; text messages
// allow more but a notification never needs it.
const telegramCaptionLimit = 1024

type TelegramConfig struct {
	Token      string
	ChatID     int64
	ThreadID   int
	RatePerSec int
	Timeout    time.Duration
}

// telegramSender is the part of *tele.Bot the renderer uses.
type telegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram renders notifications as messages in one chat (or forum thread).
type Telegram struct {
	cfg     TelegramConfig
	log     logx.Logger
	bot     telegramSender
	limiter *rate.Limiter
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return newTelegram(cfg, log, b), nil
}

func newTelegram(cfg TelegramConfig, log logx.Logger, bot telegramSender) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Telegram{cfg: cfg, log: log, bot: bot}
	if cfg.RatePerSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return t
}

func (t *Telegram) Render(ctx context.Context, d notification.Descriptor) error {
	opt, perr := d.RenderOptions()
	if perr != nil {
		t.log.Debug("render options partially malformed", logx.String("id", d.ID()), logx.Err(perr))
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := formatTelegram(d, opt)
	send := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ThreadID:              t.cfg.ThreadID,
		DisableNotification:   opt.Priority < notification.PriorityDefault,
		DisableWebPagePreview: true,
	}
	chat := &tele.Chat{ID: t.cfg.ChatID}

	var what interface{} = text
	if opt.Image != "" && opt.Visibility != notification.VisibilitySecret {
		what = &tele.Photo{File: tele.FromURL(opt.Image), Caption: truncate(text, telegramCaptionLimit)}
	}
	_, err := t.bot.Send(chat, what, send)
	return err
}

// formatTelegram builds the HTML message. Secret notifications only reveal
// that something arrived.
func formatTelegram(d notification.Descriptor, opt notification.RenderOptions) string {
	if opt.Visibility == notification.VisibilitySecret {
		return "<i>New notification</i>"
	}
	var b strings.Builder
	if title := d.Title(); title != "" {
		b.WriteString("<b>")
		b.WriteString(html.EscapeString(title))
		b.WriteString("</b>")
	}
	if body := d.Body(); body != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if opt.BodyHTML {
			b.WriteString(body)
		} else {
			b.WriteString(html.EscapeString(body))
		}
	}
	if tag := d.Tag(); tag != "" {
		b.WriteString("\n<code>#")
		b.WriteString(html.EscapeString(tag))
		b.WriteString("</code>")
	}
	return b.String()
}
