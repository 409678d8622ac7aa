package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	logx "pushrelay/pkg/logx"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/message"
	"pushrelay/internal/notification"
)

func descriptor(data map[string]string, n *message.Notification) notification.Descriptor {
	return notification.NewNormalizer().Normalize(&message.RawMessage{Notification: n, Data: data})
}

type sentMessage struct {
	to   tele.Recipient
	what interface{}
	opt  *tele.SendOptions
}

type fakeBot struct {
	sent []sentMessage
	err  error
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	var opt *tele.SendOptions
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			opt = so
		}
	}
	f.sent = append(f.sent, sentMessage{to: to, what: what, opt: opt})
	return &tele.Message{ID: len(f.sent)}, f.err
}

func TestTelegramRendersEscapedText(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(TelegramConfig{ChatID: 42, ThreadID: 7}, logx.Nop(), bot)

	d := descriptor(map[string]string{"notification_tag": "promo"}, &message.Notification{Title: "Sale <now>", Body: "50% & more"})
	if err := tg.Render(context.Background(), d); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent=%d want 1", len(bot.sent))
	}
	got := bot.sent[0]
	if got.to.Recipient() != "42" {
		t.Fatalf("recipient=%q", got.to.Recipient())
	}
	text, _ := got.what.(string)
	want := "<b>Sale &lt;now&gt;</b>\n50% &amp; more\n<code>#promo</code>"
	if text != want {
		t.Fatalf("text=%q want %q", text, want)
	}
	if got.opt.ThreadID != 7 || got.opt.ParseMode != tele.ModeHTML || got.opt.DisableNotification {
		t.Fatalf("opts=%+v", got.opt)
	}
}

func TestTelegramOptions(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(TelegramConfig{ChatID: 1}, logx.Nop(), bot)

	d := descriptor(map[string]string{
		"notification_title":              "t",
		"notification_android_priority":   "-2",
		"notification_android_image":      "https://example.com/a.png",
		"notification_android_body_html":  "1",
		"notification_body":               "<i>raw</i>",
		"notification_android_visibility": "bogus",
	}, nil)
	if err := tg.Render(context.Background(), d); err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := bot.sent[0]
	photo, ok := got.what.(*tele.Photo)
	if !ok {
		t.Fatalf("want photo, got %T", got.what)
	}
	if photo.FileURL != "https://example.com/a.png" || !strings.Contains(photo.Caption, "<i>raw</i>") {
		t.Fatalf("photo=%+v", photo)
	}
	if !got.opt.DisableNotification {
		t.Fatalf("low priority should be silent")
	}
}

func TestTelegramSecretHidesContent(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(TelegramConfig{ChatID: 1}, logx.Nop(), bot)
	d := descriptor(map[string]string{
		"notification_title":              "secret title",
		"notification_android_visibility": "-1",
	}, nil)
	if err := tg.Render(context.Background(), d); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if text := bot.sent[0].what.(string); strings.Contains(text, "secret") {
		t.Fatalf("secret leaked: %q", text)
	}
}

func TestTelegramHonoursCancellation(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(TelegramConfig{ChatID: 1, RatePerSec: 1}, logx.Nop(), bot)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tg.Render(ctx, descriptor(map[string]string{"notification_title": "x"}, nil)); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if len(bot.sent) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestNewTelegramRequiresToken(t *testing.T) {
	if _, err := NewTelegram(TelegramConfig{ChatID: 1}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := NewTelegram(TelegramConfig{Token: "x"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty chat id")
	}
}

func TestDesktop(t *testing.T) {
	type call struct {
		kind, title, body string
		icon              any
	}
	var calls []call
	d := &Desktop{
		cfg: DesktopConfig{Icon: "default.png"},
		notify: func(title, body string, icon any) error {
			calls = append(calls, call{"notify", title, body, icon})
			return nil
		},
		alert: func(title, body string, icon any) error {
			calls = append(calls, call{"alert", title, body, icon})
			return nil
		},
	}

	_ = d.Render(context.Background(), descriptor(nil, &message.Notification{Title: "a", Body: strings.Repeat("x", 300)}))
	_ = d.Render(context.Background(), descriptor(map[string]string{
		"notification_title":            "b",
		"notification_android_priority": "2",
		"notification_android_sound":    "default",
		"notification_android_icon":     "custom.png",
	}, nil))

	if len(calls) != 2 {
		t.Fatalf("calls=%d want 2", len(calls))
	}
	if calls[0].kind != "notify" || len([]rune(calls[0].body)) != desktopBodyLimit || calls[0].icon != "default.png" {
		t.Fatalf("first call=%+v", calls[0])
	}
	if calls[1].kind != "alert" || calls[1].icon != "custom.png" {
		t.Fatalf("second call=%+v", calls[1])
	}
}

type fakePublisher struct {
	subject string
	data    []byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return nil
}

func TestNATSSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATS(pub, "push.out")
	if err := s.Deliver(context.Background(), map[string]string{"id": "7"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(pub.data, &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if pub.subject != "push.out" || got["id"] != "7" {
		t.Fatalf("subject=%q payload=%v", pub.subject, got)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLog(logx.NewWriter(&buf, "info"))
	if err := s.Deliver(context.Background(), map[string]string{"id": "3", "title": "hi"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "notification delivered") || !strings.Contains(out, `"id":"3"`) {
		t.Fatalf("log output=%q", out)
	}
}

func TestBusSinkReachesCallbacks(t *testing.T) {
	bus := eventbus.New()
	cb := eventbus.NewCallbacks(bus)
	ch, stop := cb.Subscribe(4)
	defer stop()

	ctx := WithDeliveryID(context.Background(), "d-1")
	if err := NewBus(bus).Deliver(ctx, map[string]string{"id": "1"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	select {
	case d := <-ch:
		if d.DeliveryID != "d-1" || d.Payload["id"] != "1" {
			t.Fatalf("delivered=%+v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("callback did not receive payload")
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var seen []string
	sinks := Sinks{
		Named{Name: "bad", Sink: notification.SinkFunc(func(context.Context, map[string]string) error { return boom })},
		notification.SinkFunc(func(_ context.Context, p map[string]string) error {
			seen = append(seen, p["id"])
			p["id"] = "mutated"
			return nil
		}),
		notification.SinkFunc(func(_ context.Context, p map[string]string) error {
			seen = append(seen, p["id"])
			return nil
		}),
	}
	err := sinks.Deliver(context.Background(), map[string]string{"id": "1"})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("err=%v", err)
	}
	if len(seen) != 2 || seen[0] != "1" || seen[1] != "1" {
		t.Fatalf("sinks must get independent copies, seen=%v", seen)
	}

	rendered := 0
	rs := Renderers{
		notification.RendererFunc(func(context.Context, notification.Descriptor) error { return boom }),
		notification.RendererFunc(func(context.Context, notification.Descriptor) error { rendered++; return nil }),
	}
	if err := rs.Render(context.Background(), notification.Descriptor{}); !errors.Is(err, boom) || rendered != 1 {
		t.Fatalf("err=%v rendered=%d", err, rendered)
	}
}
