package message

import (
	"errors"
	"testing"
)

func TestDecodeFullEnvelope(t *testing.T) {
	in := `{
		"message_id": "0:1700",
		"from": "/topics/news",
		"collapse_key": "news",
		"sent_time": 1700000000000,
		"ttl": "3600",
		"notification": {"title": "Hi", "body": "there", "tag": "promo", "title_loc_args": ["a"]},
		"data": {"count": 3, "flag": true, "empty": "", "nested": {"a": 1}}
	}`
	m, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.MessageID != "0:1700" || m.From != "/topics/news" || m.CollapseKey != "news" {
		t.Fatalf("envelope fields not decoded: %+v", m)
	}
	if m.SentTime != 1700000000000 || m.TTL != 3600 {
		t.Fatalf("sent_time/ttl = %d/%d", m.SentTime, m.TTL)
	}
	if !m.HasNotification() || m.Notification.Title != "Hi" || m.Notification.Tag != "promo" {
		t.Fatalf("notification = %+v", m.Notification)
	}
	if got := m.Data["count"]; got != "3" {
		t.Fatalf("data.count = %q, want 3", got)
	}
	if got := m.Data["flag"]; got != "true" {
		t.Fatalf("data.flag = %q, want true", got)
	}
	if got := m.Data["nested"]; got != `{"a":1}` {
		t.Fatalf("data.nested = %q", got)
	}
	if v, ok := m.DataValue("empty"); !ok || v != "" {
		t.Fatalf("present-but-empty key lost: %q %v", v, ok)
	}
	if _, ok := m.DataValue("missing"); ok {
		t.Fatalf("missing key reported present")
	}
}

func TestDecodeDataOnly(t *testing.T) {
	m, err := Decode([]byte(`{"data":{"notification_title":"x"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.HasNotification() {
		t.Fatalf("data-only message should not carry a notification")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for name, in := range map[string]string{
		"empty":    "  ",
		"broken":   "{",
		"trailing": `{"from":"a"}{"from":"b"}`,
		"ttl":      `{"ttl":"soon"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(in)); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := &RawMessage{
		Notification: &Notification{Title: "a", TitleLocArgs: []string{"x"}},
		Data:         map[string]string{"k": "v"},
	}
	cp := m.Clone()
	cp.Notification.Title = "b"
	cp.Notification.TitleLocArgs[0] = "y"
	cp.Data["k"] = "changed"
	if m.Notification.Title != "a" || m.Notification.TitleLocArgs[0] != "x" || m.Data["k"] != "v" {
		t.Fatalf("clone shares state with original: %+v %+v", m.Notification, m.Data)
	}
}
