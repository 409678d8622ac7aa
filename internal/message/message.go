// Package message models inbound push messages as they arrive from a
// transport, before any receiver or normalization has looked at them.
package message

// RawMessage is the inbound envelope. Both payload channels are optional:
// Notification carries the structured fields, Data is a free-form string map.
type RawMessage struct {
	MessageID    string            `json:"message_id,omitempty"`
	From         string            `json:"from,omitempty"`
	CollapseKey  string            `json:"collapse_key,omitempty"`
	SentTime     int64             `json:"sent_time,omitempty"` // unix millis
	TTL          int64             `json:"ttl,omitempty"`       // seconds
	Notification *Notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

// Notification is the structured notification sub-object.
type Notification struct {
	Title        string   `json:"title,omitempty"`
	TitleLocKey  string   `json:"title_loc_key,omitempty"`
	TitleLocArgs []string `json:"title_loc_args,omitempty"`
	Body         string   `json:"body,omitempty"`
	BodyLocKey   string   `json:"body_loc_key,omitempty"`
	BodyLocArgs  []string `json:"body_loc_args,omitempty"`
	Tag          string   `json:"tag,omitempty"`
	Sound        string   `json:"sound,omitempty"`
	Color        string   `json:"color,omitempty"`
	Icon         string   `json:"icon,omitempty"`
	ChannelID    string   `json:"channel_id,omitempty"`
	ImageURL     string   `json:"image,omitempty"`
}

// HasNotification reports whether the structured channel is present.
func (m *RawMessage) HasNotification() bool {
	return m != nil && m.Notification != nil
}

// DataValue returns a data-map entry and whether the key was present at all.
// Present-but-empty values are reported as present.
func (m *RawMessage) DataValue(key string) (string, bool) {
	if m == nil || m.Data == nil {
		return "", false
	}
	v, ok := m.Data[key]
	return v, ok
}

// Clone returns a deep copy so receivers can't mutate what later stages see.
func (m *RawMessage) Clone() *RawMessage {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Notification != nil {
		n := *m.Notification
		n.TitleLocArgs = append([]string(nil), m.Notification.TitleLocArgs...)
		n.BodyLocArgs = append([]string(nil), m.Notification.BodyLocArgs...)
		cp.Notification = &n
	}
	if m.Data != nil {
		cp.Data = make(map[string]string, len(m.Data))
		for k, v := range m.Data {
			cp.Data[k] = v
		}
	}
	return &cp
}
