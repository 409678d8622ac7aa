package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrInvalid wraps every decode failure so transports can tell a bad payload
// (drop and acknowledge) from an infrastructure error.
var ErrInvalid = errors.New("invalid message")

// wireMessage accepts the loose shapes providers actually send: data values
// may be numbers or booleans, and sent_time/ttl may be strings.
type wireMessage struct {
	MessageID    string                     `json:"message_id"`
	From         string                     `json:"from"`
	CollapseKey  string                     `json:"collapse_key"`
	SentTime     json.RawMessage            `json:"sent_time"`
	TTL          json.RawMessage            `json:"ttl"`
	Notification *Notification              `json:"notification"`
	Data         map[string]json.RawMessage `json:"data"`
}

// Decode parses one JSON envelope.
func Decode(b []byte) (*RawMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalid)
	}
	var w wireMessage
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalid)
	}

	sent, err := looseInt("sent_time", w.SentTime)
	if err != nil {
		return nil, err
	}
	ttl, err := looseInt("ttl", w.TTL)
	if err != nil {
		return nil, err
	}

	m := &RawMessage{
		MessageID:    w.MessageID,
		From:         w.From,
		CollapseKey:  w.CollapseKey,
		SentTime:     sent,
		TTL:          ttl,
		Notification: w.Notification,
	}
	if w.Data != nil {
		m.Data = make(map[string]string, len(w.Data))
		for k, raw := range w.Data {
			v, err := looseString(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: data.%s: %v", ErrInvalid, k, err)
			}
			m.Data[k] = v
		}
	}
	return m, nil
}

// Encode is the inverse of Decode for the canonical shape.
func Encode(m *RawMessage) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalid)
	}
	return json.Marshal(m)
}

func looseInt(field string, raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
		}
		return v, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	return v, nil
}

func looseString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		// Nested structures are forwarded as compact JSON text.
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		// numbers, true/false
		return string(raw), nil
	}
}
