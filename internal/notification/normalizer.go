package notification

import (
	"math/rand/v2"
	logx "pushrelay/pkg/logx"
	"strconv"

	"pushrelay/internal/message"
)

// randomIDMax bounds synthesized ids to [1, randomIDMax].
const randomIDMax = 50

type Normalizer struct {
	state AppState
	loc   Localizer
	log   logx.Logger
	// intn returns a value in [0, n).
	intn func(n int) int
}

type Option func(*Normalizer)

func WithAppState(s AppState) Option { return func(n *Normalizer) { n.state = s } }

func WithLocalizer(l Localizer) Option { return func(n *Normalizer) { n.loc = l } }

func WithLogger(log logx.Logger) Option { return func(n *Normalizer) { n.log = log } }

// WithRandom replaces the id source. fn must return a value in [0, n).
func WithRandom(fn func(n int) int) Option { return func(n *Normalizer) { n.intn = fn } }

func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, o := range opts {
		o(n)
	}
	if n.state == nil {
		n.state = NewState(false, nil)
	}
	if n.log.IsZero() {
		n.log = logx.Nop()
	}
	if n.intn == nil {
		n.intn = rand.IntN
	}
	return n
}

// Normalize merges both payload channels of msg into a Descriptor.
func (n *Normalizer) Normalize(msg *message.RawMessage) Descriptor {
	if msg == nil {
		msg = &message.RawMessage{}
	}
	resolved := make(map[string]string, len(derivedOrder))
	msgType := MessageTypeData

	if nt := msg.Notification; nt != nil {
		msgType = MessageTypeNotification
		setIfNotEmpty(resolved, KeyID, msg.MessageID)
		setIfNotEmpty(resolved, KeyTitle, nt.Title)
		setIfNotEmpty(resolved, KeyBody, nt.Body)
		setIfNotEmpty(resolved, KeyTag, nt.Tag)
		setIfNotEmpty(resolved, KeySound, nt.Sound)
		setIfNotEmpty(resolved, KeyColor, nt.Color)
		setIfNotEmpty(resolved, KeyIcon, nt.Icon)
		setIfNotEmpty(resolved, KeyChannelID, nt.ChannelID)
		setIfNotEmpty(resolved, KeyImage, nt.ImageURL)
		if nt.TitleLocKey != "" {
			n.localize(resolved, KeyTitle, nt.TitleLocKey, nt.TitleLocArgs)
		}
		if nt.BodyLocKey != "" {
			n.localize(resolved, KeyBody, nt.BodyLocKey, nt.BodyLocArgs)
		}
	}

	foreground := false
	if _, ok := msg.Data[DataForeground]; ok {
		foreground = true
	}
	for dataKey, field := range DataKeys {
		if v, ok := msg.Data[dataKey]; ok {
			resolved[field] = v
		}
	}

	// An empty tag would collapse unrelated notifications together.
	if resolved[KeyTag] == "" {
		delete(resolved, KeyTag)
	} else {
		resolved[KeyID] = resolved[KeyTag]
	}

	if resolved[KeyID] == "" {
		resolved[KeyID] = strconv.Itoa(n.intn(randomIDMax) + 1)
	}

	hasText := resolved[KeyTitle] != "" || resolved[KeyBody] != ""
	show := (n.state.InBackground() || !n.state.HasMessageCallback() || foreground) && hasText

	flat := make(map[string]string, len(msg.Data)+len(derivedOrder)+6)
	for k, v := range msg.Data {
		flat[k] = v
	}
	flat[KeyMessageType] = msgType
	for _, k := range derivedOrder {
		if v, ok := resolved[k]; ok {
			putIfAbsent(flat, k, v)
		}
	}
	putIfAbsent(flat, KeyShowNotification, strconv.FormatBool(show))
	if msg.From != "" {
		putIfAbsent(flat, KeyFrom, msg.From)
	}
	if msg.CollapseKey != "" {
		putIfAbsent(flat, KeyCollapseKey, msg.CollapseKey)
	}
	putIfAbsent(flat, KeySentTime, formatInt(msg.SentTime))
	putIfAbsent(flat, KeyTTL, formatInt(msg.TTL))

	d := Descriptor{
		flat:     flat,
		resolved: resolved,
		msgType:  msgType,
		show:     show,
		hasData:  len(msg.Data) > 0,
	}

	if n.log.Enabled(logx.LevelDebug) {
		n.log.Debug("message normalized",
			logx.String("type", msgType),
			logx.String("id", d.ID()),
			logx.String("tag", d.Tag()),
			logx.String("from", msg.From),
			logx.Bool("show", show),
			logx.Int("data_keys", len(msg.Data)),
		)
	}
	return d
}

func (n *Normalizer) localize(resolved map[string]string, field, key string, args []string) {
	if n.loc == nil {
		n.log.Debug("no localizer configured; keeping raw text", logx.String("field", field), logx.String("loc_key", key))
		return
	}
	if s, ok := n.loc.Localize(key, args); ok {
		resolved[field] = s
		return
	}
	n.log.Info("localization key not found", logx.String("field", field), logx.String("loc_key", key))
}

func setIfNotEmpty(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

// putIfAbsent never overwrites a key already copied from the data map.
func putIfAbsent(m map[string]string, k, v string) {
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}
