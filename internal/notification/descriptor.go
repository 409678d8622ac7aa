package notification

import "strconv"

// Payload is the mutable flat form offered to receivers during the payload
// stage and handed to sinks.
type Payload map[string]string

func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	cp := make(Payload, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// Descriptor is the canonical, fully merged notification. It is immutable:
// accessors return copies.
type Descriptor struct {
	flat     map[string]string
	resolved map[string]string
	msgType  string
	show     bool
	hasData  bool
}

// Get returns a key of the flat payload.
func (d Descriptor) Get(key string) (string, bool) {
	v, ok := d.flat[key]
	return v, ok
}

// Map returns a copy of the flat payload (data keys plus derived keys).
func (d Descriptor) Map() map[string]string {
	cp := make(map[string]string, len(d.flat))
	for k, v := range d.flat {
		cp[k] = v
	}
	return cp
}

// Payload is Map typed for the payload stage.
func (d Descriptor) Payload() Payload { return Payload(d.Map()) }

// Field returns a resolved field after precedence and reconciliation.
// Unlike Get it is never shadowed by a raw data key of the same name.
func (d Descriptor) Field(key string) string { return d.resolved[key] }

func (d Descriptor) ID() string             { return d.resolved[KeyID] }
func (d Descriptor) Tag() string            { return d.resolved[KeyTag] }
func (d Descriptor) Title() string          { return d.resolved[KeyTitle] }
func (d Descriptor) Body() string           { return d.resolved[KeyBody] }
func (d Descriptor) MessageType() string    { return d.msgType }
func (d Descriptor) ShowNotification() bool { return d.show }

// Deliverable is false for messages with no title, no body and no data; those
// carry nothing worth forwarding.
func (d Descriptor) Deliverable() bool {
	return d.resolved[KeyTitle] != "" || d.resolved[KeyBody] != "" || d.hasData
}

func formatInt(n int64) string { return strconv.FormatInt(n, 10) }
