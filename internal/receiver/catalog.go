package receiver

import (
	"sort"
	"strings"
	"sync"
)

// Entry describes how to rebuild a receiver.
type Entry struct {
	Factory   Factory
	Revivable bool
}

// Catalog maps identities to factories. It is filled at process start; the
// persisted set is filtered through it on every load.
type Catalog struct {
	mu      sync.RWMutex
	entries map[Identity]Entry
}

func NewCatalog() *Catalog {
	return &Catalog{entries: map[Identity]Entry{}}
}

// Add registers a non-revivable identity. Persisted copies of it are dropped
// on load.
func (c *Catalog) Add(id Identity, f Factory) {
	c.put(id, Entry{Factory: f})
}

// AddRevivable registers an identity whose receiver is rebuilt after restart.
func (c *Catalog) AddRevivable(id Identity, f Factory) {
	c.put(id, Entry{Factory: f, Revivable: true})
}

func (c *Catalog) put(id Identity, e Entry) {
	id = Identity(strings.TrimSpace(string(id)))
	if id == "" {
		return
	}
	c.mu.Lock()
	c.entries[id] = e
	c.mu.Unlock()
}

func (c *Catalog) Lookup(id Identity) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// IsRevivable reports whether id is known and revivable.
func (c *Catalog) IsRevivable(id Identity) bool {
	e, ok := c.Lookup(id)
	return ok && e.Revivable
}

// Identities returns the registered identities, sorted.
func (c *Catalog) Identities() []Identity {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	out := make([]Identity, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
