package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// DefaultKey is the logical entry holding the revivable receiver identities.
const DefaultKey = "receivers.static"

var (
	// ErrUnavailable means the backend cannot be reached right now.
	// Callers treat it as transient and retry on their next call.
	ErrUnavailable = errors.New("storage unavailable")
	ErrDisabled    = errors.New("storage disabled")
)

// Store is the persistence boundary used by the receiver registry.
type Store interface {
	// LoadReceivers returns the persisted identities. A set that was never
	// written loads as empty.
	LoadReceivers(ctx context.Context) ([]string, error)
	// SaveReceivers replaces the persisted set with ids.
	SaveReceivers(ctx context.Context, ids []string) error
	Close() error
}

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver string
	Key    string

	Path        string        // file, sqlite, bolt
	BusyTimeout time.Duration // sqlite only; 0 means default

	DSN string // postgres

	Addr     string // redis
	Password string // redis
	DB       int    // redis

	DialTimeout time.Duration // redis, postgres
}

func (c Config) key() string {
	if k := strings.TrimSpace(c.Key); k != "" {
		return k
	}
	return DefaultKey
}

// normalizeIDs trims, drops empties and duplicates, and sorts so snapshots are
// stable across drivers.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
