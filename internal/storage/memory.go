package storage

import (
	"context"
	"sync"
)

// Memory keeps the set in process memory. It never reports ErrUnavailable.
type Memory struct {
	mu  sync.Mutex
	ids []string
	// writes counts SaveReceivers calls (handy for tests asserting write amplification).
	writes int
}

func NewMemory(ids ...string) *Memory {
	return &Memory{ids: normalizeIDs(ids)}
}

func (m *Memory) LoadReceivers(ctx context.Context) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...), nil
}

func (m *Memory) SaveReceivers(ctx context.Context, ids []string) error {
	_ = ctx
	m.mu.Lock()
	m.ids = normalizeIDs(ids)
	m.writes++
	m.mu.Unlock()
	return nil
}

// Writes reports how many times the set has been saved.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Close() error { return nil }
