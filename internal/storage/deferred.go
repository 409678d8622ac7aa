package storage

import (
	"context"
	"sync"
)

// Deferred forwards to a backend attached later in the process lifetime.
// Until Attach is called every operation fails with ErrUnavailable.
type Deferred struct {
	mu sync.RWMutex
	st Store
}

func NewDeferred() *Deferred { return &Deferred{} }

// Attach installs the backend. Attaching nil detaches.
func (d *Deferred) Attach(st Store) {
	d.mu.Lock()
	d.st = st
	d.mu.Unlock()
}

func (d *Deferred) Attached() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.st != nil
}

func (d *Deferred) backend() Store {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.st
}

func (d *Deferred) LoadReceivers(ctx context.Context) ([]string, error) {
	st := d.backend()
	if st == nil {
		return nil, ErrUnavailable
	}
	return st.LoadReceivers(ctx)
}

func (d *Deferred) SaveReceivers(ctx context.Context, ids []string) error {
	st := d.backend()
	if st == nil {
		return ErrUnavailable
	}
	return st.SaveReceivers(ctx, ids)
}

func (d *Deferred) Close() error {
	d.mu.Lock()
	st := d.st
	d.st = nil
	d.mu.Unlock()
	if st == nil {
		return nil
	}
	return st.Close()
}
