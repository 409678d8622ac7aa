package receiver

import (
	"context"
	"errors"
	logx "pushrelay/pkg/logx"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/storage"
)

// State is the registry initialization state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

const defaultStoreTimeout = 5 * time.Second

type entry struct {
	id        Identity
	revivable bool
	r         Receiver
}

// Deps are the registry collaborators. Store and Catalog may be nil: a nil
// store keeps the set in memory, a nil catalog knows no identities.
type Deps struct {
	Store   storage.Store
	Catalog *Catalog
	Logger  logx.Logger
	Bus     eventbus.Bus
	// StoreTimeout bounds folds issued by RegisterRevivable (default 5s).
	StoreTimeout time.Duration
}

// Registry owns the live receiver list and the persisted identity set.
//
// Lock order: initMu, then persistMu, then mu. initMu is held for a whole
// revival pass, persistMu for every store write, mu only for list access.
type Registry struct {
	store        storage.Store
	catalog      *Catalog
	log          logx.Logger
	bus          eventbus.Bus
	storeTimeout time.Duration

	state     atomic.Int32
	initMu    sync.Mutex
	persistMu sync.Mutex

	mu      sync.RWMutex
	live    []entry
	last    *RevivalReport
	lastErr error
	passes  int

	panics atomic.Uint64
}

func New(deps Deps) *Registry {
	g := &Registry{
		store:        deps.Store,
		catalog:      deps.Catalog,
		log:          deps.Logger,
		bus:          deps.Bus,
		storeTimeout: deps.StoreTimeout,
	}
	if g.store == nil {
		g.store = storage.NewMemory()
	}
	if g.catalog == nil {
		g.catalog = NewCatalog()
	}
	if g.log.IsZero() {
		g.log = logx.Nop()
	}
	if g.storeTimeout <= 0 {
		g.storeTimeout = defaultStoreTimeout
	}
	return g
}

func (g *Registry) State() State { return State(g.state.Load()) }

// Register appends a receiver that is never persisted.
func (g *Registry) Register(r Receiver) {
	if r == nil {
		return
	}
	g.mu.Lock()
	g.live = append(g.live, entry{r: r})
	n := len(g.live)
	g.mu.Unlock()
	g.log.Debug("receiver registered", logx.Int("live", n))
}

// RegisterRevivable appends r and folds id into the persisted set.
//
// An uninitialized registry runs revival first, so an identity already in the
// store is not constructed a second time on the next dispatch. While a pass is
// running the registration does not wait for it: the fold is left to the
// pass's final save.
func (g *Registry) RegisterRevivable(ctx context.Context, id Identity, r Receiver) {
	if ctx == nil {
		ctx = context.Background()
	}
	id = Identity(strings.TrimSpace(string(id)))
	if r == nil {
		return
	}
	if id == "" {
		g.log.Warn("revivable receiver without identity; registering as plain receiver")
		g.Register(r)
		return
	}
	if g.State() == StateUninitialized && !inPass(ctx, g) {
		g.EnsureInitialized(ctx)
	}

	g.mu.Lock()
	g.live = append(g.live, entry{id: id, revivable: true, r: r})
	st := g.State()
	g.mu.Unlock()

	if !g.catalog.IsRevivable(id) {
		g.log.Warn("receiver identity is not revivable in catalog; not persisted",
			logx.String("receiver", string(id)))
		return
	}
	if st == StateInitializing {
		g.log.Debug("fold deferred to revival save", logx.String("receiver", string(id)))
		return
	}

	fctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()
	if err := g.fold(fctx, id); err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			g.log.Debug("store unavailable; fold skipped", logx.String("receiver", string(id)))
			return
		}
		g.log.Warn("persist receiver identity failed", logx.String("receiver", string(id)), logx.Err(err))
	}
}

// fold adds id to the persisted set. Stale entries found on load are purged by
// the same write. No write happens when nothing changed.
func (g *Registry) fold(ctx context.Context, id Identity) error {
	g.persistMu.Lock()
	defer g.persistMu.Unlock()

	raw, err := g.store.LoadReceivers(ctx)
	if err != nil {
		return err
	}
	set, dropped := g.filter(raw)
	changed := len(dropped) > 0
	if !containsID(set, id) {
		set = append(set, id)
		changed = true
	}
	if !changed {
		return nil
	}
	return g.store.SaveReceivers(ctx, identityStrings(set))
}

// filter splits persisted ids into those the catalog can still revive and the
// stale rest.
func (g *Registry) filter(raw []string) (keep []Identity, dropped []Dropped) {
	seen := make(map[Identity]struct{}, len(raw))
	for _, s := range raw {
		id := Identity(strings.TrimSpace(s))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		e, ok := g.catalog.Lookup(id)
		switch {
		case !ok:
			dropped = append(dropped, Dropped{ID: id, Reason: ReasonStaleUnknown})
		case !e.Revivable:
			dropped = append(dropped, Dropped{ID: id, Reason: ReasonStaleNotRevivable})
		default:
			keep = append(keep, id)
		}
	}
	return keep, dropped
}

// CurrentReceivers makes sure revival ran and returns a snapshot of the live
// list in registration order.
func (g *Registry) CurrentReceivers(ctx context.Context) []Receiver {
	g.EnsureInitialized(ctx)
	return g.snapshot()
}

func (g *Registry) snapshot() []Receiver {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Receiver, len(g.live))
	for i, e := range g.live {
		out[i] = e.r
	}
	return out
}

// EnsureInitialized runs the revival pass at most once per registry. It
// reports whether the registry is ready; false means the store was
// unavailable and the pass will be retried by the next call.
//
// Calls made from a factory running inside the pass return false at once.
func (g *Registry) EnsureInitialized(ctx context.Context) bool {
	if g.State() == StateReady {
		return true
	}
	if inPass(ctx, g) {
		return false
	}
	g.initMu.Lock()
	defer g.initMu.Unlock()
	if g.State() == StateReady {
		return true
	}
	g.revive(ctx)
	return g.State() == StateReady
}

// Initialize is EnsureInitialized for application start: it returns the
// store error when the pass had to be postponed.
func (g *Registry) Initialize(ctx context.Context) error {
	if g.EnsureInitialized(ctx) {
		return nil
	}
	g.mu.RLock()
	err := g.lastErr
	g.mu.RUnlock()
	if err == nil {
		err = storage.ErrUnavailable
	}
	return err
}

func (g *Registry) setState(s State) {
	g.mu.Lock()
	g.state.Store(int32(s))
	g.mu.Unlock()
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	State      string         `json:"state"`
	Live       int            `json:"live"`
	Revivable  []Identity     `json:"revivable"`
	Passes     int            `json:"passes"`
	Panics     uint64         `json:"panics"`
	LastReport *RevivalReport `json:"last_revival,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
}

func (g *Registry) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := Stats{
		State:     g.State().String(),
		Live:      len(g.live),
		Revivable: revivableIDs(g.live, nil),
		Passes:    g.passes,
		Panics:    g.panics.Load(),
	}
	if g.last != nil {
		rep := *g.last
		st.LastReport = &rep
	}
	if g.lastErr != nil {
		st.LastError = g.lastErr.Error()
	}
	return st
}

func (g *Registry) emit(typ string, data any) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// revivableIDs lists distinct revivable identities of the live list,
// optionally restricted by keep.
func revivableIDs(live []entry, keep func(Identity) bool) []Identity {
	seen := map[Identity]struct{}{}
	var out []Identity
	for _, e := range live {
		if !e.revivable || e.id == "" {
			continue
		}
		if _, ok := seen[e.id]; ok {
			continue
		}
		if keep != nil && !keep(e.id) {
			continue
		}
		seen[e.id] = struct{}{}
		out = append(out, e.id)
	}
	return out
}

func containsID(ids []Identity, id Identity) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func identityStrings(ids []Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// HasLive reports whether a revivable receiver with id is live. It runs
// revival first so a revived instance is seen.
func (g *Registry) HasLive(ctx context.Context, id Identity) bool {
	g.EnsureInitialized(ctx)
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasRevivable(id)
}

// hasRevivable reports whether id already has a live revivable instance.
// The caller holds mu.
func (g *Registry) hasRevivable(id Identity) bool {
	for _, e := range g.live {
		if e.revivable && e.id == id {
			return true
		}
	}
	return false
}
