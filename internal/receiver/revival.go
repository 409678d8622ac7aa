package receiver

import (
	"context"
	"errors"
	"fmt"
	logx "pushrelay/pkg/logx"
	"time"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/storage"
)

// Drop reasons reported in RevivalReport.
const (
	ReasonStaleUnknown      = "stale_unknown"
	ReasonStaleNotRevivable = "stale_not_revivable"
	ReasonNotConstructible  = "not_constructible"
)

type Dropped struct {
	ID     Identity `json:"id"`
	Reason string   `json:"reason"`
}

// RevivalReport summarizes one revival pass.
type RevivalReport struct {
	Revived  []Identity    `json:"revived"`
	Retained []Identity    `json:"retained"`
	Dropped  []Dropped     `json:"dropped"`
	Saved    []Identity    `json:"saved"`
	Took     time.Duration `json:"took"`
	LoadErr  string        `json:"load_error,omitempty"`
	SaveErr  string        `json:"save_error,omitempty"`
}

type passKey struct{}

// inPass reports whether ctx belongs to a revival pass of g.
func inPass(ctx context.Context, g *Registry) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(passKey{}).(*Registry)
	return owner == g
}

type outcome int

const (
	built outcome = iota
	faulted
	structural
)

// revive runs one pass. The caller holds initMu.
func (g *Registry) revive(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	g.setState(StateInitializing)
	pctx := context.WithValue(ctx, passKey{}, g)

	raw, err := g.store.LoadReceivers(pctx)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			g.mu.Lock()
			g.lastErr = err
			g.state.Store(int32(StateUninitialized))
			g.mu.Unlock()
			g.log.Info("receiver store unavailable; revival postponed", logx.Err(err))
			g.emit(eventbus.TypeRevivalPostponed, nil)
			return
		}
		// A store we cannot read is not overwritten: nothing is revived and the
		// snapshot stays as it was.
		rep := &RevivalReport{LoadErr: err.Error(), Took: time.Since(start)}
		g.log.Error("load persisted receivers failed; nothing revived", logx.Err(err))
		g.finish(rep, err)
		return
	}

	rep := &RevivalReport{}
	ids, dropped := g.filter(raw)
	for _, d := range dropped {
		g.log.Info("dropping stale receiver identity",
			logx.String("receiver", string(d.ID)),
			logx.String("reason", d.Reason),
		)
	}
	rep.Dropped = append(rep.Dropped, dropped...)

	var keep []Identity
	for _, id := range ids {
		// Registered while the store was unreachable: that instance stands in
		// for the persisted one and the final save keeps the identity.
		g.mu.RLock()
		live := g.hasRevivable(id)
		g.mu.RUnlock()
		if live {
			g.log.Debug("receiver identity already live; not constructed again",
				logx.String("receiver", string(id)))
			continue
		}
		e, _ := g.catalog.Lookup(id)
		r, out, cerr := g.construct(pctx, id, e.Factory)
		switch out {
		case built:
			g.RegisterRevivable(pctx, id, r)
			keep = append(keep, id)
			rep.Revived = append(rep.Revived, id)
		case faulted:
			keep = append(keep, id)
			rep.Retained = append(rep.Retained, id)
		case structural:
			g.log.Info("dropping receiver identity that cannot be constructed",
				logx.String("receiver", string(id)),
				logx.Err(cerr),
			)
			rep.Dropped = append(rep.Dropped, Dropped{ID: id, Reason: ReasonNotConstructible})
		}
	}

	// Final save. Holding persistMu across the state flip and the write means a
	// concurrent RegisterRevivable is either in the snapshot below or folds
	// after this save.
	g.persistMu.Lock()
	g.mu.Lock()
	set := append([]Identity(nil), keep...)
	for _, id := range revivableIDs(g.live, g.catalog.IsRevivable) {
		if !containsID(set, id) {
			set = append(set, id)
		}
	}
	g.state.Store(int32(StateReady))
	g.mu.Unlock()
	serr := g.store.SaveReceivers(ctx, identityStrings(set))
	g.persistMu.Unlock()

	rep.Saved = set
	if serr != nil {
		// Instances already exist, so the pass is not rerun; later folds
		// rewrite the set.
		rep.SaveErr = serr.Error()
		g.log.Warn("save revived receiver set failed", logx.Err(serr))
	}
	rep.Took = time.Since(start)
	g.finish(rep, serr)
}

func (g *Registry) finish(rep *RevivalReport, err error) {
	g.mu.Lock()
	g.last = rep
	g.lastErr = err
	g.passes++
	g.state.Store(int32(StateReady))
	g.mu.Unlock()

	g.log.Info("receiver revival finished",
		logx.Int("revived", len(rep.Revived)),
		logx.Int("retained", len(rep.Retained)),
		logx.Int("dropped", len(rep.Dropped)),
		logx.Duration("took", rep.Took),
	)
	g.emit(eventbus.TypeRevival, *rep)
}

// construct calls f and classifies the result. Panics and plain errors are
// faults of the receiver itself; a missing factory, a nil receiver or
// ErrNotConstructible are structural.
func (g *Registry) construct(ctx context.Context, id Identity, f Factory) (r Receiver, out outcome, err error) {
	if f == nil {
		return nil, structural, fmt.Errorf("%w: no factory", ErrNotConstructible)
	}
	defer func() {
		if p := recover(); p != nil {
			g.log.Error("receiver factory panicked",
				logx.String("receiver", string(id)),
				logx.Any("panic", p),
				logx.Stack(logx.StackTrace(3, 16)),
			)
			r, out, err = nil, faulted, fmt.Errorf("panic in factory %s: %v", id, p)
		}
	}()

	r, err = f(ctx)
	switch {
	case errors.Is(err, ErrNotConstructible):
		return nil, structural, err
	case err != nil:
		g.log.Error("receiver factory failed; identity kept",
			logx.String("receiver", string(id)),
			logx.Err(err),
		)
		return nil, faulted, err
	case r == nil:
		return nil, structural, fmt.Errorf("%w: factory returned nil", ErrNotConstructible)
	}
	return r, built, nil
}
