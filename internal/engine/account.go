package engine

import (
	"context"
	"fmt"
	"sync"

	"hl-aevo-arb/internal/state"
	"hl-aevo-arb/internal/venue"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// refreshSnapshots fetches both account snapshots. A payload that fails to
// parse keeps the previous snapshot for that venue; the operator is alerted
// once per distinct parse failure.
func (e *Engine) refreshSnapshots(ctx context.Context) (map[venue.ID]venue.AccountSnapshot, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		fetched = make(map[venue.ID]venue.AccountSnapshot, len(venues))
		errs    = make(map[venue.ID]error, len(venues))
	)
	for _, id := range venues {
		id := id
		leg := e.legs[id]
		g.Go(func() error {
			snap, err := leg.Snapshot(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[id] = err
			} else {
				fetched[id] = snap
			}
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range venues {
		err, failed := errs[id]
		if !failed {
			e.snapshots[id] = fetched[id]
			delete(e.parseErrs, id)
			continue
		}
		e.metrics.SnapshotErrors.Inc()
		if _, isParse := venue.ParseStatusOf(err); !isParse {
			return nil, fmt.Errorf("%s snapshot: %w", id, err)
		}
		if e.parseErrs[id] != err.Error() {
			e.parseErrs[id] = err.Error()
			e.log.Error("unreadable account snapshot", zap.String("venue", string(id)), zap.Error(err))
			e.notify(ctx, "unreadable %s account snapshot, keeping previous: %v", id, err)
		}
		if _, ok := e.snapshots[id]; !ok {
			return nil, err
		}
	}
	out := make(map[venue.ID]venue.AccountSnapshot, len(e.snapshots))
	for id, snap := range e.snapshots {
		out[id] = snap
	}
	return out, nil
}

// appendValue writes the current equity of both venues to the value log.
func (e *Engine) appendValue(ctx context.Context) {
	e.mu.RLock()
	a, b := e.snapshots[venue.Hyperliquid], e.snapshots[venue.Aevo]
	e.mu.RUnlock()
	entry := state.ValueEntry{
		Timestamp:   e.now().UTC(),
		EquityA:     a.Equity,
		EquityB:     b.Equity,
		EquityTotal: a.Equity + b.Equity,
	}
	e.metrics.EquityHyperliquid.Set(entry.EquityA)
	e.metrics.EquityAevo.Set(entry.EquityB)
	if e.values != nil {
		if err := e.values.AppendValue(context.WithoutCancel(ctx), entry); err != nil {
			e.log.Warn("append value failed", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.history = append(e.history, entry)
	if len(e.history) > historyLimit {
		e.history = append(e.history[:0:0], e.history[len(e.history)-historyLimit:]...)
	}
	e.mu.Unlock()
	if e.recorder != nil {
		e.recorder.RecordValue(entry)
	}
}

func (e *Engine) valueTick(ctx context.Context) {
	if _, err := e.refreshSnapshots(ctx); err != nil {
		e.log.Warn("periodic snapshot failed", zap.Error(err))
		return
	}
	e.appendValue(ctx)
	e.mu.RLock()
	last := e.history[len(e.history)-1]
	e.mu.RUnlock()
	e.notify(ctx, "equity %.2f (hyperliquid %.2f, aevo %.2f) state %s",
		last.EquityTotal, last.EquityA, last.EquityB, e.sm.State())
}

func (e *Engine) loadHistory(ctx context.Context) {
	if e.values == nil {
		return
	}
	entries, err := e.values.LoadValues(ctx, historyLimit)
	if err != nil {
		e.log.Warn("load value history failed", zap.Error(err))
		return
	}
	e.mu.Lock()
	e.history = entries
	e.mu.Unlock()
}
