package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"hl-aevo-arb/internal/feed"
	"hl-aevo-arb/internal/state"
	"hl-aevo-arb/internal/strategy"
	"hl-aevo-arb/internal/venue"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var venues = [2]venue.ID{venue.Hyperliquid, venue.Aevo}

type legResult struct {
	req venue.OrderRequest
	res venue.OrderResult
	err error
}

// runLegs calls fn for both venues concurrently and waits for both. Order
// calls use a context detached from shutdown so a stop signal never leaves
// one leg half-sent.
func (e *Engine) runLegs(ctx context.Context, fn func(ctx context.Context, leg Leg) legResult) map[venue.ID]legResult {
	orderCtx := context.WithoutCancel(ctx)
	var (
		g   errgroup.Group
		mu  sync.Mutex
		out = make(map[venue.ID]legResult, len(venues))
	)
	for _, id := range venues {
		id := id
		leg := e.legs[id]
		g.Go(func() error {
			r := fn(orderCtx, leg)
			mu.Lock()
			out[id] = r
			mu.Unlock()
			if r.err != nil {
				e.metrics.OrdersFailed.Inc()
			} else {
				e.metrics.OrdersPlaced.Inc()
			}
			return r.err
		})
	}
	_ = g.Wait()
	return out
}

func failedLegs(results map[venue.ID]legResult) []venue.ID {
	var failed []venue.ID
	for _, id := range venues {
		if results[id].err != nil {
			failed = append(failed, id)
		}
	}
	return failed
}

// shortLegs lists the successful legs that filled less than want. With exact
// set, overfills count as well.
func shortLegs(results map[venue.ID]legResult, want float64, exact bool) []venue.ID {
	var short []venue.ID
	tol := fillTolerance(want)
	for _, id := range venues {
		r, ok := results[id]
		if !ok || r.err != nil {
			continue
		}
		if r.res.FilledQty < want-tol || (exact && r.res.FilledQty > want+tol) {
			short = append(short, id)
		}
	}
	return short
}

// fillTolerance absorbs float noise in venue-reported fill sizes.
func fillTolerance(size float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(size))
}

func (e *Engine) enter(ctx context.Context, c strategy.Candidate) {
	log := e.log.With(zap.String("symbol", c.Symbol))
	snaps, err := e.refreshSnapshots(ctx)
	if err != nil {
		e.entryAborted(c, fmt.Errorf("refresh snapshots: %w", err))
		return
	}
	decimals := make(map[venue.ID]int, len(venues))
	for _, id := range venues {
		if decimals[id], err = e.lotDecimals(ctx, id, c.Symbol); err != nil {
			e.entryAborted(c, err)
			return
		}
	}
	size, err := strategy.HedgeSize(
		snaps[venue.Hyperliquid].CollateralBalance, candidatePrice(c, venue.Hyperliquid), decimals[venue.Hyperliquid],
		snaps[venue.Aevo].CollateralBalance, candidatePrice(c, venue.Aevo), decimals[venue.Aevo],
		e.cfg.Strategy.Leverage,
	)
	if err != nil {
		e.entryAborted(c, err)
		return
	}
	qty := size.InexactFloat64()
	entry, _ := e.ledger.Get(c.Symbol)
	log.Info("entering",
		zap.String("long", string(c.LongVenue)),
		zap.Float64("size", qty),
		zap.Float64("spread", c.Spread),
		zap.Float64("total_pnl", c.TotalPnL),
		zap.Float64("hours_needed", c.HoursNeeded),
	)
	results := e.runLegs(ctx, func(ctx context.Context, leg Leg) legResult {
		id := leg.Venue()
		req := venue.OrderRequest{
			Symbol:         c.Symbol,
			IsBuy:          c.Side(id).IsBuy(),
			Quantity:       qty,
			ReferencePrice: candidatePrice(c, id),
			ClientOrderID:  uuid.NewString(),
		}
		if id == venue.Aevo {
			req.InstrumentRef = entry.InstrumentRef
		}
		res, err := leg.PlaceOrder(ctx, req)
		return legResult{req: req, res: res, err: err}
	})
	failed := failedLegs(results)
	uneven := shortLegs(results, qty, true)
	e.record(c, len(failed) == 0 && len(uneven) == 0)

	switch {
	case len(failed) == 0 && len(uneven) == 0:
		e.opened(ctx, c, qty, results)
	case len(failed) == 0:
		e.metrics.EntryFailed.Inc()
		e.metrics.PartialHedges.Inc()
		e.halt(ctx, fmt.Sprintf("partial hedge on entry %s: wanted %.6f, fill differs on %s\n%s",
			c.Symbol, qty, joinVenues(uneven), describeLegs(results)))
	case len(failed) == len(venues):
		e.metrics.EntryFailed.Inc()
		e.startCooldown()
		e.sm.Apply(strategy.EventEntryFailed)
		e.persist(ctx)
		e.notify(ctx, "entry %s failed on both venues, cooling down\n%s", c.Symbol, describeLegs(results))
	default:
		e.metrics.EntryFailed.Inc()
		e.metrics.PartialHedges.Inc()
		e.halt(ctx, fmt.Sprintf("partial hedge on entry %s: %s failed\n%s", c.Symbol, failed[0], describeLegs(results)))
	}
}

// lotDecimals is the configured precision, capped by what the venue accepts.
func (e *Engine) lotDecimals(ctx context.Context, id venue.ID, symbol string) (int, error) {
	dec := e.cfg.Strategy.LotDecimalsFor(symbol)
	venueDec, ok, err := e.legs[id].LotDecimals(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("%s lot size for %s: %w", id, symbol, err)
	}
	if ok {
		dec = min(dec, venueDec)
	}
	return dec, nil
}

// entryAborted handles failures before any order was sent.
func (e *Engine) entryAborted(c strategy.Candidate, err error) {
	e.metrics.EntryFailed.Inc()
	e.startCooldown()
	e.sm.Apply(strategy.EventEntryFailed)
	e.log.Warn("entry aborted", zap.String("symbol", c.Symbol), zap.Error(err))
}

func (e *Engine) opened(ctx context.Context, c strategy.Candidate, qty float64, results map[venue.ID]legResult) {
	e.mu.Lock()
	e.position = &Position{Symbol: c.Symbol, LongVenue: c.LongVenue, Size: qty, OpenedAt: e.now().UTC()}
	e.mu.Unlock()
	e.ledger.MarkOpen(c.Symbol, c.Side(venue.Hyperliquid), c.Side(venue.Aevo))
	e.sm.Apply(strategy.EventFilled)
	e.metrics.PositionOpen.Set(1)
	if _, err := e.refreshSnapshots(ctx); err == nil {
		e.appendValue(ctx)
	}
	e.persist(ctx)
	e.notify(ctx, "opened %s: long %s short %s size %.6f spread %.6f est. %.1fh\n%s",
		c.Symbol, c.LongVenue, c.ShortVenue, qty, c.Spread, c.HoursNeeded, describeLegs(results))
}

func (e *Engine) exit(ctx context.Context, pos Position, sig strategy.ExitSignal) {
	e.sm.Apply(strategy.EventExit)
	e.log.Info("exiting",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", string(sig.Reason)),
		zap.String("venue", string(sig.Venue)),
		zap.Float64("proximity", sig.Proximity),
		zap.Float64("exit_pnl", sig.ExitPnL),
	)
	results := e.runLegs(ctx, func(ctx context.Context, leg Leg) legResult {
		res, err := leg.ClosePosition(ctx, pos.Symbol)
		return legResult{req: venue.OrderRequest{Symbol: pos.Symbol, ReduceOnly: true, Quantity: pos.Size}, res: res, err: err}
	})
	if failed := failedLegs(results); len(failed) > 0 {
		e.metrics.ExitFailed.Inc()
		if len(failed) == 1 {
			e.metrics.PartialHedges.Inc()
		}
		e.halt(ctx, fmt.Sprintf("exit %s (%s) failed on %s\n%s", pos.Symbol, sig.Reason, joinVenues(failed), describeLegs(results)))
		return
	}
	if short := shortLegs(results, pos.Size, false); len(short) > 0 {
		e.metrics.ExitFailed.Inc()
		e.metrics.PartialHedges.Inc()
		e.halt(ctx, fmt.Sprintf("exit %s (%s) left size %.6f partly open on %s\n%s",
			pos.Symbol, sig.Reason, pos.Size, joinVenues(short), describeLegs(results)))
		return
	}

	e.mu.Lock()
	e.position = nil
	e.mu.Unlock()
	e.ledger.MarkClosed(pos.Symbol)
	e.metrics.PositionOpen.Set(0)
	if _, err := e.refreshSnapshots(ctx); err == nil {
		e.appendValue(ctx)
	}
	e.persist(ctx)
	e.notify(ctx, "closed %s (%s, exit pnl %.5f)\n%s", pos.Symbol, sig.Reason, sig.ExitPnL, describeLegs(results))
	e.startRebalance(ctx)
}

func (e *Engine) startRebalance(ctx context.Context) {
	if e.rebalancer == nil {
		e.sm.Apply(strategy.EventDone)
		e.persist(ctx)
		return
	}
	go func() {
		res, err := e.rebalancer.Run(ctx)
		if perr := e.post(ctx, rebalanceEvent{result: res, err: err}); perr != nil {
			e.log.Warn("rebalance result dropped", zap.Error(perr))
		}
	}()
}

func (e *Engine) handleRebalance(ctx context.Context, ev rebalanceEvent) {
	if e.sm.State() != strategy.StateExiting {
		e.log.Warn("rebalance finished outside EXITING", zap.String("state", string(e.sm.State())))
		return
	}
	if ev.err != nil {
		e.metrics.RebalanceFailed.Inc()
		e.halt(ctx, "rebalance failed: "+ev.err.Error())
		return
	}
	e.sm.Apply(strategy.EventDone)
	e.persist(ctx)
	if ev.result.Skipped {
		e.log.Info("rebalance skipped", zap.Float64("balance_a", ev.result.BalanceA), zap.Float64("balance_b", ev.result.BalanceB))
		return
	}
	e.notify(ctx, "rebalanced %.2f from %s to %s (deposited %.6f)",
		ev.result.Plan.Amount, ev.result.Plan.From, ev.result.Plan.To, ev.result.Deposited)
}

// reconcile adopts a hedge found on the venues or reports why it cannot.
// A flat account on both venues clears any remembered position.
func (e *Engine) reconcile(ctx context.Context) error {
	snaps, err := e.refreshSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("refresh snapshots: %w", err)
	}
	posA := snaps[venue.Hyperliquid].OpenPosition
	posB := snaps[venue.Aevo].OpenPosition
	for _, id := range venues {
		if extra := snaps[id].ExtraPositions; len(extra) > 0 {
			return fmt.Errorf("%w: %s holds %d positions besides %s", ErrUnmatchedPosition, id, len(extra), describePosition(snaps[id].OpenPosition))
		}
	}
	switch {
	case posA == nil && posB == nil:
		if pos := e.Position(); pos != nil {
			e.ledger.MarkClosed(pos.Symbol)
		}
		e.mu.Lock()
		e.position = nil
		e.mu.Unlock()
		e.metrics.PositionOpen.Set(0)
		return nil
	case posA != nil && posB != nil && posA.Symbol == posB.Symbol && posA.Side != posB.Side:
		e.adopt(ctx, snaps)
		return nil
	default:
		return fmt.Errorf("%w: hyperliquid=%s aevo=%s", ErrUnmatchedPosition, describePosition(posA), describePosition(posB))
	}
}

func (e *Engine) adopt(ctx context.Context, snaps map[venue.ID]venue.AccountSnapshot) {
	posA := snaps[venue.Hyperliquid].OpenPosition
	posB := snaps[venue.Aevo].OpenPosition
	longVenue := venue.Aevo
	if posA.Side == venue.Long {
		longVenue = venue.Hyperliquid
	}
	if saved, ok, err := state.LoadEngineSnapshot(ctx, e.store); err == nil && ok && saved.LongVenue != "" && venue.ID(saved.LongVenue) != longVenue {
		e.log.Warn("persisted long venue disagrees with venue positions",
			zap.String("persisted", saved.LongVenue),
			zap.String("observed", string(longVenue)),
		)
	}
	if posA.Size != posB.Size {
		e.log.Warn("adopted legs differ in size", zap.Float64("hyperliquid", posA.Size), zap.Float64("aevo", posB.Size))
	}
	now := e.now()
	for _, id := range venues {
		if u, ok := feed.FromSnapshot(snaps[id], now); ok {
			e.ledger.Upsert(u)
		}
	}
	e.ledger.MarkOpen(posA.Symbol, posA.Side, posB.Side)
	e.mu.Lock()
	e.position = &Position{Symbol: posA.Symbol, LongVenue: longVenue, Size: math.Min(posA.Size, posB.Size), OpenedAt: now.UTC()}
	e.mu.Unlock()
	e.sm.Apply(strategy.EventAdopt)
	e.metrics.PositionOpen.Set(1)
	e.notify(ctx, "adopted open %s hedge: long %s size %.6f", posA.Symbol, longVenue, math.Min(posA.Size, posB.Size))
}

// halt stops automation until an operator resumes.
func (e *Engine) halt(ctx context.Context, reason string) {
	e.sm.Apply(strategy.EventHalt)
	e.mu.Lock()
	e.haltReason = reason
	e.mu.Unlock()
	e.log.Error("engine halted", zap.String("reason", reason))
	e.persist(ctx)
	e.notify(ctx, "HALTED: %s", reason)
}

func (e *Engine) startCooldown() {
	e.mu.Lock()
	e.cooldownUntil = e.now().Add(e.cfg.Strategy.EntryCooldown)
	e.mu.Unlock()
}

func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	st := e.Status()
	snap := state.EngineSnapshot{
		State:       string(st.State),
		HaltReason:  st.HaltReason,
		Paused:      st.Paused,
		UpdatedAtMS: e.now().UnixMilli(),
	}
	if st.Position != nil {
		snap.OpenSymbol = st.Position.Symbol
		snap.LongVenue = string(st.Position.LongVenue)
		snap.Size = st.Position.Size
	}
	if err := state.SaveEngineSnapshot(context.WithoutCancel(ctx), e.store, snap); err != nil {
		e.log.Warn("persist engine snapshot failed", zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	go e.alerts.Notify(context.WithoutCancel(ctx), msg)
}

func (e *Engine) record(c strategy.Candidate, entered bool) {
	if e.recorder != nil {
		e.recorder.RecordCandidate(c, entered, e.now().UTC())
	}
}

func candidatePrice(c strategy.Candidate, id venue.ID) float64 {
	if id == c.LongVenue {
		return c.LongPrice
	}
	return c.ShortPrice
}

func describeLegs(results map[venue.ID]legResult) string {
	lines := make([]string, 0, len(venues))
	for _, id := range venues {
		r, ok := results[id]
		if !ok {
			continue
		}
		side := "sell"
		if r.req.IsBuy {
			side = "buy"
		}
		line := fmt.Sprintf("%s: %s %.6f ref %.6f", id, side, r.req.Quantity, r.req.ReferencePrice)
		if r.err != nil {
			line += " error: " + r.err.Error()
		} else {
			line += fmt.Sprintf(" filled %.6f @ %.6f (%s)", r.res.FilledQty, r.res.AvgPrice, r.res.OrderID)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func describePosition(p *venue.Position) string {
	if p == nil {
		return "flat"
	}
	return fmt.Sprintf("%s %s %.6f", p.Symbol, p.Side, p.Size)
}

func joinVenues(ids []venue.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
