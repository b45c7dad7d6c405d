package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
	"time"

	"hl-aevo-arb/internal/exec"
	"hl-aevo-arb/internal/state"
	"hl-aevo-arb/internal/venue"

	"golang.org/x/sync/errgroup"
)

// RateRow compares one symbol's funding across venues.
type RateRow struct {
	Symbol    string
	RateA     float64
	RateB     float64
	Spread    float64
	LongVenue venue.ID
}

// Report is a read-only view of both accounts and current funding.
type Report struct {
	Snapshots map[venue.ID]venue.AccountSnapshot
	Rates     []RateRow
	Persisted *state.EngineSnapshot
}

// Report fetches snapshots and funding rates without starting the engine.
func (a *App) Report(ctx context.Context) (Report, error) {
	legs := []*exec.Executor{a.hl, a.aevo}
	snaps := make([]venue.AccountSnapshot, len(legs))
	rates := make([]map[string]float64, len(legs))
	g, gctx := errgroup.WithContext(ctx)
	for i, leg := range legs {
		i, leg := i, leg
		g.Go(func() error {
			snap, err := leg.Snapshot(gctx)
			if err != nil {
				return fmt.Errorf("%s snapshot: %w", leg.Venue(), err)
			}
			r, err := leg.FundingRates(gctx, a.cfg.Strategy.Symbols)
			if err != nil {
				return fmt.Errorf("%s funding: %w", leg.Venue(), err)
			}
			snaps[i], rates[i] = snap, r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	rep := Report{
		Snapshots: map[venue.ID]venue.AccountSnapshot{venue.Hyperliquid: snaps[0], venue.Aevo: snaps[1]},
		Rates:     compareRates(a.cfg.Strategy.Symbols, rates[0], rates[1]),
	}
	if saved, ok, err := state.LoadEngineSnapshot(ctx, a.store); err == nil && ok {
		rep.Persisted = &saved
	}
	return rep, nil
}

// compareRates lists symbols quoted on both venues, widest spread first.
func compareRates(symbols []string, ratesA, ratesB map[string]float64) []RateRow {
	rows := make([]RateRow, 0, len(symbols))
	for _, sym := range symbols {
		ra, okA := ratesA[sym]
		rb, okB := ratesB[sym]
		if !okA || !okB {
			continue
		}
		row := RateRow{Symbol: sym, RateA: ra, RateB: rb, Spread: math.Abs(ra - rb), LongVenue: venue.Hyperliquid}
		if rb < ra {
			row.LongVenue = venue.Aevo
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Spread > rows[j].Spread })
	return rows
}

func WriteReport(w io.Writer, rep Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if p := rep.Persisted; p != nil {
		fmt.Fprintf(tw, "engine\t%s\tsymbol=%s\tlong=%s\tpaused=%t\n", p.State, p.OpenSymbol, p.LongVenue, p.Paused)
		if p.HaltReason != "" {
			fmt.Fprintf(tw, "halt\t%s\n", p.HaltReason)
		}
	}
	fmt.Fprintln(tw, "VENUE\tCOLLATERAL\tEQUITY\tPOSITION")
	for _, id := range []venue.ID{venue.Hyperliquid, venue.Aevo} {
		snap := rep.Snapshots[id]
		pos := "flat"
		if p := snap.OpenPosition; p != nil {
			pos = fmt.Sprintf("%s %s %.6f liq %.4f", p.Symbol, p.Side, p.Size, p.LiquidationPrice)
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%s\n", id, snap.CollateralBalance, snap.Equity, pos)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SYMBOL\tHYPERLIQUID\tAEVO\tSPREAD\tLONG")
	for _, r := range rep.Rates {
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.6f\t%s\n", r.Symbol, r.RateA, r.RateB, r.Spread, r.LongVenue)
	}
	return tw.Flush()
}

// Values reads the newest limit entries of the value log.
func (a *App) Values(ctx context.Context, limit int) ([]state.ValueEntry, error) {
	return a.values.LoadValues(ctx, limit)
}

func WriteValues(w io.Writer, entries []state.ValueEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tHYPERLIQUID\tAEVO\tTOTAL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\n", e.Timestamp.UTC().Format(time.RFC3339), e.EquityA, e.EquityB, e.EquityTotal)
	}
	return tw.Flush()
}
