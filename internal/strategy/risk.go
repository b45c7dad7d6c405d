package strategy

import (
	"math"
	"time"

	"hl-aevo-arb/internal/config"
	"hl-aevo-arb/internal/ledger"
	"hl-aevo-arb/internal/venue"
)

// Proximity is the signed distance between mark and liquidation price as a
// fraction of price. It is negative while the position is alive.
func Proximity(mark, liquidation float64) float64 {
	if liquidation < mark {
		return (liquidation - mark) / mark
	}
	return (mark - liquidation) / liquidation
}

// CheckExit runs the risk rules against the open symbol's entry. longVenue is
// the venue that was long at entry.
func CheckExit(cfg config.RiskConfig, entry ledger.Entry, longVenue venue.ID, fees Fees, now time.Time) (ExitSignal, bool) {
	exitPnL, havePnL := ExitPnL(entry, longVenue, fees)

	closest := math.Inf(1)
	closestVenue := venue.ID("")
	for _, id := range []venue.ID{venue.Hyperliquid, venue.Aevo} {
		q := entry.Quote(id)
		if q.MarkPrice.IsNone() || q.LiquidationPrice.IsNone() {
			continue
		}
		mark, liq := q.MarkPrice.Unwrap(), q.LiquidationPrice.Unwrap()
		if mark <= 0 || liq <= 0 {
			continue
		}
		if p := math.Abs(Proximity(mark, liq)); p < closest {
			closest = p
			closestVenue = id
		}
	}
	if closestVenue != "" {
		if closest <= cfg.CriticalProximity {
			return ExitSignal{Reason: ExitCriticalProximity, Venue: closestVenue, Proximity: closest, ExitPnL: exitPnL}, true
		}
		if closest <= cfg.WarningProximity && havePnL && exitPnL > 0 {
			return ExitSignal{Reason: ExitWarningProfit, Venue: closestVenue, Proximity: closest, ExitPnL: exitPnL}, true
		}
	}

	longRate := entry.Quote(longVenue).FundingRate
	shortRate := entry.Quote(longVenue.Other()).FundingRate
	if longRate.IsNone() || shortRate.IsNone() || longRate.Unwrap() <= shortRate.Unwrap() {
		return ExitSignal{}, false
	}
	if havePnL && exitPnL > 0 {
		return ExitSignal{Reason: ExitReversalProfit, Venue: longVenue, ExitPnL: exitPnL}, true
	}
	if now.UTC().Minute() >= cfg.SettlementCutoffMinute {
		return ExitSignal{Reason: ExitReversalCutoff, Venue: longVenue, ExitPnL: exitPnL}, true
	}
	return ExitSignal{}, false
}
