// Package feed turns raw venue stream frames into venue-agnostic partial
// updates for the funding ledger. Normalizers hold no state.
package feed

import (
	"encoding/json"
	"time"

	"hl-aevo-arb/internal/venue"

	"github.com/moznion/go-optional"
)

// Update carries only the fields a frame actually reported.
type Update struct {
	Venue            venue.ID
	Symbol           string
	MarkPrice        optional.Option[float64]
	FundingRate      optional.Option[float64]
	LiquidationPrice optional.Option[float64]
	PositionSide     optional.Option[venue.Side]
	InstrumentRef    optional.Option[string]
	ObservedAt       time.Time
}

// Empty reports whether the update carries nothing worth merging.
func (u Update) Empty() bool {
	return u.MarkPrice.IsNone() &&
		u.FundingRate.IsNone() &&
		u.LiquidationPrice.IsNone() &&
		u.PositionSide.IsNone() &&
		u.InstrumentRef.IsNone()
}

type Normalizer interface {
	Venue() venue.ID
	// Normalize returns at most one update per asset. Unrecognised or
	// malformed frames yield nothing.
	Normalize(raw json.RawMessage, at time.Time) []Update
}

// New returns the normalizer for a venue.
func New(id venue.ID) Normalizer {
	if id == venue.Aevo {
		return AevoNormalizer{}
	}
	return HyperliquidNormalizer{}
}

// FromSnapshot converts a polled account snapshot into a position update so
// venues without a private position stream feed the ledger the same way.
func FromSnapshot(snap venue.AccountSnapshot, at time.Time) (Update, bool) {
	pos := snap.OpenPosition
	if pos == nil || pos.Symbol == "" {
		return Update{}, false
	}
	u := Update{
		Venue:        snap.Venue,
		Symbol:       Canonical(snap.Venue, pos.Symbol),
		PositionSide: optional.Some(pos.Side),
		ObservedAt:   at,
	}
	if pos.LiquidationPrice > 0 {
		u.LiquidationPrice = optional.Some(pos.LiquidationPrice)
	}
	if pos.InstrumentRef != "" {
		u.InstrumentRef = optional.Some(pos.InstrumentRef)
	}
	return u, true
}

func positivePrice(m map[string]any, keys ...string) optional.Option[float64] {
	if v, ok := venue.FloatField(m, keys...); ok && v > 0 {
		return optional.Some(v)
	}
	return optional.None[float64]()
}

func anyRate(m map[string]any, keys ...string) optional.Option[float64] {
	if v, ok := venue.FloatField(m, keys...); ok {
		return optional.Some(v)
	}
	return optional.None[float64]()
}
