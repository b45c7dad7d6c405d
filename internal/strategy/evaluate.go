package strategy

import (
	"errors"
	"math"

	"hl-aevo-arb/internal/ledger"
	"hl-aevo-arb/internal/venue"
)

var ErrNoCandidate = errors.New("no profitable candidate")

// Fees holds the taker fee of each venue as a fraction of notional.
type Fees struct {
	A float64
	B float64
}

func (f Fees) Total() float64 {
	return f.A + f.B
}

// Evaluate computes the candidate for a complete entry. It returns false when
// a price or rate is missing or the spread is zero.
func Evaluate(entry ledger.Entry, fees Fees) (Candidate, bool) {
	if !entry.Complete() {
		return Candidate{}, false
	}
	rateA := entry.A.FundingRate.Unwrap()
	rateB := entry.B.FundingRate.Unwrap()
	priceA := entry.A.MarkPrice.Unwrap()
	priceB := entry.B.MarkPrice.Unwrap()
	if priceA <= 0 || priceB <= 0 {
		return Candidate{}, false
	}
	spread := math.Abs(rateA - rateB)
	if spread == 0 {
		return Candidate{}, false
	}

	c := Candidate{Symbol: entry.Symbol, Spread: spread}
	if rateA < rateB {
		c.LongVenue, c.ShortVenue = venue.Hyperliquid, venue.Aevo
		c.LongPrice, c.ShortPrice = priceA, priceB
		c.LongRate, c.ShortRate = rateA, rateB
	} else {
		c.LongVenue, c.ShortVenue = venue.Aevo, venue.Hyperliquid
		c.LongPrice, c.ShortPrice = priceB, priceA
		c.LongRate, c.ShortRate = rateB, rateA
	}
	c.PercentPnL = (c.ShortPrice - c.LongPrice) / c.LongPrice
	c.TotalPnL = c.PercentPnL - fees.Total()
	c.HoursNeeded = -c.TotalPnL / spread
	return c, true
}

// EvaluateAll returns a candidate per evaluable entry, keyed by symbol.
func EvaluateAll(entries []ledger.Entry, fees Fees) map[string]Candidate {
	out := make(map[string]Candidate, len(entries))
	for _, entry := range entries {
		if c, ok := Evaluate(entry, fees); ok {
			out[entry.Symbol] = c
		}
	}
	return out
}

// Select picks the candidate with positive total P&L and the smallest hours
// needed. Ties go to the lexically smaller symbol.
func Select(candidates map[string]Candidate) (Candidate, error) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if c.TotalPnL <= 0 || math.IsNaN(c.HoursNeeded) || math.IsInf(c.HoursNeeded, 0) {
			continue
		}
		if !found || c.HoursNeeded < best.HoursNeeded ||
			(c.HoursNeeded == best.HoursNeeded && c.Symbol < best.Symbol) {
			best = c
			found = true
		}
	}
	if !found {
		return Candidate{}, ErrNoCandidate
	}
	return best, nil
}

// ExitPnL is the P&L of unwinding a position that is long on longVenue at
// the current marks, net of both taker fees.
func ExitPnL(entry ledger.Entry, longVenue venue.ID, fees Fees) (float64, bool) {
	long := entry.Quote(longVenue).MarkPrice
	short := entry.Quote(longVenue.Other()).MarkPrice
	if long.IsNone() || short.IsNone() {
		return 0, false
	}
	markShort := short.Unwrap()
	if markShort <= 0 {
		return 0, false
	}
	return (long.Unwrap()-markShort)/markShort - fees.Total(), true
}
