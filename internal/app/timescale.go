package app

import (
	"time"

	"hl-aevo-arb/internal/state"
	"hl-aevo-arb/internal/strategy"
	"hl-aevo-arb/internal/timescale"
)

// timescaleRecorder mirrors engine decisions into the timescale queues.
// Enqueue never blocks; full queues drop points.
type timescaleRecorder struct {
	w *timescale.Writer
}

func (r timescaleRecorder) RecordValue(entry state.ValueEntry) {
	r.w.EnqueueValue(timescale.ValuePoint{
		Time:        entry.Timestamp,
		EquityA:     entry.EquityA,
		EquityB:     entry.EquityB,
		EquityTotal: entry.EquityTotal,
	})
}

func (r timescaleRecorder) RecordCandidate(c strategy.Candidate, entered bool, at time.Time) {
	r.w.EnqueueCandidate(candidatePoint(c, entered, at))
}

func candidatePoint(c strategy.Candidate, entered bool, at time.Time) timescale.CandidatePoint {
	return timescale.CandidatePoint{
		Time:        at,
		Symbol:      c.Symbol,
		LongVenue:   string(c.LongVenue),
		ShortVenue:  string(c.ShortVenue),
		LongRate:    c.LongRate,
		ShortRate:   c.ShortRate,
		Spread:      c.Spread,
		PercentPnL:  c.PercentPnL,
		TotalPnL:    c.TotalPnL,
		HoursNeeded: c.HoursNeeded,
		Entered:     entered,
	}
}
