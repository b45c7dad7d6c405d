// Package ledger keeps the latest known funding, price and position data per
// asset for both venues.
package ledger

import (
	"sort"
	"sync"
	"time"

	"hl-aevo-arb/internal/feed"
	"hl-aevo-arb/internal/venue"

	"github.com/moznion/go-optional"
)

// Quote is one venue's view of an asset.
type Quote struct {
	MarkPrice        optional.Option[float64]
	FundingRate      optional.Option[float64]
	LiquidationPrice optional.Option[float64]
	PositionSide     optional.Option[venue.Side]
	UpdatedAt        time.Time
	// PricedAt only advances on mark or funding updates.
	PricedAt time.Time
}

// Complete reports whether both price and rate are known.
func (q Quote) Complete() bool {
	return q.MarkPrice.IsSome() && q.FundingRate.IsSome()
}

type Entry struct {
	Symbol         string
	A              Quote // Hyperliquid
	B              Quote // Aevo
	InstrumentRef  string
	IsOpenPosition bool
}

// Complete reports whether all four price/rate fields are present.
func (e Entry) Complete() bool {
	return e.A.Complete() && e.B.Complete()
}

// Quote returns the side of the entry belonging to id.
func (e Entry) Quote(id venue.ID) Quote {
	if id == venue.Aevo {
		return e.B
	}
	return e.A
}

// FreshAt reports whether both venues priced the asset within maxAge of now.
func (e Entry) FreshAt(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(e.A.PricedAt) <= maxAge && now.Sub(e.B.PricedAt) <= maxAge
}

// Ledger is written only by the engine goroutine. The mutex guards copies
// handed to readers on other goroutines.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func New() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Upsert merges the present fields of u into the entry for u.Symbol and
// returns a copy of the result. Absent fields keep their previous value.
func (l *Ledger) Upsert(u feed.Update) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[u.Symbol]
	if !ok {
		entry = &Entry{Symbol: u.Symbol}
		l.entries[u.Symbol] = entry
	}
	quote := &entry.A
	if u.Venue == venue.Aevo {
		quote = &entry.B
	}
	mergeQuote(quote, u)
	if u.InstrumentRef.IsSome() {
		entry.InstrumentRef = u.InstrumentRef.Unwrap()
	}
	return copyEntry(entry)
}

func mergeQuote(q *Quote, u feed.Update) {
	if u.MarkPrice.IsSome() {
		q.MarkPrice = u.MarkPrice
	}
	if u.FundingRate.IsSome() {
		q.FundingRate = u.FundingRate
	}
	if u.LiquidationPrice.IsSome() {
		q.LiquidationPrice = u.LiquidationPrice
	}
	if u.PositionSide.IsSome() {
		q.PositionSide = u.PositionSide
	}
	if u.ObservedAt.After(q.UpdatedAt) {
		q.UpdatedAt = u.ObservedAt
	}
	if (u.MarkPrice.IsSome() || u.FundingRate.IsSome()) && u.ObservedAt.After(q.PricedAt) {
		q.PricedAt = u.ObservedAt
	}
}

// MarkOpen flags the entry as holding the arbitrage position.
func (l *Ledger) MarkOpen(symbol string, sideA, sideB venue.Side) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[symbol]
	if !ok {
		entry = &Entry{Symbol: symbol}
		l.entries[symbol] = entry
	}
	entry.IsOpenPosition = true
	entry.A.PositionSide = optional.Some(sideA)
	entry.B.PositionSide = optional.Some(sideB)
}

// MarkClosed clears position state, including liquidation prices that no
// longer apply.
func (l *Ledger) MarkClosed(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[symbol]
	if !ok {
		return
	}
	entry.IsOpenPosition = false
	for _, q := range []*Quote{&entry.A, &entry.B} {
		q.PositionSide = optional.None[venue.Side]()
		q.LiquidationPrice = optional.None[float64]()
	}
}

func (l *Ledger) Get(symbol string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[symbol]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(entry), true
}

// Snapshot returns copies of all entries ordered by symbol.
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, copyEntry(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Copies handed out must not share option storage with the ledger.
func copyEntry(e *Entry) Entry {
	out := *e
	out.A = copyQuote(e.A)
	out.B = copyQuote(e.B)
	return out
}

func copyQuote(q Quote) Quote {
	return Quote{
		MarkPrice:        cloneOption(q.MarkPrice),
		FundingRate:      cloneOption(q.FundingRate),
		LiquidationPrice: cloneOption(q.LiquidationPrice),
		PositionSide:     cloneOption(q.PositionSide),
		UpdatedAt:        q.UpdatedAt,
		PricedAt:         q.PricedAt,
	}
}

func cloneOption[T any](o optional.Option[T]) optional.Option[T] {
	if o.IsNone() {
		return optional.None[T]()
	}
	return optional.Some(o.Unwrap())
}
