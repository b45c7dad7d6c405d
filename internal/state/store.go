package state

import (
	"context"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ValueEntry is one point of the equity history. Entries are append-only.
type ValueEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	EquityA     float64   `json:"equity_a"`
	EquityB     float64   `json:"equity_b"`
	EquityTotal float64   `json:"equity_total"`
}

type ValueLog interface {
	AppendValue(ctx context.Context, entry ValueEntry) error
	// LoadValues returns the newest limit entries in chronological order.
	// A limit of zero or less returns everything.
	LoadValues(ctx context.Context, limit int) ([]ValueEntry, error)
}
