// Package timescale mirrors the equity log and entry decisions into a
// TimescaleDB instance for dashboards. Writes are best-effort.
package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hl-aevo-arb/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// row is one insert into a mirrored table.
type row interface {
	table() string
	columns() []string
	values() []any
}

// ValuePoint mirrors one row of the local equity log.
type ValuePoint struct {
	Time        time.Time
	EquityA     float64
	EquityB     float64
	EquityTotal float64
}

func (ValuePoint) table() string { return "equity_values" }

func (ValuePoint) columns() []string {
	return []string{"ts", "equity_a", "equity_b", "equity_total"}
}

func (p ValuePoint) values() []any {
	return []any{p.Time, p.EquityA, p.EquityB, p.EquityTotal}
}

// CandidatePoint is a selected arbitrage candidate at decision time.
type CandidatePoint struct {
	Time        time.Time
	Symbol      string
	LongVenue   string
	ShortVenue  string
	LongRate    float64
	ShortRate   float64
	Spread      float64
	PercentPnL  float64
	TotalPnL    float64
	HoursNeeded float64
	Entered     bool
}

func (CandidatePoint) table() string { return "funding_candidates" }

func (CandidatePoint) columns() []string {
	return []string{"ts", "symbol", "long_venue", "short_venue", "long_rate", "short_rate",
		"spread", "percent_pnl", "total_pnl", "hours_needed", "entered"}
}

func (p CandidatePoint) values() []any {
	return []any{p.Time, p.Symbol, p.LongVenue, p.ShortVenue, p.LongRate, p.ShortRate,
		p.Spread, p.PercentPnL, p.TotalPnL, p.HoursNeeded, p.Entered}
}

// tables lists the hypertables and their column definitions, all keyed by ts.
var tables = []struct {
	name    string
	columns string
	suffix  string
}{
	{
		name: "equity_values",
		columns: `ts TIMESTAMPTZ NOT NULL PRIMARY KEY,
			equity_a DOUBLE PRECISION NOT NULL,
			equity_b DOUBLE PRECISION NOT NULL,
			equity_total DOUBLE PRECISION NOT NULL`,
		suffix: "ON CONFLICT (ts) DO NOTHING",
	},
	{
		name: "funding_candidates",
		columns: `ts TIMESTAMPTZ NOT NULL,
			symbol TEXT NOT NULL,
			long_venue TEXT NOT NULL,
			short_venue TEXT NOT NULL,
			long_rate DOUBLE PRECISION NOT NULL,
			short_rate DOUBLE PRECISION NOT NULL,
			spread DOUBLE PRECISION NOT NULL,
			percent_pnl DOUBLE PRECISION NOT NULL,
			total_pnl DOUBLE PRECISION NOT NULL,
			hours_needed DOUBLE PRECISION NOT NULL,
			entered BOOLEAN NOT NULL`,
	},
}

type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	queue   chan row
	started atomic.Bool
	dropped atomic.Uint64
}

// New returns nil when the mirror is disabled. A nil *Writer accepts and
// discards everything.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open timescale: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	w := &Writer{db: db, log: log, schema: schema, queue: make(chan row, queueSize)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping timescale: %w", err)
	}
	if err := w.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// Run drains the queue until ctx is done.
func (w *Writer) Run(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("timescale writer already running")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-w.queue:
			w.insert(ctx, r)
		}
	}
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueValue(point ValuePoint) {
	w.enqueue(point)
}

func (w *Writer) EnqueueCandidate(point CandidatePoint) {
	w.enqueue(point)
}

// Dropped is the number of rows discarded because the queue was full.
func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *Writer) enqueue(r row) {
	if w == nil {
		return
	}
	select {
	case w.queue <- r:
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("timescale queue full", zap.String("table", r.table()))
		}
	}
}

func (w *Writer) migrate(ctx context.Context) error {
	if w.schema != "public" {
		if err := w.exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+w.schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, t := range tables {
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", w.qualify(t.name), t.columns)
		if err := w.exec(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
	}
	// Plain Postgres still works, just without hypertables.
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescaledb extension unavailable", zap.Error(err))
		return nil
	}
	for _, t := range tables {
		q := fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.qualify(t.name))
		if err := w.exec(ctx, q); err != nil {
			w.log.Warn("hypertable create failed", zap.String("table", t.name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) insert(ctx context.Context, r row) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, w.insertSQL(r), r.values()...); err != nil {
		w.log.Warn("timescale insert failed", zap.String("table", r.table()), zap.Error(err))
	}
}

func (w *Writer) insertSQL(r row) string {
	cols := r.columns()
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.qualify(r.table()), strings.Join(cols, ", "), strings.Join(params, ", "))
	for _, t := range tables {
		if t.name == r.table() && t.suffix != "" {
			q += " " + t.suffix
		}
	}
	return q
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) qualify(name string) string {
	return w.schema + "." + name
}
