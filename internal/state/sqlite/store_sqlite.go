package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hl-aevo-arb/internal/state"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS value_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_ms INTEGER NOT NULL,
			equity_a REAL NOT NULL,
			equity_b REAL NOT NULL,
			equity_total REAL NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) AppendValue(ctx context.Context, entry state.ValueEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO value_log (ts_ms, equity_a, equity_b, equity_total) VALUES (?, ?, ?, ?)`,
		entry.Timestamp.UnixMilli(), entry.EquityA, entry.EquityB, entry.EquityTotal,
	)
	return err
}

func (s *Store) LoadValues(ctx context.Context, limit int) ([]state.ValueEntry, error) {
	query := `SELECT ts_ms, equity_a, equity_b, equity_total FROM value_log ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []state.ValueEntry
	for rows.Next() {
		var tsMS int64
		var entry state.ValueEntry
		if err := rows.Scan(&tsMS, &entry.EquityA, &entry.EquityB, &entry.EquityTotal); err != nil {
			return nil, err
		}
		entry.Timestamp = time.UnixMilli(tsMS).UTC()
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
