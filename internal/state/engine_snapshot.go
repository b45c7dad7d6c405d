package state

import (
	"context"
	"encoding/json"
	"strings"
)

const EngineSnapshotKey = "engine:snapshot"

// EngineSnapshot is informational. On restart the engine reconciles from
// venue snapshots and only reads LongVenue back from here.
type EngineSnapshot struct {
	State       string  `json:"state"`
	OpenSymbol  string  `json:"open_symbol,omitempty"`
	LongVenue   string  `json:"long_venue,omitempty"`
	Size        float64 `json:"size,omitempty"`
	HaltReason  string  `json:"halt_reason,omitempty"`
	Paused      bool    `json:"paused,omitempty"`
	UpdatedAtMS int64   `json:"updated_at_ms"`
}

func LoadEngineSnapshot(ctx context.Context, store Store) (EngineSnapshot, bool, error) {
	if store == nil {
		return EngineSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, EngineSnapshotKey)
	if err != nil {
		return EngineSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return EngineSnapshot{}, false, nil
	}
	var snapshot EngineSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return EngineSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveEngineSnapshot(ctx context.Context, store Store, snapshot EngineSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, EngineSnapshotKey, string(payload))
}
