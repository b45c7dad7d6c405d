package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hl-aevo-arb/internal/state"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "value"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "value" {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestValueLogAppendAndLoad(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := state.ValueEntry{
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
			EquityA:     1000 + float64(i),
			EquityB:     800,
			EquityTotal: 1800 + float64(i),
		}
		if err := store.AppendValue(ctx, entry); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	all, err := store.LoadValues(ctx, 0)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(all) != 3 || !all[0].Timestamp.Equal(base) || all[2].EquityTotal != 1802 {
		t.Fatalf("unexpected values: %+v", all)
	}
	latest, err := store.LoadValues(ctx, 2)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(latest) != 2 || latest[0].EquityA != 1001 || latest[1].EquityA != 1002 {
		t.Fatalf("expected newest two in order, got %+v", latest)
	}
}
