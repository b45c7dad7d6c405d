package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hl-aevo-arb/internal/venue"

	"go.uber.org/zap"
)

type mockVenue struct {
	mu           sync.Mutex
	orderCalls   int
	snapCalls    int
	orderID      string
	snapErrs     []error
	snapshot     venue.AccountSnapshot
	placeErr     error
	lastQuantity float64
}

func (m *mockVenue) ID() venue.ID { return venue.Aevo }

func (m *mockVenue) AccountSnapshot(ctx context.Context) (venue.AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapCalls++
	if len(m.snapErrs) > 0 {
		err := m.snapErrs[0]
		m.snapErrs = m.snapErrs[1:]
		return venue.AccountSnapshot{}, err
	}
	return m.snapshot, nil
}

func (m *mockVenue) FundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	return map[string]float64{"ETH": 0.0001}, nil
}

func (m *mockVenue) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderCalls++
	m.lastQuantity = req.Quantity
	if m.placeErr != nil {
		return venue.OrderResult{}, m.placeErr
	}
	return venue.OrderResult{OrderID: m.orderID, FilledQty: req.Quantity, AvgPrice: 100}, nil
}

func (m *mockVenue) ClosePosition(ctx context.Context, symbol string) (venue.OrderResult, error) {
	return venue.OrderResult{OrderID: "close"}, nil
}

func (m *mockVenue) Subscribe(ctx context.Context, symbols []string, handler venue.FrameHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockVenue) Withdraw(ctx context.Context, amount float64) error { return nil }

func (m *mockVenue) Deposit(ctx context.Context, amount float64) error { return nil }

func fastExecutor(client venue.Client) *Executor {
	e := New(client, zap.NewNop())
	e.backoff = time.Millisecond
	return e
}

func TestExecutorPassesOrdersThrough(t *testing.T) {
	client := &mockVenue{orderID: "oid-1"}
	executor := fastExecutor(client)

	ctx := context.Background()
	order := venue.OrderRequest{Symbol: "ETH", IsBuy: true, Quantity: 1.5, ClientOrderID: "abc"}
	res, err := executor.PlaceOrder(ctx, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OrderID != "oid-1" || res.FilledQty != 1.5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := executor.PlaceOrder(ctx, order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.orderCalls != 2 {
		t.Fatalf("expected every call to reach the venue, got %d", client.orderCalls)
	}
}

type sizedVenue struct {
	mockVenue
	decimals int
	err      error
}

func (s *sizedVenue) LotDecimals(ctx context.Context, symbol string) (int, error) {
	return s.decimals, s.err
}

func TestExecutorLotDecimals(t *testing.T) {
	ctx := context.Background()
	if _, ok, err := fastExecutor(&mockVenue{}).LotDecimals(ctx, "ETH"); ok || err != nil {
		t.Fatalf("expected no precision from a plain venue, ok=%v err=%v", ok, err)
	}
	dec, ok, err := fastExecutor(&sizedVenue{decimals: 3}).LotDecimals(ctx, "ETH")
	if err != nil || !ok || dec != 3 {
		t.Fatalf("expected 3 decimals, got %d ok=%v err=%v", dec, ok, err)
	}
	if _, _, err := fastExecutor(&sizedVenue{err: errors.New("unknown asset")}).LotDecimals(ctx, "XYZ"); err == nil {
		t.Fatalf("expected lookup error")
	}
}

func TestExecutorDoesNotRetryPlacement(t *testing.T) {
	client := &mockVenue{placeErr: errors.New("insufficient margin")}
	executor := fastExecutor(client)
	if _, err := executor.PlaceOrder(context.Background(), venue.OrderRequest{ClientOrderID: "x", Quantity: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if client.orderCalls != 1 {
		t.Fatalf("expected single attempt, got %d", client.orderCalls)
	}
}

func TestExecutorSnapshotRetriesTransport(t *testing.T) {
	client := &mockVenue{
		snapErrs: []error{errors.New("timeout"), errors.New("timeout")},
		snapshot: venue.AccountSnapshot{Venue: venue.Aevo, CollateralBalance: 800},
	}
	executor := fastExecutor(client)
	snap, err := executor.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.CollateralBalance != 800 || client.snapCalls != 3 {
		t.Fatalf("unexpected snapshot %+v after %d calls", snap, client.snapCalls)
	}
}

func TestExecutorSnapshotParseErrorNotRetried(t *testing.T) {
	client := &mockVenue{snapErrs: []error{venue.MissingField(venue.Aevo, "collateral")}}
	executor := fastExecutor(client)
	_, err := executor.Snapshot(context.Background())
	if status, ok := venue.ParseStatusOf(err); !ok || status != venue.ParseMissingField {
		t.Fatalf("expected missing field parse error, got %v", err)
	}
	if client.snapCalls != 1 {
		t.Fatalf("expected single call, got %d", client.snapCalls)
	}
}
