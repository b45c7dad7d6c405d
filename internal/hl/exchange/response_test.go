package exchange

import (
	"errors"
	"testing"
)

func orderResponse(status map[string]any) map[string]any {
	return map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{"statuses": []any{status}},
		},
	}
}

func TestOrderStatusFilled(t *testing.T) {
	resp := orderResponse(map[string]any{
		"filled": map[string]any{
			"oid":     float64(292577153770),
			"totalSz": "0.02",
			"avgPx":   "1891.4",
		},
	})
	got, err := OrderStatusFromResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrderID != "292577153770" || got.FilledQty != 0.02 || got.AvgPrice != 1891.4 || got.Resting {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestOrderStatusResting(t *testing.T) {
	got, err := OrderStatusFromResponse(orderResponse(map[string]any{"resting": map[string]any{"oid": float64(7)}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrderID != "7" || !got.Resting {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestOrderStatusRejected(t *testing.T) {
	_, err := OrderStatusFromResponse(orderResponse(map[string]any{"error": "Insufficient margin"}))
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("expected ErrOrderRejected, got %v", err)
	}
}

func TestOrderStatusActionError(t *testing.T) {
	_, err := OrderStatusFromResponse(map[string]any{"status": "err", "response": "bad nonce"})
	if !errors.Is(err, ErrActionFailed) {
		t.Fatalf("expected ErrActionFailed, got %v", err)
	}
}
