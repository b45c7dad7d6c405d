package strategy

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLotSizeFloors(t *testing.T) {
	if got := LotSize(1000, 20, 50, 2); !got.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected 400.00, got %s", got.StringFixed(2))
	}
	if got := LotSize(1000, 20, 50, 0); !got.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected 400, got %s", got)
	}
	if got := LotSize(1000, 10, 3, 1); got.String() != "3333.3" {
		t.Fatalf("expected 3333.3, got %s", got)
	}
	if got := LotSize(1000, 10, 3, 0); got.String() != "3333" {
		t.Fatalf("expected 3333, got %s", got)
	}
}

func TestHedgeSizeTakesMinimum(t *testing.T) {
	size, err := HedgeSize(1000, 50, 2, 800, 50, 2, 20)
	if err != nil {
		t.Fatalf("hedge size: %v", err)
	}
	if !size.Equal(decimal.NewFromInt(320)) {
		t.Fatalf("expected 320, got %s", size)
	}
}

func TestHedgeSizeTooSmall(t *testing.T) {
	_, err := HedgeSize(1, 60000, 2, 1, 60000, 2, 1)
	if !errors.Is(err, ErrSizeTooSmall) {
		t.Fatalf("expected ErrSizeTooSmall, got %v", err)
	}
}

func TestHedgeSizeUsesCoarserPrecision(t *testing.T) {
	// 1000*20/49.95 = 400.4004; whole lots on A, six decimals on B.
	size, err := HedgeSize(1000, 49.95, 0, 1000, 49.95, 6, 20)
	if err != nil {
		t.Fatalf("hedge size: %v", err)
	}
	if size.String() != "400" {
		t.Fatalf("expected 400, got %s", size)
	}

	// B is smaller but finer: 800*20/49.95 = 320.3203, floored to 320 for A.
	size, err = HedgeSize(1000, 49.95, 0, 800, 49.95, 6, 20)
	if err != nil {
		t.Fatalf("hedge size: %v", err)
	}
	if size.String() != "320" {
		t.Fatalf("expected 320, got %s", size)
	}

	if _, err := HedgeSize(1000, 5000, 0, 1000, 5000, 6, 1); !errors.Is(err, ErrSizeTooSmall) {
		t.Fatalf("expected ErrSizeTooSmall below one whole lot, got %v", err)
	}
}
