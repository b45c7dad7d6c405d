// Package venue defines the contract both exchange adapters implement and the
// snapshot types the engine reasons about.
package venue

import (
	"context"
	"encoding/json"
	"time"
)

type ID string

const (
	Hyperliquid ID = "hyperliquid"
	Aevo        ID = "aevo"
)

// Other returns the counterpart venue.
func (id ID) Other() ID {
	if id == Hyperliquid {
		return Aevo
	}
	return Hyperliquid
}

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// IsBuy reports whether opening this side requires a buy.
func (s Side) IsBuy() bool {
	return s == Long
}

type Position struct {
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	Size             float64 `json:"size"`
	EntryPrice       float64 `json:"entry_price"`
	LiquidationPrice float64 `json:"liquidation_price"`
	InstrumentRef    string  `json:"instrument_ref,omitempty"`
}

// AccountSnapshot is replaced wholesale on every refresh. OpenPosition is nil
// when the venue reports no position.
type AccountSnapshot struct {
	Venue             ID        `json:"venue"`
	CollateralBalance float64   `json:"collateral_balance"`
	Equity            float64   `json:"equity"`
	OpenPosition      *Position `json:"open_position,omitempty"`
	// ExtraPositions holds any open perp positions beyond the first. A
	// healthy account never has any.
	ExtraPositions []Position `json:"extra_positions,omitempty"`
	FetchedAt      time.Time  `json:"fetched_at"`
}

type OrderRequest struct {
	Symbol         string
	InstrumentRef  string
	IsBuy          bool
	ReduceOnly     bool
	Quantity       float64
	ReferencePrice float64
	ClientOrderID  string
}

type OrderResult struct {
	OrderID   string  `json:"order_id"`
	FilledQty float64 `json:"filled_qty"`
	AvgPrice  float64 `json:"avg_price"`
}

// FrameHandler receives raw stream frames in arrival order.
type FrameHandler func(json.RawMessage)

type Client interface {
	ID() ID
	AccountSnapshot(ctx context.Context) (AccountSnapshot, error)
	FundingRates(ctx context.Context, symbols []string) (map[string]float64, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, symbol string) (OrderResult, error)
	// Subscribe streams raw frames for symbols until ctx is done.
	Subscribe(ctx context.Context, symbols []string, handler FrameHandler) error
	Withdraw(ctx context.Context, amount float64) error
	Deposit(ctx context.Context, amount float64) error
}

// LotSizer is implemented by clients that know the order-size precision of
// an asset, in decimal places.
type LotSizer interface {
	LotDecimals(ctx context.Context, symbol string) (int, error)
}
