package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrWirePrecision is returned for prices or sizes that need more than
// eight decimals.
var ErrWirePrecision = errors.New("value exceeds 8 decimals")

// NewOrderWire builds a limit order with wire-formatted price and size.
func NewOrderWire(asset int, isBuy bool, size, price decimal.Decimal, reduceOnly bool, tif Tif, cloid string) (OrderWire, error) {
	if tif == "" {
		return OrderWire{}, errors.New("tif is required")
	}
	p, err := toWire(price)
	if err != nil {
		return OrderWire{}, fmt.Errorf("price: %w", err)
	}
	s, err := toWire(size)
	if err != nil {
		return OrderWire{}, fmt.Errorf("size: %w", err)
	}
	return OrderWire{
		Asset:      asset,
		IsBuy:      isBuy,
		Price:      p,
		Size:       s,
		ReduceOnly: reduceOnly,
		OrderType:  OrderTypeWire{Limit: &LimitOrderType{Tif: tif}},
		Cloid:      cloid,
	}, nil
}

// toWire renders d without trailing zeros.
func toWire(d decimal.Decimal) (string, error) {
	rounded := d.Round(8)
	if !rounded.Equal(d) {
		return "", fmt.Errorf("%s: %w", d.String(), ErrWirePrecision)
	}
	return rounded.String(), nil
}
