package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrSizeTooSmall = errors.New("hedge size rounds to zero")

// LotSize floors collateral*leverage/mark to the given number of decimals.
// decimals of 0 gives whole lots.
func LotSize(collateral, leverage, mark float64, decimals int) decimal.Decimal {
	if collateral <= 0 || leverage <= 0 || mark <= 0 {
		return decimal.Zero
	}
	raw := decimal.NewFromFloat(collateral).
		Mul(decimal.NewFromFloat(leverage)).
		Div(decimal.NewFromFloat(mark))
	return raw.RoundFloor(int32(decimals))
}

// HedgeSize returns the quantity both legs can fill: each venue's lot size at
// its own precision, the smaller of the two, floored again to the coarser
// precision so both venues accept it unchanged.
func HedgeSize(collateralA, markA float64, decimalsA int, collateralB, markB float64, decimalsB int, leverage float64) (decimal.Decimal, error) {
	sizeA := LotSize(collateralA, leverage, markA, decimalsA)
	sizeB := LotSize(collateralB, leverage, markB, decimalsB)
	size := decimal.Min(sizeA, sizeB).RoundFloor(int32(min(decimalsA, decimalsB)))
	if !size.IsPositive() {
		return decimal.Zero, fmt.Errorf("size a=%s b=%s: %w", sizeA, sizeB, ErrSizeTooSmall)
	}
	return size, nil
}
