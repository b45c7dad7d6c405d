package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const swapRouterABIJSON = `[
	{"type":"function","name":"exactInputSingle","stateMutability":"payable",
	 "inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

var swapRouterABI = mustABI(swapRouterABIJSON)

const swapDeadline = 10 * time.Minute

// ExactInputSingleParams mirrors the Uniswap v3 router tuple. Field names
// must match the ABI component names.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Swapper trades between the two USDC variants on a Uniswap v3 pool.
type Swapper struct {
	client      *Client
	router      common.Address
	feeTier     uint32
	maxSlippage float64
}

func NewSwapper(client *Client, router common.Address, feeTier uint32, maxSlippage float64) *Swapper {
	return &Swapper{client: client, router: router, feeTier: feeTier, maxSlippage: maxSlippage}
}

// Swap sells amount of tokenIn and returns how much tokenOut the wallet
// gained.
func (s *Swapper) Swap(ctx context.Context, tokenIn, tokenOut common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.New("swap amount must be > 0")
	}
	amountIn, err := s.client.Units(ctx, tokenIn, amount)
	if err != nil {
		return decimal.Zero, err
	}
	minOut, err := s.client.Units(ctx, tokenOut, MinOut(amount, s.maxSlippage))
	if err != nil {
		return decimal.Zero, err
	}
	before, err := s.client.Balance(ctx, tokenOut)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.client.Approve(ctx, tokenIn, s.router, amountIn); err != nil {
		return decimal.Zero, err
	}
	params := ExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(int64(s.feeTier)),
		Recipient:         s.client.Address(),
		Deadline:          big.NewInt(time.Now().Add(swapDeadline).Unix()),
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	}
	if _, err := s.client.Transact(ctx, s.router, swapRouterABI, nil, "exactInputSingle", params); err != nil {
		return decimal.Zero, fmt.Errorf("swap %s: %w", amount, err)
	}
	after, err := s.client.Balance(ctx, tokenOut)
	if err != nil {
		return decimal.Zero, err
	}
	return after.Sub(before), nil
}

// MinOut is the least output accepted for a 1:1 stable swap of amount.
func MinOut(amount decimal.Decimal, maxSlippage float64) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(1 - maxSlippage))
}

// PackExactInputSingle returns the router calldata for params.
func PackExactInputSingle(params ExactInputSingleParams) ([]byte, error) {
	return swapRouterABI.Pack("exactInputSingle", params)
}
