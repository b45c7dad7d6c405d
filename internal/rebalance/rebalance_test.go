package rebalance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hl-aevo-arb/internal/venue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	usdc  = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	usdce = common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
)

type fakeWallet struct {
	mu       sync.Mutex
	balances map[common.Address]decimal.Decimal
}

func (w *fakeWallet) Balance(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[token], nil
}

func (w *fakeWallet) credit(token common.Address, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[token] = w.balances[token].Add(amount)
}

type fakeVenue struct {
	id         venue.ID
	balance    float64
	wallet     *fakeWallet
	token      common.Address
	arrive     bool
	withdrawn  float64
	deposited  float64
	depositErr error
}

func (v *fakeVenue) ID() venue.ID { return v.id }

func (v *fakeVenue) AccountSnapshot(ctx context.Context) (venue.AccountSnapshot, error) {
	return venue.AccountSnapshot{Venue: v.id, CollateralBalance: v.balance}, nil
}

func (v *fakeVenue) Withdraw(ctx context.Context, amount float64) error {
	v.withdrawn = amount
	if v.arrive {
		// The bridge keeps its fee buffer.
		go v.wallet.credit(v.token, decimal.NewFromFloat(amount).Sub(decimal.NewFromInt(1)))
	}
	return nil
}

func (v *fakeVenue) Deposit(ctx context.Context, amount float64) error {
	if v.depositErr != nil {
		return v.depositErr
	}
	v.deposited = amount
	return nil
}

type fakeSwapper struct {
	in, out common.Address
	amount  decimal.Decimal
}

func (s *fakeSwapper) Swap(ctx context.Context, tokenIn, tokenOut common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	s.in, s.out, s.amount = tokenIn, tokenOut, amount
	return amount.Sub(decimal.RequireFromString("0.05")), nil
}

func newFixture(balanceA, balanceB float64) (*Coordinator, *fakeVenue, *fakeVenue, *fakeSwapper) {
	wallet := &fakeWallet{balances: map[common.Address]decimal.Decimal{usdc: decimal.NewFromInt(3)}}
	a := &fakeVenue{id: venue.Hyperliquid, balance: balanceA, wallet: wallet, token: usdc, arrive: true}
	b := &fakeVenue{id: venue.Aevo, balance: balanceB, wallet: wallet, token: usdce, arrive: true}
	swapper := &fakeSwapper{}
	cfg := Config{Epsilon: 1, PollInterval: 5 * time.Millisecond, ArrivalTimeout: time.Second}
	c := New(cfg,
		Leg{Venue: a, Token: usdc, FeeBuffer: 1},
		Leg{Venue: b, Token: usdce, FeeBuffer: 0},
		wallet, swapper, zap.NewNop())
	return c, a, b, swapper
}

func TestPlanTransfer(t *testing.T) {
	buffers := map[venue.ID]float64{venue.Hyperliquid: 1, venue.Aevo: 0}

	plan, ok := PlanTransfer(venue.Hyperliquid, venue.Aevo, 1000, 800, 1, buffers)
	require.True(t, ok)
	assert.Equal(t, Plan{From: venue.Hyperliquid, To: venue.Aevo, Amount: 101}, plan)

	plan, ok = PlanTransfer(venue.Hyperliquid, venue.Aevo, 800, 1000, 1, buffers)
	require.True(t, ok)
	assert.Equal(t, Plan{From: venue.Aevo, To: venue.Hyperliquid, Amount: 100}, plan)

	_, ok = PlanTransfer(venue.Hyperliquid, venue.Aevo, 1000, 999.5, 1, buffers)
	assert.False(t, ok)
}

func TestRunMovesFundsToPoorerVenue(t *testing.T) {
	c, a, b, swapper := newFixture(1000, 800)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101.0, a.withdrawn)
	assert.Equal(t, 100.0, res.Arrived)
	assert.Equal(t, usdc, swapper.in)
	assert.Equal(t, usdce, swapper.out)
	assert.Equal(t, "100", swapper.amount.String())
	assert.Equal(t, 99.95, b.deposited)
	assert.Equal(t, 99.95, res.Deposited)
}

func TestRunSkipsBalancedAccounts(t *testing.T) {
	c, a, _, _ := newFixture(500, 500.5)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, a.withdrawn)
}

func TestRunTimesOutWaitingForArrival(t *testing.T) {
	c, a, _, _ := newFixture(1000, 800)
	a.arrive = false
	c.cfg.ArrivalTimeout = 30 * time.Millisecond

	_, err := c.Run(context.Background())
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepArrival, stepErr.Step)
	assert.Equal(t, 101.0, stepErr.Amount)
	assert.ErrorIs(t, err, ErrArrivalTimeout)
}

func TestRunReportsDepositFailure(t *testing.T) {
	c, _, b, _ := newFixture(1000, 800)
	b.depositErr = errors.New("vault paused")

	_, err := c.Run(context.Background())
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepDeposit, stepErr.Step)
	assert.Contains(t, err.Error(), "vault paused")
}
