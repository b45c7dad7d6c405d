// Package rebalance moves collateral from the richer venue to the poorer one
// after a position closes: withdraw, wait for arrival, swap, deposit.
package rebalance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"hl-aevo-arb/internal/venue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrArrivalTimeout = errors.New("withdrawn funds did not arrive")

const (
	StepSnapshot = "snapshot"
	StepBaseline = "baseline"
	StepWithdraw = "withdraw"
	StepArrival  = "await_arrival"
	StepSwap     = "swap"
	StepDeposit  = "deposit"
)

// StepError names the step that failed and the amount in flight. Steps that
// already ran are not rolled back.
type StepError struct {
	Step   string
	Amount float64
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("rebalance %s (amount %.6f): %v", e.Step, e.Amount, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Venue is the slice of venue.Client the coordinator needs.
type Venue interface {
	ID() venue.ID
	AccountSnapshot(ctx context.Context) (venue.AccountSnapshot, error)
	Withdraw(ctx context.Context, amount float64) error
	Deposit(ctx context.Context, amount float64) error
}

type Wallet interface {
	Balance(ctx context.Context, token common.Address) (decimal.Decimal, error)
}

type Swapper interface {
	Swap(ctx context.Context, tokenIn, tokenOut common.Address, amount decimal.Decimal) (decimal.Decimal, error)
}

// Leg describes one venue: its client, the token it pays out and accepts on
// Arbitrum, and the fee buffer added to withdrawals from it.
type Leg struct {
	Venue     Venue
	Token     common.Address
	FeeBuffer float64
}

type Config struct {
	Epsilon        float64
	PollInterval   time.Duration
	ArrivalTimeout time.Duration
}

type Plan struct {
	From   venue.ID `json:"from"`
	To     venue.ID `json:"to"`
	Amount float64  `json:"amount"`
}

type Result struct {
	Plan      Plan    `json:"plan"`
	Skipped   bool    `json:"skipped"`
	BalanceA  float64 `json:"balance_a"`
	BalanceB  float64 `json:"balance_b"`
	Arrived   float64 `json:"arrived"`
	Deposited float64 `json:"deposited"`
}

// PlanTransfer sizes the withdrawal that evens out two balances. The source
// venue's fee buffer is added on top of half the difference.
func PlanTransfer(a, b venue.ID, balanceA, balanceB, epsilon float64, feeBuffer map[venue.ID]float64) (Plan, bool) {
	diff := balanceA - balanceB
	if math.Abs(diff) <= epsilon {
		return Plan{}, false
	}
	from, to, higher, lower := a, b, balanceA, balanceB
	if diff < 0 {
		from, to, higher, lower = b, a, balanceB, balanceA
	}
	amount := higher - (higher+lower)/2 + feeBuffer[from]
	return Plan{From: from, To: to, Amount: amount}, true
}

type Coordinator struct {
	cfg     Config
	legs    map[venue.ID]Leg
	order   [2]venue.ID
	wallet  Wallet
	swapper Swapper
	log     *zap.Logger
}

// New builds a coordinator for the pair (a, b). Balances are compared as
// a minus b.
func New(cfg Config, a, b Leg, wallet Wallet, swapper Swapper, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		cfg:     cfg,
		legs:    map[venue.ID]Leg{a.Venue.ID(): a, b.Venue.ID(): b},
		order:   [2]venue.ID{a.Venue.ID(), b.Venue.ID()},
		wallet:  wallet,
		swapper: swapper,
		log:     log.With(zap.String("component", "rebalance")),
	}
}

// Run performs one rebalance. It returns a *StepError when a step fails.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	a, b := c.legs[c.order[0]], c.legs[c.order[1]]
	snapA, err := a.Venue.AccountSnapshot(ctx)
	if err != nil {
		return Result{}, &StepError{Step: StepSnapshot, Err: fmt.Errorf("%s: %w", a.Venue.ID(), err)}
	}
	snapB, err := b.Venue.AccountSnapshot(ctx)
	if err != nil {
		return Result{}, &StepError{Step: StepSnapshot, Err: fmt.Errorf("%s: %w", b.Venue.ID(), err)}
	}
	res := Result{BalanceA: snapA.CollateralBalance, BalanceB: snapB.CollateralBalance}
	plan, ok := PlanTransfer(c.order[0], c.order[1], res.BalanceA, res.BalanceB, c.cfg.Epsilon, map[venue.ID]float64{
		c.order[0]: a.FeeBuffer,
		c.order[1]: b.FeeBuffer,
	})
	if !ok {
		res.Skipped = true
		c.log.Info("balances within epsilon", zap.Float64("balance_a", res.BalanceA), zap.Float64("balance_b", res.BalanceB))
		return res, nil
	}
	res.Plan = plan
	from, to := c.legs[plan.From], c.legs[plan.To]
	c.log.Info("rebalance planned",
		zap.String("from", string(plan.From)),
		zap.String("to", string(plan.To)),
		zap.Float64("amount", plan.Amount),
	)

	baseline, err := c.wallet.Balance(ctx, from.Token)
	if err != nil {
		return res, &StepError{Step: StepBaseline, Amount: plan.Amount, Err: err}
	}
	if err := from.Venue.Withdraw(ctx, plan.Amount); err != nil {
		return res, &StepError{Step: StepWithdraw, Amount: plan.Amount, Err: err}
	}
	arrived, err := c.awaitArrival(ctx, from.Token, baseline)
	if err != nil {
		return res, &StepError{Step: StepArrival, Amount: plan.Amount, Err: err}
	}
	res.Arrived = arrived.InexactFloat64()
	c.log.Info("withdrawal arrived", zap.String("amount", arrived.String()))

	deposit := arrived
	if from.Token != to.Token {
		if deposit, err = c.swapper.Swap(ctx, from.Token, to.Token, arrived); err != nil {
			return res, &StepError{Step: StepSwap, Amount: res.Arrived, Err: err}
		}
	}
	if err := to.Venue.Deposit(ctx, deposit.InexactFloat64()); err != nil {
		return res, &StepError{Step: StepDeposit, Amount: deposit.InexactFloat64(), Err: err}
	}
	res.Deposited = deposit.InexactFloat64()
	c.log.Info("rebalance complete",
		zap.String("to", string(plan.To)),
		zap.Float64("deposited", res.Deposited),
	)
	return res, nil
}

// awaitArrival polls the wallet until the token balance rises above baseline
// and returns the increase.
func (c *Coordinator) awaitArrival(ctx context.Context, token common.Address, baseline decimal.Decimal) (decimal.Decimal, error) {
	timeout := time.NewTimer(c.cfg.ArrivalTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-timeout.C:
			return decimal.Zero, ErrArrivalTimeout
		case <-ticker.C:
			balance, err := c.wallet.Balance(ctx, token)
			if err != nil {
				c.log.Warn("wallet balance poll failed", zap.Error(err))
				continue
			}
			if balance.GreaterThan(baseline) {
				return balance.Sub(baseline), nil
			}
		}
	}
}
