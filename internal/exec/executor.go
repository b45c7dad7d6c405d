// Package exec wraps a venue client with bounded retries for reads and
// logged, single-shot order placement.
package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hl-aevo-arb/internal/venue"

	"go.uber.org/zap"
)

const (
	defaultAttempts = 5
	defaultBackoff  = 200 * time.Millisecond
)

type Executor struct {
	client venue.Client
	log    *zap.Logger

	attempts int
	backoff  time.Duration
}

func New(client venue.Client, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		client:   client,
		log:      log.With(zap.String("venue", string(client.ID()))),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

func (e *Executor) Venue() venue.ID {
	return e.client.ID()
}

func (e *Executor) Client() venue.Client {
	return e.client
}

// PlaceOrder submits req exactly once. A failed placement may still have
// reached the book, so it is never retried here.
func (e *Executor) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	res, err := e.client.PlaceOrder(ctx, req)
	if err != nil {
		e.log.Warn("order failed",
			zap.String("symbol", req.Symbol),
			zap.String("client_order_id", req.ClientOrderID),
			zap.Float64("size", req.Quantity),
			zap.Error(err),
		)
		return res, err
	}
	return res, nil
}

// LotDecimals returns the venue's order-size precision for symbol. ok is
// false when the venue does not publish one.
func (e *Executor) LotDecimals(ctx context.Context, symbol string) (dec int, ok bool, err error) {
	sizer, isSizer := e.client.(venue.LotSizer)
	if !isSizer {
		return 0, false, nil
	}
	dec, err = sizer.LotDecimals(ctx, symbol)
	if err != nil {
		return 0, false, err
	}
	return dec, true, nil
}

func (e *Executor) ClosePosition(ctx context.Context, symbol string) (venue.OrderResult, error) {
	return e.client.ClosePosition(ctx, symbol)
}

// Snapshot fetches the account snapshot, retrying transport failures. Parse
// failures are returned immediately since a retry would see the same payload.
func (e *Executor) Snapshot(ctx context.Context) (venue.AccountSnapshot, error) {
	var snap venue.AccountSnapshot
	err := e.retry(ctx, func() error {
		var err error
		snap, err = e.client.AccountSnapshot(ctx)
		return err
	})
	return snap, err
}

func (e *Executor) FundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	var rates map[string]float64
	err := e.retry(ctx, func() error {
		var err error
		rates, err = e.client.FundingRates(ctx, symbols)
		return err
	})
	return rates, err
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := e.backoff
	for attempt := 0; attempt < e.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var perr *venue.ParseError
		if errors.As(err, &perr) {
			return err
		}
		if attempt == e.attempts-1 {
			return fmt.Errorf("retry failed: %w", err)
		}
		e.log.Debug("retrying venue call", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}
