// Package hl adapts the Hyperliquid info, exchange and websocket APIs to the
// venue.Client contract.
package hl

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"hl-aevo-arb/internal/config"
	"hl-aevo-arb/internal/hl/exchange"
	"hl-aevo-arb/internal/hl/rest"
	"hl-aevo-arb/internal/venue"
	"hl-aevo-arb/internal/ws"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MinDeposit is the smallest bridge transfer Hyperliquid credits.
const MinDeposit = 5.0

var (
	ErrUnknownAsset = errors.New("unknown hyperliquid asset")
	ErrNoPosition   = errors.New("no open position")
	ErrNoWallet     = errors.New("no wallet configured for deposits")
	ErrBelowMinimum = errors.New("deposit below hyperliquid minimum")
)

// TokenSender moves ERC-20 tokens out of the rebalance wallet.
type TokenSender interface {
	Address() common.Address
	Transfer(ctx context.Context, token, to common.Address, amount decimal.Decimal) (common.Hash, error)
}

type assetMeta struct {
	Index      int
	SzDecimals int
	Funding    float64
	MarkPrice  float64
}

type Client struct {
	cfg      config.HyperliquidConfig
	user     string
	info     *rest.Client
	exchange *exchange.Client
	wallet   TokenSender
	usdc     common.Address
	log      *zap.Logger

	mu     sync.RWMutex
	assets map[string]assetMeta
}

// New builds the adapter. wallet may be nil when rebalancing is disabled.
func New(cfg config.HyperliquidConfig, user string, info *rest.Client, ex *exchange.Client, wallet TokenSender, usdc common.Address, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		user:     user,
		info:     info,
		exchange: ex,
		wallet:   wallet,
		usdc:     usdc,
		log:      log.With(zap.String("venue", string(venue.Hyperliquid))),
		assets:   make(map[string]assetMeta),
	}
}

func (c *Client) ID() venue.ID { return venue.Hyperliquid }

func (c *Client) AccountSnapshot(ctx context.Context) (venue.AccountSnapshot, error) {
	payload, err := c.info.Info(ctx, rest.InfoRequest{Type: "clearinghouseState", User: c.user})
	if err != nil {
		return venue.AccountSnapshot{}, err
	}
	return parseClearinghouse(payload, time.Now().UTC())
}

func (c *Client) FundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	assets, err := c.refreshMeta(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if meta, ok := assets[sym]; ok {
			out[sym] = meta.Funding
		}
	}
	return out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	meta, err := c.asset(ctx, req.Symbol)
	if err != nil {
		return venue.OrderResult{}, err
	}
	ref := req.ReferencePrice
	if ref <= 0 {
		if ref, err = c.mid(ctx, req.Symbol); err != nil {
			return venue.OrderResult{}, err
		}
	}
	limit := ref * (1 - c.cfg.Slippage)
	if req.IsBuy {
		limit = ref * (1 + c.cfg.Slippage)
	}
	price := decimal.NewFromFloat(normalizeLimitPrice(limit, meta.SzDecimals))
	size := decimal.NewFromFloat(req.Quantity).RoundFloor(int32(meta.SzDecimals))
	if !size.IsPositive() {
		return venue.OrderResult{}, fmt.Errorf("size %v rounds to zero at %d decimals", req.Quantity, meta.SzDecimals)
	}
	wire, err := exchange.NewOrderWire(meta.Index, req.IsBuy, size, price, req.ReduceOnly, exchange.TifIoc, Cloid(req.ClientOrderID))
	if err != nil {
		return venue.OrderResult{}, err
	}
	resp, err := c.exchange.PlaceOrder(ctx, wire)
	if err != nil {
		return venue.OrderResult{}, err
	}
	status, err := exchange.OrderStatusFromResponse(resp)
	if err != nil {
		return venue.OrderResult{}, err
	}
	if status.Resting || status.FilledQty <= 0 {
		return venue.OrderResult{OrderID: status.OrderID}, fmt.Errorf("%s oid=%s: %w", req.Symbol, status.OrderID, exchange.ErrNoFill)
	}
	c.log.Info("order filled",
		zap.String("symbol", req.Symbol),
		zap.Bool("buy", req.IsBuy),
		zap.Bool("reduce_only", req.ReduceOnly),
		zap.Float64("size", status.FilledQty),
		zap.Float64("avg_px", status.AvgPrice),
	)
	return venue.OrderResult{OrderID: status.OrderID, FilledQty: status.FilledQty, AvgPrice: status.AvgPrice}, nil
}

// ClosePosition sends a reduce-only IOC for the full size of the open
// position on symbol.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (venue.OrderResult, error) {
	snap, err := c.AccountSnapshot(ctx)
	if err != nil {
		return venue.OrderResult{}, err
	}
	pos := snap.OpenPosition
	if pos == nil || pos.Symbol != symbol || pos.Size == 0 {
		return venue.OrderResult{}, fmt.Errorf("%s: %w", symbol, ErrNoPosition)
	}
	return c.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:        symbol,
		IsBuy:         pos.Side == venue.Short,
		ReduceOnly:    true,
		Quantity:      pos.Size,
		ClientOrderID: uuid.NewString(),
	})
}

// Subscribe streams activeAssetCtx for each symbol plus the user's webData2
// channel, which carries liquidation prices.
func (c *Client) Subscribe(ctx context.Context, symbols []string, handler venue.FrameHandler) error {
	client := ws.New(c.cfg.WSURL, c.cfg.ReconnectDelay, c.cfg.StaleAfter, map[string]any{"method": "ping"}, c.log)
	defer client.Close()
	for _, sym := range symbols {
		sub := map[string]any{
			"method":       "subscribe",
			"subscription": map[string]any{"type": "activeAssetCtx", "coin": sym},
		}
		if err := client.Subscribe(ctx, sub); err != nil {
			return err
		}
	}
	if c.user != "" {
		sub := map[string]any{
			"method":       "subscribe",
			"subscription": map[string]any{"type": "webData2", "user": c.user},
		}
		if err := client.Subscribe(ctx, sub); err != nil {
			return err
		}
	}
	return client.Run(ctx, handler)
}

// Withdraw bridges amount USDC to the rebalance wallet on Arbitrum.
func (c *Client) Withdraw(ctx context.Context, amount float64) error {
	if c.wallet == nil {
		return ErrNoWallet
	}
	resp, err := c.exchange.Withdraw(ctx, c.wallet.Address(), decimal.NewFromFloat(amount).Truncate(6))
	if err != nil {
		return err
	}
	return exchange.CheckActionResponse(resp)
}

// Deposit transfers native USDC from the wallet to the Hyperliquid bridge.
func (c *Client) Deposit(ctx context.Context, amount float64) error {
	if c.wallet == nil {
		return ErrNoWallet
	}
	if amount < MinDeposit {
		return fmt.Errorf("%.6f < %.0f: %w", amount, MinDeposit, ErrBelowMinimum)
	}
	hash, err := c.wallet.Transfer(ctx, c.usdc, common.HexToAddress(c.cfg.Bridge), decimal.NewFromFloat(amount).Truncate(6))
	if err != nil {
		return err
	}
	c.log.Info("bridge deposit sent", zap.Float64("amount", amount), zap.String("tx", hash.Hex()))
	return nil
}

// LotDecimals is the asset's szDecimals from the exchange metadata.
func (c *Client) LotDecimals(ctx context.Context, symbol string) (int, error) {
	meta, err := c.asset(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return meta.SzDecimals, nil
}

func (c *Client) asset(ctx context.Context, symbol string) (assetMeta, error) {
	c.mu.RLock()
	meta, ok := c.assets[symbol]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}
	assets, err := c.refreshMeta(ctx)
	if err != nil {
		return assetMeta{}, err
	}
	if meta, ok = assets[symbol]; !ok {
		return assetMeta{}, fmt.Errorf("%s: %w", symbol, ErrUnknownAsset)
	}
	return meta, nil
}

func (c *Client) refreshMeta(ctx context.Context) (map[string]assetMeta, error) {
	payload, err := c.info.InfoAny(ctx, rest.InfoRequest{Type: "metaAndAssetCtxs"})
	if err != nil {
		return nil, err
	}
	assets, err := parseMetaAndAssetCtxs(payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.assets = assets
	c.mu.Unlock()
	return assets, nil
}

func (c *Client) mid(ctx context.Context, symbol string) (float64, error) {
	payload, err := c.info.Info(ctx, rest.InfoRequest{Type: "allMids"})
	if err != nil {
		return 0, err
	}
	px, ok := venue.FloatField(payload, symbol)
	if !ok || px <= 0 {
		return 0, fmt.Errorf("mid for %s: %w", symbol, ErrUnknownAsset)
	}
	return px, nil
}

// Cloid converts a client order id into Hyperliquid's 16-byte hex form.
// UUIDs map to their raw bytes; other ids are hashed.
func Cloid(id string) string {
	if id == "" {
		return ""
	}
	if parsed, err := uuid.Parse(id); err == nil {
		return "0x" + hex.EncodeToString(parsed[:])
	}
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(id))[:16])
}
