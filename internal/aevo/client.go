// Package aevo adapts the Aevo REST and websocket APIs, plus the Arbitrum
// socket vault used for deposits, to the venue.Client contract.
package aevo

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"hl-aevo-arb/internal/config"
	"hl-aevo-arb/internal/feed"
	"hl-aevo-arb/internal/venue"
	"hl-aevo-arb/internal/ws"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Order amounts and prices are fixed point with six decimals.
const unitDecimals = 6

// socketFeesWei is the bridge message fee attached to withdrawals.
const socketFeesWei = 4_500_000_000_000_000

var (
	ErrNoFill            = errors.New("aevo order not filled")
	ErrNoPosition        = errors.New("no open position")
	ErrNoWallet          = errors.New("no wallet configured")
	ErrUnknownInstrument = errors.New("unknown aevo instrument")
)

// maxLimitPrice lets a buy cross the whole book.
var maxLimitPrice = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

const vaultABIJSON = `[
	{"type":"function","name":"depositToAppChain","stateMutability":"payable","inputs":[{"name":"receiver_","type":"address"},{"name":"amount_","type":"uint256"},{"name":"msgGasLimit_","type":"uint256"},{"name":"connector_","type":"address"}],"outputs":[]},
	{"type":"function","name":"getMinFees","stateMutability":"view","inputs":[{"name":"connector_","type":"address"},{"name":"msgGasLimit_","type":"uint256"}],"outputs":[{"name":"totalFees","type":"uint256"}]}
]`

var vaultABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ContractWallet is the on-chain wallet used for vault deposits.
type ContractWallet interface {
	Address() common.Address
	Units(ctx context.Context, token common.Address, amount decimal.Decimal) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, units *big.Int) error
	Call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error)
	Transact(ctx context.Context, to common.Address, contractABI abi.ABI, value *big.Int, method string, args ...any) (*types.Receipt, error)
}

type Client struct {
	cfg          config.AevoConfig
	rest         *REST
	orders       *Signer
	owner        *Signer
	account      common.Address
	wallet       ContractWallet
	depositToken common.Address
	log          *zap.Logger
	now          func() time.Time

	mu          sync.RWMutex
	instruments map[string]string
}

// New builds the adapter. orders signs trades with the API signing key;
// owner signs withdrawals with the account key and may be nil, as may wallet.
func New(cfg config.AevoConfig, rest *REST, orders, owner *Signer, account common.Address, wallet ContractWallet, depositToken common.Address, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:          cfg,
		rest:         rest,
		orders:       orders,
		owner:        owner,
		account:      account,
		wallet:       wallet,
		depositToken: depositToken,
		log:          log.With(zap.String("venue", string(venue.Aevo))),
		now:          time.Now,
		instruments:  make(map[string]string),
	}
}

func (c *Client) ID() venue.ID { return venue.Aevo }

func (c *Client) AccountSnapshot(ctx context.Context) (venue.AccountSnapshot, error) {
	var payload map[string]any
	if err := c.rest.Get(ctx, "/account", true, &payload); err != nil {
		return venue.AccountSnapshot{}, err
	}
	return parseAccount(payload, c.now().UTC())
}

// FundingRates queries the funding endpoint per instrument. Symbols the venue
// does not list are omitted.
func (c *Client) FundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	var mu sync.Mutex
	out := make(map[string]float64, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			var payload map[string]any
			path := "/funding?" + url.Values{"instrument_name": {feed.AevoInstrument(sym)}}.Encode()
			if err := c.rest.Get(gctx, path, false, &payload); err != nil {
				c.log.Debug("funding lookup failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			rate, ok := venue.FloatField(payload, "funding_rate")
			if !ok {
				return nil
			}
			mu.Lock()
			out[sym] = rate
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder sends a signed IOC market order. Buys use the maximum limit
// price and sells use zero so the order takes whatever the book offers.
func (c *Client) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	instrument, err := c.instrumentID(ctx, req)
	if err != nil {
		return venue.OrderResult{}, err
	}
	amount := decimal.NewFromFloat(req.Quantity).Shift(unitDecimals).Truncate(0).BigInt()
	if amount.Sign() <= 0 {
		return venue.OrderResult{}, fmt.Errorf("size %v rounds to zero", req.Quantity)
	}
	limit := big.NewInt(0)
	if req.IsBuy {
		limit = maxLimitPrice
	}
	msg := OrderMessage{
		Maker:      c.account,
		IsBuy:      req.IsBuy,
		LimitPrice: limit,
		Amount:     amount,
		Salt:       newSalt(),
		Instrument: instrument,
		Timestamp:  c.now().Unix(),
	}
	sig, err := c.orders.SignOrder(msg, c.cfg.SigningChainID)
	if err != nil {
		return venue.OrderResult{}, err
	}
	body := map[string]any{
		"maker":         msg.Maker.Hex(),
		"is_buy":        msg.IsBuy,
		"instrument":    msg.Instrument.String(),
		"limit_price":   msg.LimitPrice.String(),
		"amount":        msg.Amount.String(),
		"salt":          msg.Salt.String(),
		"signature":     sig,
		"timestamp":     fmt.Sprint(msg.Timestamp),
		"post_only":     false,
		"reduce_only":   req.ReduceOnly,
		"time_in_force": "IOC",
		"mmp":           false,
	}
	var resp map[string]any
	if err := c.rest.Post(ctx, "/orders", body, &resp); err != nil {
		return venue.OrderResult{}, err
	}
	orderID := venue.StringField(resp, "order_id")
	filled, _ := venue.FloatField(resp, "filled")
	avgPx, _ := venue.FloatField(resp, "avg_price", "price")
	if filled <= 0 {
		return venue.OrderResult{OrderID: orderID}, fmt.Errorf("%s order %s status %q: %w",
			req.Symbol, orderID, venue.StringField(resp, "order_status"), ErrNoFill)
	}
	c.log.Info("order filled",
		zap.String("symbol", req.Symbol),
		zap.String("client_order_id", req.ClientOrderID),
		zap.Bool("buy", req.IsBuy),
		zap.Bool("reduce_only", req.ReduceOnly),
		zap.Float64("size", filled),
		zap.Float64("avg_px", avgPx),
	)
	return venue.OrderResult{OrderID: orderID, FilledQty: filled, AvgPrice: avgPx}, nil
}

// LotDecimals reports the contract amount precision, which is the same for
// every perpetual.
func (c *Client) LotDecimals(ctx context.Context, symbol string) (int, error) {
	return unitDecimals, nil
}

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
		InstrumentRef: pos.InstrumentRef,
		IsBuy:         pos.Side == venue.Short,
		ReduceOnly:    true,
		Quantity:      pos.Size,
	})
}

// Subscribe streams the perpetual ticker channel for each symbol. Positions
// are not streamed; callers poll AccountSnapshot instead.
func (c *Client) Subscribe(ctx context.Context, symbols []string, handler venue.FrameHandler) error {
	client := ws.New(c.cfg.WSURL, c.cfg.ReconnectDelay, c.cfg.StaleAfter, map[string]any{"op": "ping"}, c.log)
	defer client.Close()
	channels := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		channels = append(channels, "ticker:"+feed.VenueSymbol(venue.Aevo, sym)+":PERPETUAL")
	}
	if err := client.Subscribe(ctx, map[string]any{"op": "subscribe", "data": channels}); err != nil {
		return err
	}
	return client.Run(ctx, handler)
}

// Withdraw moves amount USDC off the Aevo L2 through the socket bridge to the
// account's Arbitrum address.
func (c *Client) Withdraw(ctx context.Context, amount float64) error {
	if c.owner == nil {
		return ErrNoWallet
	}
	units := decimal.NewFromFloat(amount).Shift(unitDecimals).Truncate(0).BigInt()
	if units.Sign() <= 0 {
		return fmt.Errorf("withdraw amount %v rounds to zero", amount)
	}
	fees := big.NewInt(socketFeesWei)
	gasLimit := big.NewInt(c.cfg.SocketMsgGasLimit)
	connector := common.HexToAddress(c.cfg.WithdrawConnector)
	data, err := withdrawData(fees, gasLimit, connector)
	if err != nil {
		return err
	}
	msg := WithdrawMessage{
		Collateral: common.HexToAddress(c.cfg.Collateral),
		To:         common.HexToAddress(c.cfg.WithdrawBridge),
		Amount:     units,
		Salt:       newSalt(),
		Data:       data,
	}
	sig, err := c.owner.SignWithdraw(msg, c.cfg.WithdrawChainID)
	if err != nil {
		return err
	}
	body := map[string]any{
		"account":              c.account.Hex(),
		"collateral":           msg.Collateral.Hex(),
		"to":                   msg.To.Hex(),
		"amount":               msg.Amount.String(),
		"salt":                 msg.Salt.String(),
		"signature":            sig,
		"socket_fees":          fees.String(),
		"socket_msg_gas_limit": gasLimit.String(),
		"socket_connector":     connector.Hex(),
	}
	if err := c.rest.Post(ctx, "/withdraw", body, nil); err != nil {
		return err
	}
	c.log.Info("withdrawal requested", zap.Float64("amount", amount))
	return nil
}

// Deposit approves the socket vault and bridges amount of the deposit token
// to the account on the Aevo L2. The vault charges its message fee in ETH.
func (c *Client) Deposit(ctx context.Context, amount float64) error {
	if c.wallet == nil {
		return ErrNoWallet
	}
	vault := common.HexToAddress(c.cfg.DepositVault)
	connector := common.HexToAddress(c.cfg.DepositConnector)
	gasLimit := big.NewInt(c.cfg.SocketMsgGasLimit)
	units, err := c.wallet.Units(ctx, c.depositToken, decimal.NewFromFloat(amount).Truncate(unitDecimals))
	if err != nil {
		return err
	}
	out, err := c.wallet.Call(ctx, vault, vaultABI, "getMinFees", connector, gasLimit)
	if err != nil {
		return fmt.Errorf("vault fees: %w", err)
	}
	fees, ok := firstBigInt(out)
	if !ok {
		return fmt.Errorf("vault fees: unexpected result %v", out)
	}
	if err := c.wallet.Approve(ctx, c.depositToken, vault, units); err != nil {
		return fmt.Errorf("approve vault: %w", err)
	}
	receipt, err := c.wallet.Transact(ctx, vault, vaultABI, fees, "depositToAppChain", c.account, units, gasLimit, connector)
	if err != nil {
		return fmt.Errorf("deposit to vault: %w", err)
	}
	c.log.Info("vault deposit sent", zap.Float64("amount", amount), zap.String("tx", receipt.TxHash.Hex()))
	return nil
}

func (c *Client) instrumentID(ctx context.Context, req venue.OrderRequest) (*big.Int, error) {
	ref := req.InstrumentRef
	if ref == "" {
		var err error
		if ref, err = c.lookupInstrument(ctx, req.Symbol); err != nil {
			return nil, err
		}
	}
	id, ok := new(big.Int).SetString(ref, 10)
	if !ok {
		return nil, fmt.Errorf("instrument %q: %w", ref, ErrUnknownInstrument)
	}
	return id, nil
}

func (c *Client) lookupInstrument(ctx context.Context, symbol string) (string, error) {
	c.mu.RLock()
	ref, ok := c.instruments[symbol]
	c.mu.RUnlock()
	if ok {
		return ref, nil
	}
	var payload map[string]any
	if err := c.rest.Get(ctx, "/instrument/"+feed.AevoInstrument(symbol), false, &payload); err != nil {
		return "", err
	}
	ref = venue.StringField(payload, "instrument_id")
	if ref == "" {
		return "", fmt.Errorf("%s: %w", symbol, ErrUnknownInstrument)
	}
	c.mu.Lock()
	c.instruments[symbol] = ref
	c.mu.Unlock()
	return ref, nil
}

func firstBigInt(out []any) (*big.Int, bool) {
	if len(out) == 0 {
		return nil, false
	}
	v, ok := out[0].(*big.Int)
	return v, ok
}
