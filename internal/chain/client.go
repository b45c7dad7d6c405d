// Package chain sends and reads Arbitrum transactions for the rebalance
// workflow: ERC-20 balances and transfers, contract calls and swaps.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrTxReverted = errors.New("transaction reverted")

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var erc20ABI = mustABI(erc20ABIJSON)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

type Client struct {
	eth      *ethclient.Client
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
	log      *zap.Logger

	mu       sync.Mutex
	decimals map[common.Address]int32
}

func Dial(ctx context.Context, rpcURL, hexKey string, chainID int64, gasLimit uint64, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, errors.New("rpc url is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet key: %w", err)
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		eth:      eth,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
		gasLimit: gasLimit,
		log:      log,
		decimals: make(map[common.Address]int32),
	}, nil
}

func (c *Client) Address() common.Address {
	return c.from
}

func (c *Client) Close() {
	c.eth.Close()
}

// Balance returns the wallet's balance of token in whole token units.
func (c *Client) Balance(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	out, err := c.Call(ctx, token, erc20ABI, "balanceOf", c.from)
	if err != nil {
		return decimal.Zero, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("balanceOf returned %T", out[0])
	}
	dec, err := c.Decimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	return FromUnits(raw, dec), nil
}

// Decimals reads and caches the token's decimals.
func (c *Client) Decimals(ctx context.Context, token common.Address) (int32, error) {
	c.mu.Lock()
	dec, ok := c.decimals[token]
	c.mu.Unlock()
	if ok {
		return dec, nil
	}
	out, err := c.Call(ctx, token, erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	raw, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals returned %T", out[0])
	}
	c.mu.Lock()
	c.decimals[token] = int32(raw)
	c.mu.Unlock()
	return int32(raw), nil
}

// Units converts a whole-token amount into token base units.
func (c *Client) Units(ctx context.Context, token common.Address, amount decimal.Decimal) (*big.Int, error) {
	dec, err := c.Decimals(ctx, token)
	if err != nil {
		return nil, err
	}
	return ToUnits(amount, dec), nil
}

func (c *Client) Transfer(ctx context.Context, token, to common.Address, amount decimal.Decimal) (common.Hash, error) {
	units, err := c.Units(ctx, token, amount)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := c.Transact(ctx, token, erc20ABI, nil, "transfer", to, units)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transfer %s to %s: %w", amount, to.Hex(), err)
	}
	return receipt.TxHash, nil
}

// Approve raises the spender allowance to at least units.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, units *big.Int) error {
	out, err := c.Call(ctx, token, erc20ABI, "allowance", c.from, spender)
	if err != nil {
		return err
	}
	if current, ok := out[0].(*big.Int); ok && current.Cmp(units) >= 0 {
		return nil
	}
	if _, err := c.Transact(ctx, token, erc20ABI, nil, "approve", spender, units); err != nil {
		return fmt.Errorf("approve %s: %w", spender.Hex(), err)
	}
	return nil
}

func (c *Client) Call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	contract := bind.NewBoundContract(to, contractABI, c.eth, c.eth, c.eth)
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx, From: c.from}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: empty result", method)
	}
	return out, nil
}

// Transact sends a contract call and waits for it to be mined.
func (c *Client) Transact(ctx context.Context, to common.Address, contractABI abi.ABI, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = c.gasLimit
	opts.Value = value
	contract := bind.NewBoundContract(to, contractABI, c.eth, c.eth, c.eth)
	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return nil, err
	}
	c.log.Info("tx sent", zap.String("method", method), zap.String("to", to.Hex()), zap.String("tx", tx.Hash().Hex()))
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrTxReverted)
	}
	return receipt, nil
}

func ToUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

func FromUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -decimals)
}
