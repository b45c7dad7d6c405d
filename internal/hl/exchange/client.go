// Package exchange signs and submits Hyperliquid /exchange actions.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hl-aevo-arb/internal/hl/rest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Client struct {
	url    string
	http   *http.Client
	signer *Signer
	vault  *common.Address
	nonces nonceClock
	log    *zap.Logger
}

// NewClient trades for the signer's account, or for vaultAddress when set.
func NewClient(baseURL string, timeout time.Duration, signer *Signer, vaultAddress string, log *zap.Logger) (*Client, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if baseURL == "" {
		baseURL = "https://api.hyperliquid.xyz"
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		url:    strings.TrimRight(baseURL, "/") + "/exchange",
		http:   &http.Client{Timeout: timeout},
		signer: signer,
		log:    log,
	}
	if strings.TrimSpace(vaultAddress) != "" {
		addr := common.HexToAddress(vaultAddress)
		c.vault = &addr
	}
	c.nonces.log = log
	return c, nil
}

// InitNonceStore restores the nonce high-water mark and persists every
// later nonce under the returned key.
func (c *Client) InitNonceStore(ctx context.Context, store NonceStore) (string, error) {
	if store == nil {
		return "", errors.New("nonce store is required")
	}
	key := c.nonceKey()
	seed, err := c.nonces.restore(ctx, store, key)
	if err != nil {
		return "", err
	}
	c.log.Debug("nonce clock restored", zap.String("nonce_key", key), zap.Uint64("seed", seed))
	return key, nil
}

func (c *Client) nonceKey() string {
	vault := "none"
	if c.vault != nil {
		vault = strings.ToLower(c.vault.Hex())
	}
	return fmt.Sprintf("hl:nonce:%s:%s:%s", strings.ToLower(c.url), strings.ToLower(c.signer.Address().Hex()), vault)
}

func (c *Client) PlaceOrder(ctx context.Context, order OrderWire) (map[string]any, error) {
	action := OrderAction{Type: "order", Orders: []OrderWire{order}, Grouping: "na"}
	nonce := c.nonces.next()
	sig, err := c.signer.SignOrderAction(action, nonce, c.vault)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	return c.submit(ctx, action, sig, nonce, true)
}

// Withdraw requests a bridge withdrawal of amount USDC to destination.
// Withdrawals are user-signed and never carry the vault address.
func (c *Client) Withdraw(ctx context.Context, destination common.Address, amount decimal.Decimal) (map[string]any, error) {
	if !amount.IsPositive() {
		return nil, errors.New("amount must be > 0")
	}
	nonce := c.nonces.next()
	action := WithdrawAction{
		Type:        "withdraw3",
		Destination: destination.Hex(),
		Amount:      amount.String(),
		Time:        nonce,
	}
	sig, err := c.signer.SignWithdraw(&action)
	if err != nil {
		return nil, fmt.Errorf("sign withdraw: %w", err)
	}
	return c.submit(ctx, action, sig, nonce, false)
}

func (c *Client) submit(ctx context.Context, action any, sig Signature, nonce uint64, withVault bool) (map[string]any, error) {
	req := signedRequest{Action: action, Nonce: nonce, Signature: sig}
	if withVault && c.vault != nil {
		addr := c.vault.Hex()
		req.VaultAddress = &addr
	}
	var resp map[string]any
	if err := rest.PostJSON(ctx, c.http, c.url, req, &resp); err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}
	return resp, nil
}
