package hl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hl-aevo-arb/internal/config"
	"hl-aevo-arb/internal/hl/exchange"
	"hl-aevo-arb/internal/hl/rest"
	"hl-aevo-arb/internal/venue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce036f81af8f9b72d3d80b2"

const metaResponse = `[
	{"universe":[{"name":"BTC","szDecimals":5},{"name":"ETH","szDecimals":4}]},
	[{"funding":"0.0000125","markPx":"60000.0"},{"funding":"0.0008","markPx":"2000.5"}]
]`

const clearinghouseResponse = `{
	"marginSummary":{"accountValue":"1012.5"},
	"withdrawable":"1000.0",
	"assetPositions":[{"type":"oneWay","position":{"coin":"ETH","szi":"-0.5","entryPx":"2001.0","liquidationPx":"2400.0"}}]
}`

type fakeHL struct {
	mu      sync.Mutex
	actions []map[string]any
}

func (f *fakeHL) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		switch r.URL.Path {
		case "/info":
			switch body["type"] {
			case "metaAndAssetCtxs":
				_, _ = w.Write([]byte(metaResponse))
			case "clearinghouseState":
				_, _ = w.Write([]byte(clearinghouseResponse))
			case "allMids":
				_, _ = w.Write([]byte(`{"ETH":"2000.0"}`))
			default:
				http.Error(w, "unknown type", http.StatusBadRequest)
			}
		case "/exchange":
			f.mu.Lock()
			f.actions = append(f.actions, body)
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"status":"ok","response":{"type":"order","data":{"statuses":[{"filled":{"totalSz":"0.5","avgPx":"2001.2","oid":42}}]}}}`))
		}
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	signer, err := exchange.NewSigner(testKey, true)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	ex, err := exchange.NewClient(url, time.Second, signer, "", zap.NewNop())
	if err != nil {
		t.Fatalf("exchange client: %v", err)
	}
	cfg := config.HyperliquidConfig{Slippage: 0.01, Bridge: "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"}
	return New(cfg, signer.Address().Hex(), rest.New(url, time.Second, zap.NewNop()), ex, nil, common.Address{}, zap.NewNop())
}

func TestFundingRatesFromMeta(t *testing.T) {
	fake := &fakeHL{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)
	rates, err := client.FundingRates(context.Background(), []string{"ETH", "DOGE"})
	if err != nil {
		t.Fatalf("funding rates: %v", err)
	}
	if len(rates) != 1 || rates["ETH"] != 0.0008 {
		t.Fatalf("unexpected rates %v", rates)
	}
}

func TestPlaceOrderSendsIocWithSlippage(t *testing.T) {
	fake := &fakeHL{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)
	res, err := client.PlaceOrder(context.Background(), venue.OrderRequest{
		Symbol:         "ETH",
		IsBuy:          true,
		Quantity:       0.50009,
		ReferencePrice: 2000,
		ClientOrderID:  "6f1c5e5a-1d2b-4c3d-8e9f-0a1b2c3d4e5f",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if res.OrderID != "42" || res.FilledQty != 0.5 || res.AvgPrice != 2001.2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fake.actions) != 1 {
		t.Fatalf("expected 1 exchange call, got %d", len(fake.actions))
	}
	action := fake.actions[0]["action"].(map[string]any)
	order := action["orders"].([]any)[0].(map[string]any)
	if order["a"] != float64(1) || order["b"] != true || order["p"] != "2020" || order["s"] != "0.5" {
		t.Fatalf("unexpected order wire %v", order)
	}
	tif := order["t"].(map[string]any)["limit"].(map[string]any)["tif"]
	if tif != "Ioc" {
		t.Fatalf("expected Ioc, got %v", tif)
	}
	if order["c"] != "0x6f1c5e5a1d2b4c3d8e9f0a1b2c3d4e5f" {
		t.Fatalf("unexpected cloid %v", order["c"])
	}
}

func TestClosePositionReducesFullSize(t *testing.T) {
	fake := &fakeHL{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.ClosePosition(context.Background(), "ETH"); err != nil {
		t.Fatalf("close position: %v", err)
	}
	order := fake.actions[0]["action"].(map[string]any)["orders"].([]any)[0].(map[string]any)
	if order["b"] != true || order["r"] != true || order["s"] != "0.5" {
		t.Fatalf("expected reduce-only buy of 0.5, got %v", order)
	}
	if _, err := client.ClosePosition(context.Background(), "BTC"); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
}

type fakeSender struct {
	to     common.Address
	amount decimal.Decimal
}

func (f *fakeSender) Address() common.Address { return common.HexToAddress("0x01") }

func (f *fakeSender) Transfer(ctx context.Context, token, to common.Address, amount decimal.Decimal) (common.Hash, error) {
	f.to = to
	f.amount = amount
	return common.Hash{}, nil
}

func TestDepositTransfersToBridge(t *testing.T) {
	client := New(config.HyperliquidConfig{Bridge: "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"}, "", nil, nil, nil, common.Address{}, zap.NewNop())
	if err := client.Deposit(context.Background(), 10); !errors.Is(err, ErrNoWallet) {
		t.Fatalf("expected ErrNoWallet, got %v", err)
	}
	sender := &fakeSender{}
	client.wallet = sender
	if err := client.Deposit(context.Background(), 4); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
	if err := client.Deposit(context.Background(), 100.1234567); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !strings.EqualFold(sender.to.Hex(), "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7") || sender.amount.String() != "100.123456" {
		t.Fatalf("unexpected transfer to %s amount %s", sender.to.Hex(), sender.amount)
	}
}

func TestCloidHashesNonUUID(t *testing.T) {
	got := Cloid("entry-1")
	if len(got) != 34 || !strings.HasPrefix(got, "0x") {
		t.Fatalf("unexpected cloid %q", got)
	}
	if Cloid("") != "" {
		t.Fatalf("expected empty cloid")
	}
}
