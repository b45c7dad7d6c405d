package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Hyperliquid.TakerFee != 0.00035 {
		t.Fatalf("expected hyperliquid taker fee 0.00035, got %v", cfg.Hyperliquid.TakerFee)
	}
	if cfg.Aevo.TakerFee != 0.0008 {
		t.Fatalf("expected aevo taker fee 0.0008, got %v", cfg.Aevo.TakerFee)
	}
	if cfg.Hyperliquid.WithdrawFeeBuffer != 1 {
		t.Fatalf("expected hyperliquid withdraw buffer 1, got %v", cfg.Hyperliquid.WithdrawFeeBuffer)
	}
	if cfg.Aevo.WithdrawFeeBuffer != 0 {
		t.Fatalf("expected aevo withdraw buffer 0, got %v", cfg.Aevo.WithdrawFeeBuffer)
	}
	if cfg.Risk.CriticalProximity != 0.02 || cfg.Risk.WarningProximity != 0.05 {
		t.Fatalf("unexpected proximity defaults: %+v", cfg.Risk)
	}
	if cfg.Risk.SettlementCutoffMinute != 55 {
		t.Fatalf("expected cutoff minute 55, got %d", cfg.Risk.SettlementCutoffMinute)
	}
	if cfg.Rebalance.PollInterval != time.Minute {
		t.Fatalf("expected rebalance poll 1m, got %v", cfg.Rebalance.PollInterval)
	}
	if cfg.Hyperliquid.StaleAfter <= 0 || cfg.Aevo.StaleAfter <= 0 {
		t.Fatalf("expected stale_after defaults")
	}
	if len(cfg.Strategy.Symbols) != 3 {
		t.Fatalf("expected default symbols, got %v", cfg.Strategy.Symbols)
	}
}

func TestLotDecimalsFor(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if got := cfg.Strategy.LotDecimalsFor("DOGE"); got != 0 {
		t.Fatalf("expected DOGE lot decimals 0, got %d", got)
	}
	if got := cfg.Strategy.LotDecimalsFor("SOL"); got != 1 {
		t.Fatalf("expected SOL lot decimals 1, got %d", got)
	}
	if got := cfg.Strategy.LotDecimalsFor("ETH"); got != 2 {
		t.Fatalf("expected ETH lot decimals 2, got %d", got)
	}
}

func TestValidateRejectsInvertedProximity(t *testing.T) {
	cfg := &Config{Risk: RiskConfig{CriticalProximity: 0.1, WarningProximity: 0.05}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for critical > warning")
	}
}

func TestValidateRebalanceRequiresRPC(t *testing.T) {
	cfg := &Config{Rebalance: RebalanceConfig{Enabled: true}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing rpc_url")
	}
}

func TestValidateRejectsNegativeIntervals(t *testing.T) {
	cfg := &Config{Rebalance: RebalanceConfig{PollInterval: -time.Second}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil || !strings.Contains(err.Error(), "rebalance.poll_interval") {
		t.Fatalf("expected poll_interval error, got %v", err)
	}
	cfg = &Config{Rebalance: RebalanceConfig{ArrivalTimeout: -time.Minute}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil || !strings.Contains(err.Error(), "rebalance.arrival_timeout") {
		t.Fatalf("expected arrival_timeout error, got %v", err)
	}
	cfg = &Config{}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadYAMLInlineStream(t *testing.T) {
	unsetEnv(t, "TELEGRAM_BOT_TOKEN")
	unsetEnv(t, "TELEGRAM_CHAT_ID")
	unsetEnv(t, "ARBITRUM_RPC_URL")
	unsetEnv(t, "TIMESCALE_DSN")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "" +
		"hyperliquid:\n" +
		"  rest_url: https://api.hyperliquid-testnet.xyz\n" +
		"  stale_after: 5s\n" +
		"strategy:\n" +
		"  symbols: [ETH, kPEPE]\n" +
		"  leverage: 20\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Hyperliquid.RESTURL != "https://api.hyperliquid-testnet.xyz" {
		t.Fatalf("unexpected rest url %q", cfg.Hyperliquid.RESTURL)
	}
	if cfg.Hyperliquid.StaleAfter != 5*time.Second {
		t.Fatalf("expected stale_after 5s, got %v", cfg.Hyperliquid.StaleAfter)
	}
	if cfg.Strategy.Leverage != 20 {
		t.Fatalf("expected leverage 20, got %v", cfg.Strategy.Leverage)
	}
	if len(cfg.Strategy.Symbols) != 2 || cfg.Strategy.Symbols[1] != "kPEPE" {
		t.Fatalf("unexpected symbols %v", cfg.Strategy.Symbols)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Strategy.LotDecimalsFor("SOL") != 1 || cfg.Strategy.LotDecimalsFor("ETH") != 2 {
		t.Fatalf("unexpected lot decimals %+v", cfg.Strategy.LotDecimals)
	}
	if cfg.Hyperliquid.StaleAfter != 30*time.Second || cfg.Rebalance.ArrivalTimeout != 2*time.Hour {
		t.Fatalf("unexpected durations: stale %v arrival %v", cfg.Hyperliquid.StaleAfter, cfg.Rebalance.ArrivalTimeout)
	}
}
