package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log         LoggingConfig     `yaml:"log"`
	State       StateConfig       `yaml:"state"`
	Hyperliquid HyperliquidConfig `yaml:"hyperliquid"`
	Aevo        AevoConfig        `yaml:"aevo"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Risk        RiskConfig        `yaml:"risk"`
	Rebalance   RebalanceConfig   `yaml:"rebalance"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Timescale   TimescaleConfig   `yaml:"timescale"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// StreamConfig holds the transport settings shared by both venues.
type StreamConfig struct {
	RESTURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	StaleAfter     time.Duration `yaml:"stale_after"`
}

type HyperliquidConfig struct {
	StreamConfig      `yaml:",inline"`
	TakerFee          float64 `yaml:"taker_fee"`
	Slippage          float64 `yaml:"slippage"`
	WithdrawFeeBuffer float64 `yaml:"withdraw_fee_buffer"`
	// Bridge is the Arbitrum address that credits USDC transfers to the Hyperliquid account.
	Bridge string `yaml:"bridge"`
}

type AevoConfig struct {
	StreamConfig      `yaml:",inline"`
	TakerFee          float64       `yaml:"taker_fee"`
	WithdrawFeeBuffer float64       `yaml:"withdraw_fee_buffer"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	SigningChainID    int64         `yaml:"signing_chain_id"`
	WithdrawChainID   int64         `yaml:"withdraw_chain_id"`
	// L2 collateral and socket bridge settings used for withdrawals.
	Collateral        string `yaml:"collateral"`
	WithdrawBridge    string `yaml:"withdraw_bridge"`
	WithdrawConnector string `yaml:"withdraw_connector"`
	SocketMsgGasLimit int64  `yaml:"socket_msg_gas_limit"`
	// Arbitrum socket vault used for deposits.
	DepositVault     string `yaml:"deposit_vault"`
	DepositConnector string `yaml:"deposit_connector"`
}

type StrategyConfig struct {
	Symbols            []string       `yaml:"symbols"`
	Leverage           float64        `yaml:"leverage"`
	DefaultLotDecimals int            `yaml:"default_lot_decimals"`
	LotDecimals        map[string]int `yaml:"lot_decimals"`
	EntryCooldown      time.Duration  `yaml:"entry_cooldown"`
	ValueLogInterval   time.Duration  `yaml:"value_log_interval"`
	InboxSize          int            `yaml:"inbox_size"`
}

type RiskConfig struct {
	CriticalProximity      float64       `yaml:"critical_proximity"`
	WarningProximity       float64       `yaml:"warning_proximity"`
	SettlementCutoffMinute int           `yaml:"settlement_cutoff_minute"`
	MaxQuoteAge            time.Duration `yaml:"max_quote_age"`
}

type RebalanceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Epsilon        float64       `yaml:"epsilon"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ArrivalTimeout time.Duration `yaml:"arrival_timeout"`
	RPCURL         string        `yaml:"rpc_url"`
	ChainID        int64         `yaml:"chain_id"`
	USDC           string        `yaml:"usdc"`
	USDCE          string        `yaml:"usdce"`
	SwapRouter     string        `yaml:"swap_router"`
	SwapFeeTier    int64         `yaml:"swap_fee_tier"`
	MaxSlippage    float64       `yaml:"max_slippage"`
	GasLimit       uint64        `yaml:"gas_limit"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyEnv(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if rpc := strings.TrimSpace(os.Getenv("ARBITRUM_RPC_URL")); rpc != "" {
		cfg.Rebalance.RPCURL = rpc
	}
	if dsn := strings.TrimSpace(os.Getenv("TIMESCALE_DSN")); dsn != "" {
		cfg.Timescale.DSN = dsn
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 10
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 3
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 28
		}
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hl-aevo-arb.db"
	}

	hl := &cfg.Hyperliquid
	if hl.RESTURL == "" {
		hl.RESTURL = "https://api.hyperliquid.xyz"
	}
	if hl.WSURL == "" {
		hl.WSURL = "wss://api.hyperliquid.xyz/ws"
	}
	streamDefaults(&hl.StreamConfig)
	if hl.TakerFee == 0 {
		hl.TakerFee = 0.00035
	}
	if hl.Slippage == 0 {
		hl.Slippage = 0.01
	}
	if hl.WithdrawFeeBuffer == 0 {
		hl.WithdrawFeeBuffer = 1
	}
	if hl.Bridge == "" {
		hl.Bridge = "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"
	}

	aevo := &cfg.Aevo
	if aevo.RESTURL == "" {
		aevo.RESTURL = "https://api.aevo.xyz"
	}
	if aevo.WSURL == "" {
		aevo.WSURL = "wss://ws.aevo.xyz"
	}
	streamDefaults(&aevo.StreamConfig)
	if aevo.TakerFee == 0 {
		aevo.TakerFee = 0.0008
	}
	if aevo.PollInterval == 0 {
		aevo.PollInterval = 30 * time.Second
	}
	if aevo.SigningChainID == 0 {
		aevo.SigningChainID = 1
	}
	if aevo.WithdrawChainID == 0 {
		aevo.WithdrawChainID = 42161
	}
	if aevo.Collateral == "" {
		aevo.Collateral = "0x643aaB1618c600229785A5E06E4b2d13946F7a1A"
	}
	if aevo.WithdrawBridge == "" {
		aevo.WithdrawBridge = "0xE3EF8bEE5c378D4D3DB6FEC96518e49AE2D2b957"
	}
	if aevo.WithdrawConnector == "" {
		aevo.WithdrawConnector = "0x73019b64e31e699fFd27d54E91D686313C14191C"
	}
	if aevo.SocketMsgGasLimit == 0 {
		aevo.SocketMsgGasLimit = 2_000_000
	}

	if len(cfg.Strategy.Symbols) == 0 {
		cfg.Strategy.Symbols = []string{"ETH", "BTC", "SOL"}
	}
	if cfg.Strategy.Leverage == 0 {
		cfg.Strategy.Leverage = 10
	}
	if cfg.Strategy.DefaultLotDecimals == 0 {
		cfg.Strategy.DefaultLotDecimals = 2
	}
	if cfg.Strategy.LotDecimals == nil {
		cfg.Strategy.LotDecimals = map[string]int{"DOGE": 0, "SOL": 1}
	}
	if cfg.Strategy.EntryCooldown == 0 {
		cfg.Strategy.EntryCooldown = time.Minute
	}
	if cfg.Strategy.ValueLogInterval == 0 {
		cfg.Strategy.ValueLogInterval = time.Hour
	}
	if cfg.Strategy.InboxSize == 0 {
		cfg.Strategy.InboxSize = 1024
	}

	if cfg.Risk.CriticalProximity == 0 {
		cfg.Risk.CriticalProximity = 0.02
	}
	if cfg.Risk.WarningProximity == 0 {
		cfg.Risk.WarningProximity = 0.05
	}
	if cfg.Risk.SettlementCutoffMinute == 0 {
		cfg.Risk.SettlementCutoffMinute = 55
	}
	if cfg.Risk.MaxQuoteAge == 0 {
		cfg.Risk.MaxQuoteAge = 2 * time.Minute
	}

	rb := &cfg.Rebalance
	if rb.Epsilon == 0 {
		rb.Epsilon = 1
	}
	if rb.PollInterval == 0 {
		rb.PollInterval = time.Minute
	}
	if rb.ArrivalTimeout == 0 {
		rb.ArrivalTimeout = 2 * time.Hour
	}
	if rb.ChainID == 0 {
		rb.ChainID = 42161
	}
	if rb.USDC == "" {
		rb.USDC = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	}
	if rb.USDCE == "" {
		rb.USDCE = "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"
	}
	if rb.SwapRouter == "" {
		rb.SwapRouter = "0xE592427A0AEce92De3Edee1F18E0157C05861564"
	}
	if rb.SwapFeeTier == 0 {
		rb.SwapFeeTier = 500
	}
	if rb.MaxSlippage == 0 {
		rb.MaxSlippage = 0.003
	}
	if rb.GasLimit == 0 {
		rb.GasLimit = 400_000
	}

	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9102"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func streamDefaults(s *StreamConfig) {
	if s.Timeout == 0 {
		s.Timeout = 10 * time.Second
	}
	if s.ReconnectDelay == 0 {
		s.ReconnectDelay = 3 * time.Second
	}
	if s.StaleAfter == 0 {
		s.StaleAfter = 30 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Strategy.Leverage <= 0 {
		return errors.New("strategy.leverage must be > 0")
	}
	for _, sym := range cfg.Strategy.Symbols {
		if strings.TrimSpace(sym) == "" {
			return errors.New("strategy.symbols must not contain empty entries")
		}
	}
	if cfg.Strategy.DefaultLotDecimals < 0 {
		return errors.New("strategy.default_lot_decimals must be >= 0")
	}
	for sym, dec := range cfg.Strategy.LotDecimals {
		if dec < 0 {
			return fmt.Errorf("strategy.lot_decimals.%s must be >= 0", sym)
		}
	}
	if cfg.Risk.CriticalProximity <= 0 || cfg.Risk.WarningProximity <= 0 {
		return errors.New("risk proximity thresholds must be > 0")
	}
	if cfg.Risk.CriticalProximity > cfg.Risk.WarningProximity {
		return errors.New("risk.critical_proximity must not exceed risk.warning_proximity")
	}
	if cfg.Risk.SettlementCutoffMinute < 0 || cfg.Risk.SettlementCutoffMinute > 59 {
		return errors.New("risk.settlement_cutoff_minute must be within 0-59")
	}
	if cfg.Hyperliquid.Slippage < 0 || cfg.Hyperliquid.Slippage >= 1 {
		return errors.New("hyperliquid.slippage must be within [0, 1)")
	}
	if cfg.Rebalance.Enabled && strings.TrimSpace(cfg.Rebalance.RPCURL) == "" {
		return errors.New("rebalance.rpc_url is required when rebalance is enabled")
	}
	if cfg.Rebalance.Enabled && (strings.TrimSpace(cfg.Aevo.DepositVault) == "" || strings.TrimSpace(cfg.Aevo.DepositConnector) == "") {
		return errors.New("aevo.deposit_vault and aevo.deposit_connector are required when rebalance is enabled")
	}
	for name, d := range map[string]time.Duration{
		"aevo.poll_interval":              cfg.Aevo.PollInterval,
		"strategy.value_log_interval":     cfg.Strategy.ValueLogInterval,
		"rebalance.poll_interval":         cfg.Rebalance.PollInterval,
		"rebalance.arrival_timeout":       cfg.Rebalance.ArrivalTimeout,
		"telegram.operator_poll_interval": cfg.Telegram.OperatorPollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if cfg.Rebalance.MaxSlippage < 0 || cfg.Rebalance.MaxSlippage >= 1 {
		return errors.New("rebalance.max_slippage must be within [0, 1)")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// LotDecimalsFor returns the order-size precision for a symbol.
func (s StrategyConfig) LotDecimalsFor(symbol string) int {
	if dec, ok := s.LotDecimals[symbol]; ok {
		return dec
	}
	return s.DefaultLotDecimals
}
