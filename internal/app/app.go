package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hl-aevo-arb/internal/aevo"
	"hl-aevo-arb/internal/alerts"
	"hl-aevo-arb/internal/chain"
	"hl-aevo-arb/internal/config"
	"hl-aevo-arb/internal/engine"
	"hl-aevo-arb/internal/exec"
	"hl-aevo-arb/internal/feed"
	"hl-aevo-arb/internal/hl"
	"hl-aevo-arb/internal/hl/exchange"
	"hl-aevo-arb/internal/hl/rest"
	"hl-aevo-arb/internal/metrics"
	"hl-aevo-arb/internal/rebalance"
	"hl-aevo-arb/internal/state"
	"hl-aevo-arb/internal/state/sqlite"
	"hl-aevo-arb/internal/strategy"
	"hl-aevo-arb/internal/timescale"
	"hl-aevo-arb/internal/venue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Submitter accepts normalized updates. *engine.Engine implements it.
type Submitter interface {
	Submit(ctx context.Context, u feed.Update) error
}

// Controller is the engine surface the operator commands use.
type Controller interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Status() engine.Status
	Candidates() []strategy.Candidate
	Values(limit int) []state.ValueEntry
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	values    state.ValueLog
	exchange  *exchange.Client
	chain     *chain.Client
	hl        *exec.Executor
	aevo      *exec.Executor
	engine    *engine.Engine
	control   Controller
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
	alerts    *alerts.Telegram
	timescale *timescale.Writer
}

func New(ctx context.Context, cfg *config.Config, secrets config.Secrets, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, store: store, values: store}
	if err := a.build(ctx, secrets); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, secrets config.Secrets) error {
	cfg, log := a.cfg, a.log
	usdc := common.HexToAddress(cfg.Rebalance.USDC)
	usdce := common.HexToAddress(cfg.Rebalance.USDCE)

	var (
		hlWallet   hl.TokenSender
		aevoWallet aevo.ContractWallet
	)
	if cfg.Rebalance.Enabled {
		client, err := chain.Dial(ctx, cfg.Rebalance.RPCURL, secrets.WalletPrivateKey, cfg.Rebalance.ChainID, cfg.Rebalance.GasLimit, log)
		if err != nil {
			return fmt.Errorf("dial arbitrum: %w", err)
		}
		a.chain = client
		hlWallet, aevoWallet = client, client
	}

	isMainnet := !strings.Contains(strings.ToLower(cfg.Hyperliquid.RESTURL), "testnet")
	signer, err := exchange.NewSigner(secrets.HLPrivateKey, isMainnet)
	if err != nil {
		return err
	}
	if !strings.EqualFold(secrets.HLWalletAddress, signer.Address().Hex()) {
		return fmt.Errorf("wallet address does not match private key: got %s expected %s", secrets.HLWalletAddress, signer.Address().Hex())
	}
	exClient, err := exchange.NewClient(cfg.Hyperliquid.RESTURL, cfg.Hyperliquid.Timeout, signer, secrets.HLVaultAddress, log)
	if err != nil {
		return err
	}
	a.exchange = exClient
	info := rest.New(cfg.Hyperliquid.RESTURL, cfg.Hyperliquid.Timeout, log)
	hlClient := hl.New(cfg.Hyperliquid, secrets.HLWalletAddress, info, exClient, hlWallet, usdc, log)

	orderSigner, err := aevo.NewSigner(secrets.AevoSigningKey)
	if err != nil {
		return fmt.Errorf("aevo signing key: %w", err)
	}
	var owner *aevo.Signer
	if secrets.WalletPrivateKey != "" {
		if owner, err = aevo.NewSigner(secrets.WalletPrivateKey); err != nil {
			return fmt.Errorf("wallet key: %w", err)
		}
	}
	aevoREST := aevo.NewREST(cfg.Aevo.RESTURL, secrets.AevoAPIKey, secrets.AevoAPISecret, cfg.Aevo.Timeout, log)
	aevoClient := aevo.New(cfg.Aevo, aevoREST, orderSigner, owner, common.HexToAddress(secrets.AevoWallet), aevoWallet, usdce, log)

	a.hl = exec.New(hlClient, log)
	a.aevo = exec.New(aevoClient, log)

	var rebalancer engine.Rebalancer
	if a.chain != nil {
		swapper := chain.NewSwapper(a.chain, common.HexToAddress(cfg.Rebalance.SwapRouter), uint32(cfg.Rebalance.SwapFeeTier), cfg.Rebalance.MaxSlippage)
		rebalancer = rebalance.New(rebalance.Config{
			Epsilon:        cfg.Rebalance.Epsilon,
			PollInterval:   cfg.Rebalance.PollInterval,
			ArrivalTimeout: cfg.Rebalance.ArrivalTimeout,
		},
			rebalance.Leg{Venue: hlClient, Token: usdc, FeeBuffer: cfg.Hyperliquid.WithdrawFeeBuffer},
			rebalance.Leg{Venue: aevoClient, Token: usdce, FeeBuffer: cfg.Aevo.WithdrawFeeBuffer},
			a.chain, swapper, log)
	}

	a.metrics = metrics.NewNoop()
	if cfg.Metrics.Enabled {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}
	a.alerts = alerts.NewTelegram(cfg.Telegram, log)
	if a.timescale, err = timescale.New(cfg.Timescale, log); err != nil {
		return fmt.Errorf("timescale: %w", err)
	}
	var recorder engine.Recorder
	if a.timescale != nil {
		recorder = timescaleRecorder{w: a.timescale}
	}

	a.engine = engine.New(engine.Config{
		Strategy: cfg.Strategy,
		Risk:     cfg.Risk,
		Fees:     strategy.Fees{A: cfg.Hyperliquid.TakerFee, B: cfg.Aevo.TakerFee},
	}, engine.Options{
		Hyperliquid: a.hl,
		Aevo:        a.aevo,
		Store:       a.store,
		Values:      a.values,
		Rebalancer:  rebalancer,
		Alerts:      a.alerts,
		Metrics:     a.metrics,
		Recorder:    recorder,
		Log:         log,
	})
	a.control = a.engine
	return nil
}

// Run starts every task and blocks until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	if key, err := a.exchange.InitNonceStore(ctx, a.store); err != nil {
		a.log.Warn("nonce store init failed", zap.Error(err))
	} else {
		a.log.Info("nonce persistence enabled", zap.String("nonce_key", key))
	}

	symbols := a.cfg.Strategy.Symbols
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.engine.Run(ctx) })
	for _, leg := range []*exec.Executor{a.hl, a.aevo} {
		leg := leg
		g.Go(func() error {
			seedFunding(ctx, leg, symbols, a.engine, a.log)
			return nil
		})
		g.Go(func() error {
			return a.stream(ctx, leg.Client(), feed.New(leg.Venue()), a.engine)
		})
	}
	g.Go(func() error {
		pollPositions(ctx, a.aevo, a.cfg.Aevo.PollInterval, a.engine, a.log)
		return nil
	})
	if a.prom != nil {
		g.Go(func() error { return a.serveMetrics(ctx) })
	}
	if a.timescale != nil {
		g.Go(func() error { return a.timescale.Run(ctx) })
	}
	if a.cfg.Telegram.OperatorEnabled {
		g.Go(func() error {
			a.runOperator(ctx)
			return nil
		})
	}
	a.log.Info("app started", zap.Strings("symbols", symbols))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the store, chain connection and timescale pool.
func (a *App) Close() {
	if a.timescale != nil {
		_ = a.timescale.Close()
	}
	if a.chain != nil {
		a.chain.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// stream forwards normalized frames from one venue into the engine until ctx
// is done. The websocket client reconnects on its own.
func (a *App) stream(ctx context.Context, client venue.Client, norm feed.Normalizer, sink Submitter) error {
	err := client.Subscribe(ctx, a.cfg.Strategy.Symbols, func(raw json.RawMessage) {
		forwardFrame(ctx, raw, norm, sink, a.metrics, a.log)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%s stream: %w", client.ID(), err)
	}
	return nil
}

func forwardFrame(ctx context.Context, raw json.RawMessage, norm feed.Normalizer, sink Submitter, m *metrics.Metrics, log *zap.Logger) {
	updates := norm.Normalize(raw, time.Now())
	if len(updates) == 0 {
		m.FramesDropped.Inc()
		return
	}
	for _, u := range updates {
		if err := sink.Submit(ctx, u); err != nil {
			log.Debug("update not submitted", zap.String("venue", string(u.Venue)), zap.Error(err))
			return
		}
	}
}

// seedFunding submits one funding-rate update per symbol so the ledger does
// not wait for the first stream frame.
func seedFunding(ctx context.Context, leg *exec.Executor, symbols []string, sink Submitter, log *zap.Logger) {
	rates, err := leg.FundingRates(ctx, symbols)
	if err != nil {
		log.Warn("funding seed failed", zap.String("venue", string(leg.Venue())), zap.Error(err))
		return
	}
	now := time.Now()
	for _, sym := range symbols {
		rate, ok := rates[sym]
		if !ok {
			continue
		}
		u := feed.Update{Venue: leg.Venue(), Symbol: sym, FundingRate: optional.Some(rate), ObservedAt: now}
		if err := sink.Submit(ctx, u); err != nil {
			return
		}
	}
}

// pollPositions feeds liquidation prices for venues that do not stream
// private position data.
func pollPositions(ctx context.Context, leg *exec.Executor, interval time.Duration, sink Submitter, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snap, err := leg.Snapshot(ctx)
		if err != nil {
			log.Warn("position poll failed", zap.String("venue", string(leg.Venue())), zap.Error(err))
			continue
		}
		if u, ok := feed.FromSnapshot(snap, time.Now()); ok {
			if err := sink.Submit(ctx, u); err != nil {
				return
			}
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
