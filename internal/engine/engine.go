// Package engine runs the position lifecycle. All decisions happen on the
// single goroutine started by Run; other goroutines talk to it through the
// inbox or read copies under a mutex.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"hl-aevo-arb/internal/alerts"
	"hl-aevo-arb/internal/config"
	"hl-aevo-arb/internal/feed"
	"hl-aevo-arb/internal/ledger"
	"hl-aevo-arb/internal/metrics"
	"hl-aevo-arb/internal/rebalance"
	"hl-aevo-arb/internal/state"
	"hl-aevo-arb/internal/strategy"
	"hl-aevo-arb/internal/venue"

	"go.uber.org/zap"
)

const historyLimit = 500

var ErrUnmatchedPosition = errors.New("venue positions do not form a hedge")

// Leg is one venue as the engine uses it. *exec.Executor satisfies it.
type Leg interface {
	Venue() venue.ID
	PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error)
	ClosePosition(ctx context.Context, symbol string) (venue.OrderResult, error)
	Snapshot(ctx context.Context) (venue.AccountSnapshot, error)
	LotDecimals(ctx context.Context, symbol string) (int, bool, error)
}

type Rebalancer interface {
	Run(ctx context.Context) (rebalance.Result, error)
}

// Recorder mirrors decisions to an external sink. Calls must not block.
type Recorder interface {
	RecordValue(entry state.ValueEntry)
	RecordCandidate(c strategy.Candidate, entered bool, at time.Time)
}

type Config struct {
	Strategy config.StrategyConfig
	Risk     config.RiskConfig
	Fees     strategy.Fees
}

type Options struct {
	Hyperliquid Leg
	Aevo        Leg
	Store       state.Store
	Values      state.ValueLog
	Rebalancer  Rebalancer
	Alerts      alerts.Notifier
	Metrics     *metrics.Metrics
	Recorder    Recorder
	Log         *zap.Logger
}

// Position is the single arbitrage position the engine holds.
type Position struct {
	Symbol    string    `json:"symbol"`
	LongVenue venue.ID  `json:"long_venue"`
	Size      float64   `json:"size"`
	OpenedAt  time.Time `json:"opened_at"`
}

type Status struct {
	State         strategy.State                     `json:"state"`
	Paused        bool                               `json:"paused"`
	HaltReason    string                             `json:"halt_reason,omitempty"`
	Position      *Position                          `json:"position,omitempty"`
	Snapshots     map[venue.ID]venue.AccountSnapshot `json:"snapshots"`
	CooldownUntil time.Time                          `json:"cooldown_until,omitempty"`
}

type updateEvent struct {
	update feed.Update
}

type rebalanceEvent struct {
	result rebalance.Result
	err    error
}

type controlEvent struct {
	pause  *bool
	resume bool
	reply  chan error
}

type Engine struct {
	cfg        Config
	legs       map[venue.ID]Leg
	ledger     *ledger.Ledger
	sm         *strategy.StateMachine
	store      state.Store
	values     state.ValueLog
	rebalancer Rebalancer
	alerts     alerts.Notifier
	metrics    *metrics.Metrics
	recorder   Recorder
	log        *zap.Logger
	now        func() time.Time

	inbox chan any

	// Owned by the Run goroutine.
	parseErrs map[venue.ID]string

	mu            sync.RWMutex
	position      *Position
	snapshots     map[venue.ID]venue.AccountSnapshot
	paused        bool
	haltReason    string
	cooldownUntil time.Time
	history       []state.ValueEntry
}

func New(cfg Config, opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	notifier := opts.Alerts
	if notifier == nil {
		notifier = alerts.Nop{}
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	size := cfg.Strategy.InboxSize
	if size <= 0 {
		size = 1024
	}
	return &Engine{
		cfg:        cfg,
		legs:       map[venue.ID]Leg{venue.Hyperliquid: opts.Hyperliquid, venue.Aevo: opts.Aevo},
		ledger:     ledger.New(),
		sm:         strategy.NewStateMachine(),
		store:      opts.Store,
		values:     opts.Values,
		rebalancer: opts.Rebalancer,
		alerts:     notifier,
		metrics:    m,
		recorder:   opts.Recorder,
		log:        log.With(zap.String("component", "engine")),
		now:        time.Now,
		inbox:      make(chan any, size),
		parseErrs:  make(map[venue.ID]string),
		snapshots:  make(map[venue.ID]venue.AccountSnapshot),
	}
}

// Submit queues a normalized update. It blocks while the inbox is full.
func (e *Engine) Submit(ctx context.Context, u feed.Update) error {
	return e.post(ctx, updateEvent{update: u})
}

// Pause stops new entries. Exits and risk checks keep running.
func (e *Engine) Pause(ctx context.Context) error {
	paused := true
	return e.control(ctx, controlEvent{pause: &paused})
}

// Resume clears a pause. When halted it reconciles from fresh snapshots and
// returns to FLAT or adopts the hedge it finds; otherwise it stays halted
// and returns the reconcile error.
func (e *Engine) Resume(ctx context.Context) error {
	return e.control(ctx, controlEvent{resume: true})
}

func (e *Engine) control(ctx context.Context, ev controlEvent) error {
	ev.reply = make(chan error, 1)
	if err := e.post(ctx, ev); err != nil {
		return err
	}
	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) post(ctx context.Context, ev any) error {
	select {
	case e.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run reconciles with the venues and then processes the inbox until ctx is
// done. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	e.loadHistory(ctx)
	if err := e.reconcile(ctx); err != nil {
		e.halt(ctx, "startup reconcile: "+err.Error())
	} else {
		e.persist(ctx)
	}
	var tick <-chan time.Time
	if interval := e.cfg.Strategy.ValueLogInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	e.log.Info("engine started", zap.String("state", string(e.sm.State())))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopping", zap.String("state", string(e.sm.State())))
			return nil
		case ev := <-e.inbox:
			e.process(ctx, ev)
		case <-tick:
			e.valueTick(ctx)
		}
	}
}

func (e *Engine) process(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case updateEvent:
		e.handleUpdate(ctx, ev.update)
	case rebalanceEvent:
		e.handleRebalance(ctx, ev)
	case controlEvent:
		ev.reply <- e.handleControl(ctx, ev)
	default:
		e.log.Warn("unknown engine event", zap.Any("event", ev))
	}
}

func (e *Engine) handleUpdate(ctx context.Context, u feed.Update) {
	if u.Symbol == "" || u.Empty() {
		return
	}
	entry := e.ledger.Upsert(u)
	switch e.sm.State() {
	case strategy.StateOpen:
		pos := e.Position()
		if pos == nil || pos.Symbol != u.Symbol {
			return
		}
		if sig, ok := strategy.CheckExit(e.cfg.Risk, entry, pos.LongVenue, e.cfg.Fees, e.now()); ok {
			e.exit(ctx, *pos, sig)
		}
	case strategy.StateFlat:
		e.evaluate(ctx)
	}
}

func (e *Engine) evaluate(ctx context.Context) {
	e.sm.Apply(strategy.EventUpdate)
	now := e.now()
	c, err := strategy.Select(e.candidates(now))
	if err != nil || !e.canEnter(now) {
		e.sm.Apply(strategy.EventNoCandidate)
		return
	}
	e.metrics.BestSpread.Set(c.Spread)
	e.sm.Apply(strategy.EventEnter)
	e.enter(ctx, c)
}

func (e *Engine) canEnter(now time.Time) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.paused && e.position == nil && !now.Before(e.cooldownUntil)
}

func (e *Engine) handleControl(ctx context.Context, ev controlEvent) error {
	if ev.pause != nil {
		e.mu.Lock()
		e.paused = *ev.pause
		e.mu.Unlock()
		e.persist(ctx)
		return nil
	}
	if !ev.resume {
		return nil
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	if e.sm.State() != strategy.StateHalted {
		e.persist(ctx)
		return nil
	}
	if err := e.reconcile(ctx); err != nil {
		e.persist(ctx)
		return err
	}
	if e.sm.State() == strategy.StateHalted {
		e.sm.Apply(strategy.EventResume)
	}
	e.mu.Lock()
	e.haltReason = ""
	e.mu.Unlock()
	e.persist(ctx)
	e.notify(ctx, "resumed in state %s", e.sm.State())
	return nil
}

// State returns the lifecycle state.
func (e *Engine) State() strategy.State {
	return e.sm.State()
}

// Position returns a copy of the open position, or nil when flat.
func (e *Engine) Position() *Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.position == nil {
		return nil
	}
	pos := *e.position
	return &pos
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snaps := make(map[venue.ID]venue.AccountSnapshot, len(e.snapshots))
	for id, snap := range e.snapshots {
		snaps[id] = snap
	}
	st := Status{
		State:         e.sm.State(),
		Paused:        e.paused,
		HaltReason:    e.haltReason,
		Snapshots:     snaps,
		CooldownUntil: e.cooldownUntil,
	}
	if e.position != nil {
		pos := *e.position
		st.Position = &pos
	}
	return st
}

// Candidates evaluates every ledger entry with fresh quotes, best first.
func (e *Engine) Candidates() []strategy.Candidate {
	byHours := e.candidates(e.now())
	out := make([]strategy.Candidate, 0, len(byHours))
	for _, c := range byHours {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HoursNeeded != out[j].HoursNeeded {
			return out[i].HoursNeeded < out[j].HoursNeeded
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func (e *Engine) candidates(now time.Time) map[string]strategy.Candidate {
	entries := e.ledger.Snapshot()
	fresh := entries[:0]
	for _, entry := range entries {
		if entry.FreshAt(now, e.cfg.Risk.MaxQuoteAge) {
			fresh = append(fresh, entry)
		}
	}
	return strategy.EvaluateAll(fresh, e.cfg.Fees)
}

// Values returns up to limit of the newest value log entries.
func (e *Engine) Values(limit int) []state.ValueEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	start := 0
	if limit > 0 && len(e.history) > limit {
		start = len(e.history) - limit
	}
	out := make([]state.ValueEntry, len(e.history)-start)
	copy(out, e.history[start:])
	return out
}
