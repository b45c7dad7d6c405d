package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hl-aevo-arb/internal/alerts"
	"hl-aevo-arb/internal/config"
	"hl-aevo-arb/internal/engine"
	"hl-aevo-arb/internal/strategy"
	"hl-aevo-arb/internal/venue"

	"go.uber.org/zap"
)

const (
	operatorOffsetKey   = "telegram:operator:last_update_id"
	defaultValuesLimit  = 10
	statusCandidateRows = 3
)

type operatorMeta struct {
	UpdateID int64  `json:"update_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	ChatID   int64  `json:"chat_id"`
	Raw      string `json:"command"`
}

type auditState struct {
	Paused bool   `json:"paused"`
	State  string `json:"state"`
}

// operatorAudit is stored under ops:audit:<unix nanos>:<update id> for
// every pause/resume, including failed ones.
type operatorAudit struct {
	Time   time.Time    `json:"time"`
	Action string       `json:"action"`
	Actor  operatorMeta `json:"actor"`
	Before auditState   `json:"before"`
	After  auditState   `json:"after"`
	Error  string       `json:"error,omitempty"`
}

type operatorConfig struct {
	chatID  int64
	allowed map[int64]struct{}
	poll    time.Duration
}

func newOperatorConfig(cfg config.TelegramConfig) (operatorConfig, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
	if err != nil {
		return operatorConfig{}, fmt.Errorf("invalid chat_id: %w", err)
	}
	oc := operatorConfig{chatID: chatID, poll: cfg.OperatorPollInterval}
	if oc.poll <= 0 {
		oc.poll = 3 * time.Second
	}
	if len(cfg.OperatorAllowedUserIDs) > 0 {
		oc.allowed = make(map[int64]struct{}, len(cfg.OperatorAllowedUserIDs))
		for _, id := range cfg.OperatorAllowedUserIDs {
			oc.allowed[id] = struct{}{}
		}
	}
	return oc, nil
}

// accepts reports whether msg comes from the configured chat and, when an
// allow-list is set, from one of its users.
func (oc operatorConfig) accepts(msg *alerts.Message) bool {
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.Chat.ID != oc.chatID {
		return false
	}
	if oc.allowed == nil {
		return true
	}
	_, ok := oc.allowed[msg.From.ID]
	return ok
}

func (a *App) runOperator(ctx context.Context) {
	oc, err := newOperatorConfig(a.cfg.Telegram)
	if err != nil {
		a.log.Warn("telegram operator disabled", zap.Error(err))
		return
	}
	offset := a.loadOperatorOffset(ctx)
	failing := false
	for ctx.Err() == nil {
		updates, err := a.alerts.GetUpdates(ctx, offset, oc.poll)
		if err != nil {
			if !failing && ctx.Err() == nil {
				a.log.Warn("telegram operator failed", zap.Error(err))
			}
			failing = true
			select {
			case <-ctx.Done():
			case <-time.After(oc.poll):
			}
			continue
		}
		if failing {
			a.log.Info("telegram operator recovered")
			failing = false
		}
		if len(updates) == 0 {
			continue
		}
		// Commit the offset before acting so a crash never replays a command.
		for _, upd := range updates {
			offset = max(offset, upd.UpdateID+1)
		}
		a.saveOperatorOffset(ctx, offset)
		for _, upd := range updates {
			a.handleOperatorUpdate(ctx, upd, oc)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, oc operatorConfig) {
	msg := upd.Message
	if !oc.accepts(msg) {
		return
	}
	cmd, args, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, args, meta)
	if err != nil {
		resp = "command failed: " + err.Error()
	}
	if resp == "" {
		return
	}
	if err := a.alerts.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Int64("update_id", upd.UpdateID), zap.Error(err))
	}
}

// parseOperatorCommand splits "/cmd[@bot] args..." into a lower-case
// command and its arguments.
func parseOperatorCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0][1:]), "@")
	return cmd, fields[1:], cmd != ""
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, args []string, meta operatorMeta) (string, error) {
	switch cmd {
	case "status":
		return a.operatorStatus(), nil
	case "pause":
		before := a.control.Status()
		err := a.control.Pause(ctx)
		a.auditControl(ctx, "pause", meta, before, err)
		if err != nil {
			return "", err
		}
		if before.Paused {
			return "entries already paused", nil
		}
		return "entries paused", nil
	case "resume":
		before := a.control.Status()
		err := a.control.Resume(ctx)
		a.auditControl(ctx, "resume", meta, before, err)
		if err != nil {
			return "", err
		}
		after := a.control.Status()
		if before.State == strategy.StateHalted {
			return fmt.Sprintf("resumed from HALTED, state %s", after.State), nil
		}
		if !before.Paused {
			return "entries already active", nil
		}
		return "entries resumed", nil
	case "values":
		limit := defaultValuesLimit
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return "", fmt.Errorf("invalid values limit: %s", args[0])
			}
			limit = n
		}
		return a.operatorValues(limit), nil
	default:
		return operatorHelpText(), nil
	}
}

func (a *App) auditControl(ctx context.Context, action string, meta operatorMeta, before engine.Status, err error) {
	after := a.control.Status()
	event := operatorAudit{
		Time:   time.Now().UTC(),
		Action: action,
		Actor:  meta,
		Before: auditState{Paused: before.Paused, State: string(before.State)},
		After:  auditState{Paused: after.Paused, State: string(after.State)},
	}
	if err != nil {
		event.Error = err.Error()
	}
	payload, merr := json.Marshal(event)
	if merr != nil || a.store == nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", event.Time.UnixNano(), meta.UpdateID)
	if serr := a.store.Set(ctx, key, string(payload)); serr != nil {
		a.log.Warn("operator audit failed", zap.String("action", action), zap.Error(serr))
	}
}

func (a *App) operatorStatus() string {
	st := a.control.Status()
	lines := []string{
		fmt.Sprintf("state: %s", st.State),
		fmt.Sprintf("paused: %t", st.Paused),
	}
	if st.HaltReason != "" {
		lines = append(lines, fmt.Sprintf("halt_reason: %s", st.HaltReason))
	}
	if pos := st.Position; pos != nil {
		lines = append(lines, fmt.Sprintf("position: %s long %s short %s size %.6f since %s",
			pos.Symbol, pos.LongVenue, pos.LongVenue.Other(), pos.Size, pos.OpenedAt.Format(time.RFC3339)))
	} else {
		lines = append(lines, "position: none")
	}
	if !st.CooldownUntil.IsZero() && st.CooldownUntil.After(time.Now()) {
		lines = append(lines, fmt.Sprintf("entry_cooldown_until: %s", st.CooldownUntil.UTC().Format(time.RFC3339)))
	}
	for _, id := range []venue.ID{venue.Hyperliquid, venue.Aevo} {
		snap, ok := st.Snapshots[id]
		if !ok {
			lines = append(lines, fmt.Sprintf("%s: no snapshot", id))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: collateral %.2f equity %.2f", id, snap.CollateralBalance, snap.Equity))
	}
	candidates := a.control.Candidates()
	if len(candidates) > statusCandidateRows {
		candidates = candidates[:statusCandidateRows]
	}
	for _, c := range candidates {
		lines = append(lines, formatCandidate(c))
	}
	return strings.Join(lines, "\n")
}

func formatCandidate(c strategy.Candidate) string {
	return fmt.Sprintf("%s: long %s short %s spread %.6f total %.5f hours %.1f",
		c.Symbol, c.LongVenue, c.ShortVenue, c.Spread, c.TotalPnL, c.HoursNeeded)
}

func (a *App) operatorValues(limit int) string {
	entries := a.control.Values(limit)
	if len(entries) == 0 {
		return "no values recorded"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s total %.2f (hyperliquid %.2f, aevo %.2f)",
			e.Timestamp.UTC().Format(time.RFC3339), e.EquityTotal, e.EquityA, e.EquityB))
	}
	return strings.Join(lines, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - engine state, position, balances and best candidates",
		"/pause - stop new entries (exits keep running)",
		"/resume - resume entries, or reconcile and leave HALTED",
		"/values [n] - last n equity records",
	}, "\n")
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		a.log.Warn("ignoring corrupt operator offset", zap.String("value", raw))
		return 0
	}
	return max(offset, 0)
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if a.store == nil {
		return
	}
	if err := a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10)); err != nil {
		a.log.Warn("operator offset save failed", zap.Int64("offset", offset), zap.Error(err))
	}
}
