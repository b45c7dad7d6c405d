package aevo

import (
	"fmt"
	"strings"
	"time"

	"hl-aevo-arb/internal/feed"
	"hl-aevo-arb/internal/venue"
)

// parseAccount turns a GET /account response into a snapshot. Only perpetual
// positions are considered; the first non-zero one wins.
func parseAccount(payload map[string]any, at time.Time) (venue.AccountSnapshot, error) {
	id := venue.Aevo
	if payload == nil {
		return venue.AccountSnapshot{}, venue.MissingField(id, "account")
	}
	balance, err := requiredFloat(payload, "balance")
	if err != nil {
		return venue.AccountSnapshot{}, err
	}
	equity, ok := venue.FloatField(payload, "equity")
	if !ok {
		equity = balance
	}
	rawPositions, present := payload["positions"]
	if !present {
		return venue.AccountSnapshot{}, venue.MissingField(id, "positions")
	}
	positions, ok := venue.AsSlice(rawPositions)
	if !ok && rawPositions != nil {
		return venue.AccountSnapshot{}, venue.Malformed(id, "positions", fmt.Errorf("unexpected %T", rawPositions))
	}
	snap := venue.AccountSnapshot{Venue: id, CollateralBalance: balance, Equity: equity, FetchedAt: at}
	for _, item := range positions {
		pos, ok := venue.AsMap(item)
		if !ok {
			return venue.AccountSnapshot{}, venue.Malformed(id, "positions[]", fmt.Errorf("unexpected %T", item))
		}
		name := venue.StringField(pos, "instrument_name")
		if name == "" {
			return venue.AccountSnapshot{}, venue.MissingField(id, "position.instrument_name")
		}
		if !strings.HasSuffix(strings.ToUpper(name), "-PERP") {
			continue
		}
		size, err := requiredFloat(pos, "amount")
		if err != nil {
			return venue.AccountSnapshot{}, err
		}
		if size == 0 {
			continue
		}
		var side venue.Side
		switch strings.ToLower(venue.StringField(pos, "side")) {
		case "buy":
			side = venue.Long
		case "sell":
			side = venue.Short
		default:
			return venue.AccountSnapshot{}, venue.Malformed(id, "position.side", fmt.Errorf("unexpected %v", pos["side"]))
		}
		entryPx, _ := venue.FloatField(pos, "avg_entry_price")
		liqPx, _ := venue.FloatField(pos, "liquidation_price")
		p := venue.Position{
			Symbol:           feed.Canonical(id, name),
			Side:             side,
			Size:             size,
			EntryPrice:       entryPx,
			LiquidationPrice: liqPx,
			InstrumentRef:    venue.StringField(pos, "instrument_id"),
		}
		if snap.OpenPosition == nil {
			snap.OpenPosition = &p
		} else {
			snap.ExtraPositions = append(snap.ExtraPositions, p)
		}
	}
	return snap, nil
}

func requiredFloat(m map[string]any, key string) (float64, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return 0, venue.MissingField(venue.Aevo, key)
	}
	f, ok := venue.AsFloat(raw)
	if !ok {
		return 0, venue.Malformed(venue.Aevo, key, fmt.Errorf("not numeric: %v", raw))
	}
	return f, nil
}
