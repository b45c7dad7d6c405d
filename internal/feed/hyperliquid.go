package feed

import (
	"encoding/json"
	"time"

	"hl-aevo-arb/internal/venue"

	"github.com/moznion/go-optional"
)

type HyperliquidNormalizer struct{}

func (HyperliquidNormalizer) Venue() venue.ID { return venue.Hyperliquid }

func (HyperliquidNormalizer) Normalize(raw json.RawMessage, at time.Time) []Update {
	var msg struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || len(msg.Data) == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return nil
	}
	switch msg.Channel {
	case "activeAssetCtx":
		if u, ok := hlAssetCtx(data, at); ok {
			return []Update{u}
		}
	case "webData2":
		return hlPositions(data, at)
	}
	return nil
}

func hlAssetCtx(data map[string]any, at time.Time) (Update, bool) {
	coin := venue.StringField(data, "coin")
	ctx, ok := venue.AsMap(data["ctx"])
	if coin == "" || !ok {
		return Update{}, false
	}
	u := Update{
		Venue:       venue.Hyperliquid,
		Symbol:      Canonical(venue.Hyperliquid, coin),
		MarkPrice:   positivePrice(ctx, "markPx"),
		FundingRate: anyRate(ctx, "funding"),
		ObservedAt:  at,
	}
	return u, !u.Empty()
}

func hlPositions(data map[string]any, at time.Time) []Update {
	state, ok := venue.AsMap(data["clearinghouseState"])
	if !ok {
		return nil
	}
	raw, ok := venue.AsSlice(state["assetPositions"])
	if !ok {
		return nil
	}
	var out []Update
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		entry, ok := venue.AsMap(item)
		if !ok {
			continue
		}
		pos := entry
		if nested, ok := venue.AsMap(entry["position"]); ok {
			pos = nested
		}
		coin := venue.StringField(pos, "coin")
		size, ok := venue.FloatField(pos, "szi")
		if coin == "" || !ok || size == 0 {
			continue
		}
		if _, dup := seen[coin]; dup {
			continue
		}
		seen[coin] = struct{}{}
		side := venue.Long
		if size < 0 {
			side = venue.Short
		}
		out = append(out, Update{
			Venue:            venue.Hyperliquid,
			Symbol:           Canonical(venue.Hyperliquid, coin),
			LiquidationPrice: positivePrice(pos, "liquidationPx"),
			PositionSide:     optional.Some(side),
			ObservedAt:       at,
		})
	}
	return out
}
