package hl

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"hl-aevo-arb/internal/venue"
)

// parseClearinghouse turns a clearinghouseState response into a snapshot.
// An empty assetPositions list is a flat account, not an error.
func parseClearinghouse(payload map[string]any, at time.Time) (venue.AccountSnapshot, error) {
	id := venue.Hyperliquid
	if payload == nil {
		return venue.AccountSnapshot{}, venue.MissingField(id, "clearinghouseState")
	}
	collateral, err := requiredFloat(payload, "withdrawable")
	if err != nil {
		return venue.AccountSnapshot{}, err
	}
	summary, ok := venue.AsMap(payload["marginSummary"])
	if !ok {
		return venue.AccountSnapshot{}, venue.MissingField(id, "marginSummary")
	}
	equity, err := requiredFloat(summary, "accountValue")
	if err != nil {
		return venue.AccountSnapshot{}, err
	}
	rawPositions, present := payload["assetPositions"]
	if !present {
		return venue.AccountSnapshot{}, venue.MissingField(id, "assetPositions")
	}
	positions, ok := venue.AsSlice(rawPositions)
	if !ok && rawPositions != nil {
		return venue.AccountSnapshot{}, venue.Malformed(id, "assetPositions", fmt.Errorf("unexpected %T", rawPositions))
	}
	snap := venue.AccountSnapshot{Venue: id, CollateralBalance: collateral, Equity: equity, FetchedAt: at}
	for _, item := range positions {
		entry, ok := venue.AsMap(item)
		if !ok {
			return venue.AccountSnapshot{}, venue.Malformed(id, "assetPositions[]", fmt.Errorf("unexpected %T", item))
		}
		pos, ok := venue.AsMap(entry["position"])
		if !ok {
			return venue.AccountSnapshot{}, venue.MissingField(id, "assetPositions[].position")
		}
		coin := venue.StringField(pos, "coin")
		if coin == "" {
			return venue.AccountSnapshot{}, venue.MissingField(id, "position.coin")
		}
		size, err := requiredFloat(pos, "szi")
		if err != nil {
			return venue.AccountSnapshot{}, err
		}
		if size == 0 {
			continue
		}
		side := venue.Long
		if size < 0 {
			side = venue.Short
		}
		entryPx, _ := venue.FloatField(pos, "entryPx")
		// liquidationPx is null when the account cannot be liquidated.
		liqPx, _ := venue.FloatField(pos, "liquidationPx")
		p := venue.Position{
			Symbol:           coin,
			Side:             side,
			Size:             math.Abs(size),
			EntryPrice:       entryPx,
			LiquidationPrice: liqPx,
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
		return 0, venue.MissingField(venue.Hyperliquid, key)
	}
	f, ok := venue.AsFloat(raw)
	if !ok {
		return 0, venue.Malformed(venue.Hyperliquid, key, fmt.Errorf("not numeric: %v", raw))
	}
	return f, nil
}

// parseMetaAndAssetCtxs reads the [meta, ctxs] pair. The asset index is the
// position in the universe list.
func parseMetaAndAssetCtxs(payload any) (map[string]assetMeta, error) {
	pair, ok := venue.AsSlice(payload)
	if !ok || len(pair) < 2 {
		return nil, errors.New("metaAndAssetCtxs: expected [meta, ctxs]")
	}
	meta, ok := venue.AsMap(pair[0])
	if !ok {
		return nil, errors.New("metaAndAssetCtxs: meta is not an object")
	}
	universe, _ := venue.AsSlice(meta["universe"])
	ctxs, _ := venue.AsSlice(pair[1])
	if len(universe) == 0 {
		return nil, errors.New("metaAndAssetCtxs: empty universe")
	}
	out := make(map[string]assetMeta, len(universe))
	for i, item := range universe {
		asset, ok := venue.AsMap(item)
		if !ok {
			continue
		}
		name := venue.StringField(asset, "name")
		if name == "" {
			continue
		}
		m := assetMeta{Index: i, SzDecimals: venue.IntFromAny(asset["szDecimals"], 0)}
		if i < len(ctxs) {
			if ctx, ok := venue.AsMap(ctxs[i]); ok {
				m.Funding, _ = venue.FloatField(ctx, "funding")
				m.MarkPrice, _ = venue.FloatField(ctx, "markPx")
			}
		}
		out[name] = m
	}
	return out, nil
}

// normalizeLimitPrice keeps five significant figures and at most
// 6-szDecimals decimals, as perp prices require.
func normalizeLimitPrice(price float64, szDecimals int) float64 {
	if price == 0 {
		return 0
	}
	if sig, err := strconv.ParseFloat(strconv.FormatFloat(price, 'g', 5, 64), 64); err == nil {
		price = sig
	}
	decimals := 6 - szDecimals
	if decimals < 0 {
		decimals = 0
	}
	factor := math.Pow10(decimals)
	return math.Round(price*factor) / factor
}
