package feed

import (
	"encoding/json"
	"testing"
	"time"

	"hl-aevo-arb/internal/venue"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestHyperliquidAssetCtx(t *testing.T) {
	raw := json.RawMessage(`{"channel":"activeAssetCtx","data":{"coin":"ETH","ctx":{"funding":"0.0000125","markPx":"3012.5","oraclePx":"3011"}}}`)
	updates := HyperliquidNormalizer{}.Normalize(raw, testNow)
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	u := updates[0]
	if u.Venue != venue.Hyperliquid || u.Symbol != "ETH" {
		t.Fatalf("unexpected venue/symbol: %s %s", u.Venue, u.Symbol)
	}
	if u.MarkPrice.Unwrap() != 3012.5 {
		t.Fatalf("expected mark 3012.5, got %v", u.MarkPrice.Unwrap())
	}
	if u.FundingRate.Unwrap() != 0.0000125 {
		t.Fatalf("expected funding 0.0000125, got %v", u.FundingRate.Unwrap())
	}
	if u.LiquidationPrice.IsSome() || u.PositionSide.IsSome() {
		t.Fatalf("expected liquidation/side absent")
	}
	if !u.ObservedAt.Equal(testNow) {
		t.Fatalf("expected observed time to be stamped")
	}
}

func TestHyperliquidPositions(t *testing.T) {
	raw := json.RawMessage(`{"channel":"webData2","data":{"clearinghouseState":{"assetPositions":[
		{"type":"oneWay","position":{"coin":"SOL","szi":"-12.5","liquidationPx":"180.2"}},
		{"type":"oneWay","position":{"coin":"kPEPE","szi":"1000","liquidationPx":null}},
		{"type":"oneWay","position":{"coin":"BTC","szi":"0"}}
	]}}}`)
	updates := HyperliquidNormalizer{}.Normalize(raw, testNow)
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].Symbol != "SOL" || updates[0].PositionSide.Unwrap() != venue.Short {
		t.Fatalf("unexpected SOL update: %+v", updates[0])
	}
	if updates[0].LiquidationPrice.Unwrap() != 180.2 {
		t.Fatalf("expected SOL liquidation 180.2, got %v", updates[0].LiquidationPrice.Unwrap())
	}
	if updates[1].Symbol != "kPEPE" || updates[1].PositionSide.Unwrap() != venue.Long {
		t.Fatalf("unexpected kPEPE update: %+v", updates[1])
	}
	if updates[1].LiquidationPrice.IsSome() {
		t.Fatalf("expected null liquidation price to be absent")
	}
}

func TestHyperliquidDropsUnknownAndMalformed(t *testing.T) {
	n := HyperliquidNormalizer{}
	for _, raw := range []string{
		`{"channel":"pong"}`,
		`{"channel":"subscriptionResponse","data":{"method":"subscribe"}}`,
		`{"channel":"activeAssetCtx","data":{"coin":"ETH"}}`,
		`{"channel":"activeAssetCtx","data":{"coin":"ETH","ctx":{"markPx":"abc"}}}`,
		`not json`,
	} {
		if got := n.Normalize(json.RawMessage(raw), testNow); len(got) != 0 {
			t.Fatalf("expected no updates for %s, got %+v", raw, got)
		}
	}
}

func TestAevoTicker(t *testing.T) {
	raw := json.RawMessage(`{"channel":"ticker:PEPE:PERPETUAL","data":{"timestamp":"1714564800000000000","tickers":[
		{"instrument_id":"2890","instrument_name":"1000PEPE-PERP","instrument_type":"PERPETUAL","mark":{"price":"0.0081"},"funding_rate":"-0.000021"}
	]}}`)
	updates := AevoNormalizer{}.Normalize(raw, testNow)
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	u := updates[0]
	if u.Symbol != "kPEPE" {
		t.Fatalf("expected canonical kPEPE, got %s", u.Symbol)
	}
	if u.MarkPrice.Unwrap() != 0.0081 || u.FundingRate.Unwrap() != -0.000021 {
		t.Fatalf("unexpected values: mark=%v funding=%v", u.MarkPrice.Unwrap(), u.FundingRate.Unwrap())
	}
	if u.InstrumentRef.Unwrap() != "2890" {
		t.Fatalf("expected instrument ref 2890, got %q", u.InstrumentRef.Unwrap())
	}
}

func TestAevoDropsNonPerpAndEmpty(t *testing.T) {
	n := AevoNormalizer{}
	for _, raw := range []string{
		`{"channel":"ticker:ETH:OPTION","data":{"tickers":[{"instrument_name":"ETH-31MAY24-3000-C","mark":{"price":"12"}}]}}`,
		`{"channel":"ticker:ETH:PERPETUAL","data":{"tickers":[]}}`,
		`{"channel":"ticker:ETH:PERPETUAL","data":{"tickers":[{"instrument_name":"ETH-PERP"}]}}`,
		`{"op":"pong"}`,
	} {
		if got := n.Normalize(json.RawMessage(raw), testNow); len(got) != 0 {
			t.Fatalf("expected no updates for %s, got %+v", raw, got)
		}
	}
}

func TestSymbolMapping(t *testing.T) {
	cases := []struct {
		venue venue.ID
		raw   string
		want  string
	}{
		{venue.Aevo, "ETH-PERP", "ETH"},
		{venue.Aevo, "1000PEPE-PERP", "kPEPE"},
		{venue.Aevo, "1000PEPE", "kPEPE"},
		{venue.Aevo, "kPEPE", "kPEPE"},
		{venue.Hyperliquid, "kPEPE", "kPEPE"},
		{venue.Hyperliquid, " BTC ", "BTC"},
	}
	for _, tc := range cases {
		if got := Canonical(tc.venue, tc.raw); got != tc.want {
			t.Fatalf("Canonical(%s, %q): expected %q, got %q", tc.venue, tc.raw, tc.want, got)
		}
	}
	if got := AevoInstrument("kPEPE"); got != "1000PEPE-PERP" {
		t.Fatalf("expected 1000PEPE-PERP, got %s", got)
	}
	if got := VenueSymbol(venue.Hyperliquid, "kPEPE"); got != "kPEPE" {
		t.Fatalf("expected kPEPE, got %s", got)
	}
}

func TestFromSnapshot(t *testing.T) {
	snap := venue.AccountSnapshot{
		Venue: venue.Aevo,
		OpenPosition: &venue.Position{
			Symbol:           "ETH-PERP",
			Side:             venue.Long,
			Size:             1,
			LiquidationPrice: 2500,
			InstrumentRef:    "1",
		},
	}
	u, ok := FromSnapshot(snap, testNow)
	if !ok {
		t.Fatalf("expected update")
	}
	if u.Symbol != "ETH" || u.LiquidationPrice.Unwrap() != 2500 || u.PositionSide.Unwrap() != venue.Long {
		t.Fatalf("unexpected update: %+v", u)
	}
	if _, ok := FromSnapshot(venue.AccountSnapshot{Venue: venue.Aevo}, testNow); ok {
		t.Fatalf("expected no update without a position")
	}
}
