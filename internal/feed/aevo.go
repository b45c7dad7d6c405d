package feed

import (
	"encoding/json"
	"strings"
	"time"

	"hl-aevo-arb/internal/venue"

	"github.com/moznion/go-optional"
)

type AevoNormalizer struct{}

func (AevoNormalizer) Venue() venue.ID { return venue.Aevo }

func (AevoNormalizer) Normalize(raw json.RawMessage, at time.Time) []Update {
	var msg struct {
		Channel string `json:"channel"`
		Data    struct {
			Tickers []map[string]any `json:"tickers"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	if !strings.HasPrefix(msg.Channel, "ticker:") || len(msg.Data.Tickers) == 0 {
		return nil
	}
	var out []Update
	seen := make(map[string]struct{}, len(msg.Data.Tickers))
	for _, ticker := range msg.Data.Tickers {
		u, ok := aevoTicker(ticker, at)
		if !ok {
			continue
		}
		if _, dup := seen[u.Symbol]; dup {
			continue
		}
		seen[u.Symbol] = struct{}{}
		out = append(out, u)
	}
	return out
}

func aevoTicker(ticker map[string]any, at time.Time) (Update, bool) {
	name := venue.StringField(ticker, "instrument_name")
	if name == "" || !strings.HasSuffix(strings.ToUpper(name), aevoPerpSuffix) {
		return Update{}, false
	}
	u := Update{
		Venue:       venue.Aevo,
		Symbol:      Canonical(venue.Aevo, name),
		FundingRate: anyRate(ticker, "funding_rate"),
		ObservedAt:  at,
	}
	if mark, ok := venue.AsMap(ticker["mark"]); ok {
		u.MarkPrice = positivePrice(mark, "price")
	}
	if id := venue.StringField(ticker, "instrument_id"); id != "" {
		u.InstrumentRef = optional.Some(id)
	}
	if u.MarkPrice.IsNone() && u.FundingRate.IsNone() {
		return Update{}, false
	}
	return u, true
}
