package venue

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestFloatFieldMixedTypes(t *testing.T) {
	m := map[string]any{
		"str":   "1.25",
		"num":   2.5,
		"json":  json.Number("3.75"),
		"blank": " ",
	}
	if v, ok := FloatField(m, "missing", "str"); !ok || v != 1.25 {
		t.Fatalf("expected 1.25, got %v (ok=%v)", v, ok)
	}
	if v, ok := FloatField(m, "num"); !ok || v != 2.5 {
		t.Fatalf("expected 2.5, got %v", v)
	}
	if v, ok := FloatField(m, "json"); !ok || v != 3.75 {
		t.Fatalf("expected 3.75, got %v", v)
	}
	if _, ok := FloatField(m, "blank"); ok {
		t.Fatalf("expected blank string to be rejected")
	}
}

func TestStringFieldNumeric(t *testing.T) {
	m := map[string]any{"id": float64(1234)}
	if got := StringField(m, "id"); got != "1234" {
		t.Fatalf("expected 1234, got %q", got)
	}
}

func TestParseStatusOf(t *testing.T) {
	err := MissingField(Aevo, "collaterals")
	status, ok := ParseStatusOf(err)
	if !ok || status != ParseMissingField {
		t.Fatalf("expected missing field status, got %v (ok=%v)", status, ok)
	}
	wrapped := errors.Join(errors.New("refresh"), Malformed(Hyperliquid, "withdrawable", errors.New("bad")))
	status, ok = ParseStatusOf(wrapped)
	if !ok || status != ParseMalformed {
		t.Fatalf("expected malformed status, got %v (ok=%v)", status, ok)
	}
	if _, ok := ParseStatusOf(errors.New("timeout")); ok {
		t.Fatalf("expected transport error to be unclassified")
	}
}

func TestSideHelpers(t *testing.T) {
	if Long.Opposite() != Short || !Long.IsBuy() || Short.IsBuy() {
		t.Fatalf("unexpected side helpers")
	}
	if Hyperliquid.Other() != Aevo || Aevo.Other() != Hyperliquid {
		t.Fatalf("unexpected venue counterpart")
	}
}
