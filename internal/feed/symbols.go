package feed

import (
	"strings"

	"hl-aevo-arb/internal/venue"
)

// Canonical symbols follow Hyperliquid naming: scaled contracts use a
// lowercase "k" prefix (kPEPE) where Aevo quotes the same unit as 1000PEPE.
const (
	scaledPrefix     = "k"
	aevoScaledPrefix = "1000"
	aevoPerpSuffix   = "-PERP"
)

func Canonical(id venue.ID, raw string) string {
	sym := strings.TrimSpace(raw)
	if id != venue.Aevo || strings.HasPrefix(sym, scaledPrefix) {
		return sym
	}
	sym = strings.TrimSuffix(strings.ToUpper(sym), aevoPerpSuffix)
	if strings.HasPrefix(sym, aevoScaledPrefix) && len(sym) > len(aevoScaledPrefix) {
		return scaledPrefix + sym[len(aevoScaledPrefix):]
	}
	return sym
}

// VenueSymbol maps a canonical symbol to the venue's asset name (without any
// instrument suffix).
func VenueSymbol(id venue.ID, canonical string) string {
	sym := strings.TrimSpace(canonical)
	if id != venue.Aevo {
		return sym
	}
	if strings.HasPrefix(sym, scaledPrefix) && len(sym) > 1 {
		return aevoScaledPrefix + strings.ToUpper(sym[1:])
	}
	return strings.ToUpper(sym)
}

// AevoInstrument returns the perpetual instrument name for a canonical symbol.
func AevoInstrument(canonical string) string {
	return VenueSymbol(venue.Aevo, canonical) + aevoPerpSuffix
}
