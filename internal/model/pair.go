package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// PairID returns the canonical identifier of a country pair: both codes
// upper-cased, sorted lexicographically and joined by "_", so that (A,B) and
// (B,A) resolve to one identifier.
func PairID(a, b string) string {
	a = normalizeCode(a)
	b = normalizeCode(b)
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// SplitPair validates a canonical pair identifier and returns its two
// country codes in identifier order.
func SplitPair(id string) (string, string, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 2 || !validCode(parts[0]) || !validCode(parts[1]) {
		return "", "", eris.Wrapf(ErrConfiguration, "model: invalid pair id %q", id)
	}
	if parts[0] == parts[1] {
		return "", "", eris.Wrapf(ErrConfiguration, "model: pair %q names one country twice", id)
	}
	if PairID(parts[0], parts[1]) != id {
		return "", "", eris.Wrapf(ErrConfiguration, "model: pair id %q is not canonical (want %s)", id, PairID(parts[0], parts[1]))
	}
	return parts[0], parts[1], nil
}

// BoundaryKey is the composite pair+country identifier used by the
// boundary dataset, e.g. "AD_ES_AD". Territories can be split per analyzed
// pair, so the bare country code is never used for lookup.
func BoundaryKey(pair, country string) string {
	return pair + "_" + normalizeCode(country)
}

func normalizeCode(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func validCode(c string) bool {
	if len(c) != 2 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ParsePair accepts a pair identifier in any case or code order and returns
// its canonical form.
func ParsePair(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), "_")
	if len(parts) != 2 {
		return "", eris.Wrapf(ErrConfiguration, "model: invalid pair id %q", s)
	}
	id := PairID(parts[0], parts[1])
	if _, _, err := SplitPair(id); err != nil {
		return "", err
	}
	return id, nil
}
