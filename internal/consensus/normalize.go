package consensus

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// numericEpsilon is the absolute difference under which two numeric
// values are considered equal.
const numericEpsilon = 0.1

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	quoteRe      = regexp.MustCompile("[\"'`“”‘’]")

	// Common unit suffixes on product attribute values. Units are only
	// stripped after a digit so words like "satin" survive intact.
	unitSuffixRe = regexp.MustCompile(`(?i)(\d)\s*(inches|inch|in\.?|lbs\.?|lb\.?|pounds)$`)
)

// placeholders are tokens that mean "no value" in supplier feeds.
var placeholders = map[string]struct{}{
	"n/a":         {},
	"na":          {},
	"unavailable": {},
	"unknown":     {},
	"none":        {},
	"null":        {},
	"-":           {},
}

// Normalize canonicalizes an attribute value for comparison: NFKC fold,
// lowercase, trimmed, internal whitespace collapsed, quote characters and
// trailing unit suffixes stripped, placeholder tokens emptied.
func Normalize(v string) string {
	v = norm.NFKC.String(v)
	v = strings.ToLower(strings.TrimSpace(v))
	v = quoteRe.ReplaceAllString(v, "")
	v = whitespaceRe.ReplaceAllString(v, " ")
	v = unitSuffixRe.ReplaceAllString(v, "$1")
	v = strings.TrimSpace(v)
	if _, ok := placeholders[v]; ok {
		return ""
	}
	return v
}

// Equal reports whether two raw values are semantically equal: identical
// after normalization, one a substring of the other, or both numeric and
// within numericEpsilon.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return true
	}
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	fa, okA := parseNumber(na)
	fb, okB := parseNumber(nb)
	return okA && okB && math.Abs(fa-fb) < numericEpsilon
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Present reports whether a raw value carries real content (non-empty
// after normalization).
func Present(v string) bool {
	return Normalize(v) != ""
}
