package consensus

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Dimensions holds one provider's physical measurement fields as raw
// strings. Depth doubles as length; suppliers use the terms
// interchangeably.
type Dimensions struct {
	Depth  string
	Width  string
	Height string
}

// ReconciledDimensions is the canonical output of dimension
// reconciliation: unit-less inch values rendered back to strings.
type ReconciledDimensions struct {
	Depth  string
	Width  string
	Height string

	// SwapCorrected is set when the providers supplied transposed
	// depth/width and the values were reassigned larger-to-depth.
	SwapCorrected bool

	// NeedsReview is set when a swap was detected but the item is too
	// close to square to correct confidently.
	NeedsReview bool
}

var dimensionKeys = map[string]struct{}{
	"depth":  {},
	"length": {},
	"width":  {},
	"height": {},
}

// IsDimensionField reports whether an attribute key names a physical
// measurement handled by the reconciler.
func IsDimensionField(key string) bool {
	_, ok := dimensionKeys[normalizeKey(key)]
	return ok
}

// DimensionsFrom extracts the measurement fields from a primary
// attribute map. A "length" key feeds the depth role when "depth" is
// absent.
func DimensionsFrom(primary map[string]string) Dimensions {
	d := Dimensions{}
	for k, v := range primary {
		switch normalizeKey(k) {
		case "depth":
			d.Depth = v
		case "length":
			if d.Depth == "" {
				d.Depth = v
			}
		case "width":
			d.Width = v
		case "height":
			d.Height = v
		}
	}
	return d
}

var leadingNumberRe = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)

// unitFactors maps a detected unit to its inches multiplier. The feet
// and inch marks are matched literally, so ToInches keeps its own
// normalization instead of Normalize (which strips quote characters).
var unitFactors = []struct {
	pattern *regexp.Regexp
	factor  float64
}{
	{regexp.MustCompile(`\b(ft|foot|feet)\b|['’]`), 12},
	{regexp.MustCompile(`\bcm\b|centimet`), 1 / 2.54},
	{regexp.MustCompile(`\bmm\b|millimet`), 1 / 25.4},
	{regexp.MustCompile(`\bm\b|\bmeters?\b|\bmetres?\b`), 39.37},
}

// ToInches normalizes a raw measurement to a unit-less inch value.
// The leading number is taken and converted by any detected unit;
// unrecognized units are assumed to already be inches.
func ToInches(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(raw)))
	if _, ok := placeholders[s]; ok {
		return 0, false
	}
	m := leadingNumberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	rest := strings.TrimSpace(s[len(m[0]):])
	for _, u := range unitFactors {
		if u.pattern.MatchString(rest) {
			return n * u.factor, true
		}
	}
	return n, true
}

// ReconcileDimensions resolves ambiguous or transposed measurements
// between the two providers for the agreed category.
//
// Swap detection: when both providers supply depth and width and A's
// depth equals B's width and vice versa, the pair is considered
// transposed and the larger value is assigned to depth. Near-square
// items (difference below minSwapDelta inches) are flagged for review
// instead of silently corrected.
//
// For circular categories, a lone depth or width is mirrored into the
// other field: a diameter serves both roles.
func ReconcileDimensions(a, b Dimensions, category string, rules *Rules, minSwapDelta float64) ReconciledDimensions {
	out := ReconciledDimensions{
		Depth:  pickMeasurement(a.Depth, b.Depth),
		Width:  pickMeasurement(a.Width, b.Width),
		Height: pickMeasurement(a.Height, b.Height),
	}

	da, okDA := ToInches(a.Depth)
	wa, okWA := ToInches(a.Width)
	db, okDB := ToInches(b.Depth)
	wb, okWB := ToInches(b.Width)

	if okDA && okWA && okDB && okWB &&
		math.Abs(da-wb) < numericEpsilon && math.Abs(wa-db) < numericEpsilon &&
		math.Abs(da-wa) >= numericEpsilon {
		if math.Abs(da-wa) < minSwapDelta {
			out.NeedsReview = true
		} else {
			out.Depth = formatInches(math.Max(da, wa))
			out.Width = formatInches(math.Min(da, wa))
			out.SwapCorrected = true
		}
	}

	if rules.IsCircular(category) {
		switch {
		case out.Depth != "" && out.Width == "":
			out.Width = out.Depth
		case out.Width != "" && out.Depth == "":
			out.Depth = out.Width
		}
	}

	return out
}

// pickMeasurement normalizes the first parseable of the two raw values
// to inches, preferring provider A.
func pickMeasurement(a, b string) string {
	if v, ok := ToInches(a); ok {
		return formatInches(v)
	}
	if v, ok := ToInches(b); ok {
		return formatInches(v)
	}
	return ""
}

func formatInches(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
