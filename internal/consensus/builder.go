package consensus

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-verify/internal/model"
)

// Scoring weights for the overall confidence formula.
const (
	providerConfidenceWeight = 0.5
	agreementRatioWeight     = 0.4
	categoryBonus            = 0.1
)

// Builder merges two provider analyses into a consensus.
type Builder struct {
	rules        *Rules
	minSwapDelta float64
}

// NewBuilder creates a Builder. minSwapDelta is the inch difference below
// which a detected depth/width swap is flagged for review instead of
// corrected.
func NewBuilder(rules *Rules, minSwapDelta float64) *Builder {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Builder{rules: rules, minSwapDelta: minSwapDelta}
}

// Build produces a fresh ConsensusResult from two analyses. It never
// mutates its inputs; each stage of a run rebuilds consensus from
// scratch.
func (bld *Builder) Build(a, b *model.AnalysisResult) model.ConsensusResult {
	category, categoryMatched := resolveCategory(a, b)

	primary, dPrimary := mergeAttributes(a.Primary, b.Primary)
	filter, dFilter := mergeAttributes(a.Filter, b.Filter)
	additional, dAdditional := mergeAttributes(a.Additional, b.Additional)

	disagreements := make([]model.Disagreement, 0, len(dPrimary)+len(dFilter)+len(dAdditional))
	disagreements = append(disagreements, dPrimary...)
	disagreements = append(disagreements, dFilter...)
	disagreements = append(disagreements, dAdditional...)

	// Reconcile physical measurements and splice them back into the
	// agreed primary map. Dimension disagreements settled here are
	// discarded and never count against the agreement score.
	recon := ReconcileDimensions(
		DimensionsFrom(a.Primary),
		DimensionsFrom(b.Primary),
		category, bld.rules, bld.minSwapDelta,
	)
	spliceDimensions(primary, recon)
	disagreements = dropDimensionDisagreements(disagreements)

	if recon.SwapCorrected {
		zap.L().Info("consensus: corrected transposed depth/width",
			zap.String("category", category),
			zap.String("depth", recon.Depth),
			zap.String("width", recon.Width),
		)
	}

	result := model.ConsensusResult{
		Category:      category,
		Primary:       primary,
		Filter:        filter,
		Additional:    additional,
		Disagreements: disagreements,
		NeedsResearch: mergeNeedsResearch(a, b, primary, filter, additional),
		NeedsReview:   recon.NeedsReview,
	}

	unresolvedFactual := 0
	for _, d := range disagreements {
		if d.Resolution == model.ResolutionUnresolved && !bld.rules.IsExcludedText(d.Field) {
			unresolvedFactual++
		}
	}

	result.Agreed = categoryMatched && unresolvedFactual == 0
	result.Confidence = score(a.Confidence, b.Confidence, totalAgreed(result), unresolvedFactual, category)
	return result
}

// resolveCategory picks the agreed category: a case-insensitive match
// wins outright, otherwise the provider with the higher category
// confidence. Ties resolve to provider A.
func resolveCategory(a, b *model.AnalysisResult) (category string, matched bool) {
	ca := strings.TrimSpace(a.Category)
	cb := strings.TrimSpace(b.Category)
	if ca != "" && strings.EqualFold(ca, cb) {
		return ca, true
	}
	if ca == "" && cb == "" {
		return "", false
	}
	if ca == "" {
		return cb, false
	}
	if cb == "" {
		return ca, false
	}
	if b.CategoryConfidence > a.CategoryConfidence {
		return cb, false
	}
	return ca, false
}

// mergeAttributes computes the union-of-keys merge for one attribute
// tier. A value present on only one side is adopted without recording a
// disagreement; two semantically unequal values record an unresolved one.
func mergeAttributes(ma, mb map[string]string) (map[string]string, []model.Disagreement) {
	agreed := make(map[string]string)
	var disagreements []model.Disagreement

	for _, key := range unionKeys(ma, mb) {
		va := valueFor(ma, key)
		vb := valueFor(mb, key)
		presentA, presentB := Present(va), Present(vb)

		switch {
		case presentA && presentB:
			if Equal(va, vb) {
				agreed[key] = va
			} else {
				disagreements = append(disagreements, model.Disagreement{
					Field:      key,
					ValueA:     va,
					ValueB:     vb,
					Resolution: model.ResolutionUnresolved,
				})
			}
		case presentA:
			agreed[key] = va
		case presentB:
			agreed[key] = vb
		}
	}
	return agreed, disagreements
}

// unionKeys returns the sorted union of normalized keys of both maps.
func unionKeys(ma, mb map[string]string) []string {
	seen := make(map[string]struct{}, len(ma)+len(mb))
	for k := range ma {
		seen[normalizeKey(k)] = struct{}{}
	}
	for k := range mb {
		seen[normalizeKey(k)] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valueFor finds a map value by normalized key.
func valueFor(m map[string]string, key string) string {
	for k, v := range m {
		if normalizeKey(k) == key {
			return v
		}
	}
	return ""
}

// spliceDimensions overwrites the measurement fields of the agreed
// primary map with the reconciled values. The "length" alias collapses
// into depth.
func spliceDimensions(primary map[string]string, recon ReconciledDimensions) {
	delete(primary, "length")
	setOrDelete(primary, "depth", recon.Depth)
	setOrDelete(primary, "width", recon.Width)
	setOrDelete(primary, "height", recon.Height)
}

func setOrDelete(m map[string]string, key, value string) {
	if value == "" {
		delete(m, key)
		return
	}
	m[key] = value
}

func dropDimensionDisagreements(ds []model.Disagreement) []model.Disagreement {
	kept := ds[:0]
	for _, d := range ds {
		if !IsDimensionField(d.Field) {
			kept = append(kept, d)
		}
	}
	return kept
}

// mergeNeedsResearch unions both providers' unresolved-field lists,
// dropping any field that ended up with an agreed value.
func mergeNeedsResearch(a, b *model.AnalysisResult, agreedMaps ...map[string]string) []string {
	seen := make(map[string]struct{})
	var fields []string
	for _, list := range [][]string{a.NeedsResearch, b.NeedsResearch} {
		for _, f := range list {
			key := normalizeKey(f)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			resolved := false
			for _, m := range agreedMaps {
				if Present(valueFor(m, key)) {
					resolved = true
					break
				}
			}
			if resolved {
				continue
			}
			seen[key] = struct{}{}
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}

func totalAgreed(c model.ConsensusResult) int {
	return len(c.Primary) + len(c.Filter) + len(c.Additional)
}

// score computes the overall confidence:
//
//	min(1, avgProviderConfidence*0.5 + agreementRatio*0.4 + categoryBonus)
//
// where agreementRatio = totalAgreed / max(1, totalAgreed+unresolvedFactual)
// and the category bonus applies only when a category was determined.
func score(confA, confB float64, agreed, unresolvedFactual int, category string) float64 {
	avg := (clamp01(confA) + clamp01(confB)) / 2

	totalAnalyzed := agreed + unresolvedFactual
	ratio := float64(agreed) / math.Max(1, float64(totalAnalyzed))

	s := avg*providerConfidenceWeight + ratio*agreementRatioWeight
	if strings.TrimSpace(category) != "" {
		s += categoryBonus
	}
	return math.Min(1, s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
