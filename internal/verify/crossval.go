package verify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/provider"
)

// crossValidate re-queries both providers with each other's category
// verdict while they disagree, up to the configured round limit. Each
// round rebuilds consensus from the revised analyses. A degraded revision
// keeps the prior analysis for that provider rather than discarding a
// good first pass.
func (v *Verifier) crossValidate(
	ctx context.Context,
	trace *runTrace,
	input model.ProductInput,
	a, b *model.AnalysisResult,
	cons model.ConsensusResult,
) (*model.AnalysisResult, *model.AnalysisResult, model.ConsensusResult) {
	for trace.crossValRounds < v.cfg.CrossValMaxRounds && categoriesDiffer(a, b) {
		trace.crossValRounds++
		zap.L().Info("verify: cross-validation round",
			zap.String("catalog_id", trace.catalogID),
			zap.Int("round", trace.crossValRounds),
			zap.String("category_a", a.Category),
			zap.String("category_b", b.Category),
		)

		reqA := provider.AnalysisRequest{Input: input, CrossValidation: noteFrom(b)}
		reqB := provider.AnalysisRequest{Input: input, CrossValidation: noteFrom(a)}

		revisedA, revisedB := v.analyzeBoth(ctx, reqA, reqB)
		if ctx.Err() != nil {
			break
		}
		if revisedA.Success {
			a = revisedA
		}
		if revisedB.Success {
			b = revisedB
		}

		cons = v.builder.Build(a, b)
	}
	return a, b, cons
}

// categoriesDiffer reports whether both providers produced a category and
// the two differ case-insensitively. A missing category on either side is
// not a disagreement worth another round.
func categoriesDiffer(a, b *model.AnalysisResult) bool {
	if a.Category == "" || b.Category == "" {
		return false
	}
	return !strings.EqualFold(a.Category, b.Category)
}

func noteFrom(other *model.AnalysisResult) *provider.CrossValidationNote {
	return &provider.CrossValidationNote{
		Category:   other.Category,
		Confidence: other.CategoryConfidence,
		Reasoning:  other.CategoryReasoning,
	}
}
