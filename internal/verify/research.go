package verify

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-verify/internal/consensus"
	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/provider"
)

// research fills needs-research fields by asking both providers to look
// each one up, then merging per field. Research requires a settled
// category; brand and model number travel along as lookup context when
// known, but their absence never skips the phase.
func (v *Verifier) research(
	ctx context.Context,
	trace *runTrace,
	input model.ProductInput,
	cons model.ConsensusResult,
) model.ConsensusResult {
	if !v.cfg.ResearchEnabled || len(cons.NeedsResearch) == 0 {
		return cons
	}
	if cons.Category == "" {
		zap.L().Debug("verify: skipping research, no settled category",
			zap.String("catalog_id", trace.catalogID))
		return cons
	}
	brand := cons.Primary["brand"]
	modelNumber := cons.Primary["model_number"]
	if modelNumber == "" {
		modelNumber = input.ModelNumber
	}

	req := provider.ResearchRequest{
		Brand:       brand,
		ModelNumber: modelNumber,
		Category:    cons.Category,
		Fields:      cons.NeedsResearch,
	}

	var resA, resB map[string]string
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if resA, err = v.providerA.Research(gCtx, req); err != nil {
			zap.L().Warn("verify: research failed",
				zap.String("provider", v.providerA.Name()), zap.Error(err))
			resA = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if resB, err = v.providerB.Research(gCtx, req); err != nil {
			zap.L().Warn("verify: research failed",
				zap.String("provider", v.providerB.Name()), zap.Error(err))
			resB = nil
		}
		return nil
	})
	_ = g.Wait()

	if resA == nil && resB == nil {
		return cons
	}
	trace.researchPerformed = true

	merged := mergeResearch(cons.NeedsResearch, resA, resB)

	// Rebuild rather than mutate: resolved fields move into the
	// additional tier. The needs-research list is cleared even when
	// some fields came back unknown; an unresolved field stays absent
	// and is not an error.
	next := cons
	next.Additional = make(map[string]string, len(cons.Additional)+len(merged))
	for k, val := range cons.Additional {
		next.Additional[k] = val
	}
	for _, field := range cons.NeedsResearch {
		if val, ok := merged[field]; ok {
			next.Additional[field] = val
		}
	}
	next.NeedsResearch = nil

	zap.L().Info("verify: research merged",
		zap.String("catalog_id", trace.catalogID),
		zap.Int("resolved", len(merged)),
		zap.Int("unresolved", len(cons.NeedsResearch)-len(merged)),
	)
	return next
}

// mergeResearch reconciles the two research passes field by field. A
// field resolves when at least one provider returned a real value; when
// both did and they disagree, provider A's answer stands and the
// conflict is logged.
func mergeResearch(fields []string, resA, resB map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, field := range fields {
		va := researchValue(resA, field)
		vb := researchValue(resB, field)

		switch {
		case va != "" && vb != "":
			if !consensus.Equal(va, vb) {
				zap.L().Debug("verify: research conflict",
					zap.String("field", field),
					zap.String("value_a", va),
					zap.String("value_b", vb),
				)
			}
			merged[field] = va
		case va != "":
			merged[field] = va
		case vb != "":
			merged[field] = vb
		}
	}
	return merged
}

// researchValue extracts a usable answer, treating the unknown sentinel
// and placeholder junk as absent.
func researchValue(res map[string]string, field string) string {
	if res == nil {
		return ""
	}
	val, ok := res[field]
	if !ok || val == provider.ResearchUnknown {
		return ""
	}
	if !consensus.Present(val) {
		return ""
	}
	return val
}
