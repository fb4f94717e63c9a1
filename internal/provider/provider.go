// Package provider adapts AI extraction backends to a single Analyze
// contract. Adapters are interchangeable in interface, never in content:
// the verification pipeline always consults two of them and reconciles.
package provider

import (
	"context"

	"github.com/sells-group/catalog-verify/internal/model"
)

// Provider is one AI extraction backend.
//
// Analyze never returns an error: transport and parse failures yield a
// degraded zero-confidence AnalysisResult with Success=false, so a
// provider outage degrades a run instead of aborting it.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, req AnalysisRequest) *model.AnalysisResult
	Research(ctx context.Context, req ResearchRequest) (map[string]string, error)
}

// AnalysisRequest is the prompt context for one extraction call.
type AnalysisRequest struct {
	Input model.ProductInput

	// CrossValidation, when set, carries the other analyst's disagreeing
	// category conclusion for reconsideration.
	CrossValidation *CrossValidationNote
}

// CrossValidationNote is the other provider's category verdict.
type CrossValidationNote struct {
	Category   string
	Confidence float64
	Reasoning  string
}

// ResearchRequest asks for best-effort values of specific fields given
// only brand/model/category context. Providers answer the literal
// sentinel ResearchUnknown for fields they cannot determine.
type ResearchRequest struct {
	Brand       string
	ModelNumber string
	Category    string
	Fields      []string
}

// ResearchUnknown is the sentinel a provider returns for a field it
// could not research.
const ResearchUnknown = "unknown"
