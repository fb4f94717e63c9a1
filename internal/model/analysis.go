package model

// AnalysisResult is one provider's extraction for one run. Created fresh
// per provider call and immutable once returned.
type AnalysisResult struct {
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`

	Category           string  `json:"category,omitempty"`
	CategoryConfidence float64 `json:"category_confidence"`
	CategoryReasoning  string  `json:"category_reasoning,omitempty"`

	// Three attribute tiers: primary (dimensions, brand, model, finish),
	// category-specific filter attributes, and additional long-tail fields.
	Primary    map[string]string `json:"primary,omitempty"`
	Filter     map[string]string `json:"filter,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`

	// NeedsResearch lists fields the provider could not determine.
	NeedsResearch []string `json:"needs_research,omitempty"`

	// Corrections records fixes the provider made to the raw input.
	Corrections []Correction `json:"corrections,omitempty"`

	Confidence float64 `json:"confidence"`

	ResearchPerformed bool     `json:"research_performed,omitempty"`
	ResearchSources   []string `json:"research_sources,omitempty"`
}

// Correction is a single fix a provider applied to the raw input.
type Correction struct {
	Field    string `json:"field"`
	Original string `json:"original"`
	Fixed    string `json:"fixed"`
	Reason   string `json:"reason,omitempty"`
}

// Degraded returns a zero-confidence failure result for the named
// provider. Callers treat this as a valid (if useless) analysis so a
// single provider outage degrades, rather than aborts, a run.
func Degraded(provider string, err error) *AnalysisResult {
	r := &AnalysisResult{
		Provider: provider,
		Success:  false,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
