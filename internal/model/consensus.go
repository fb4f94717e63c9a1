package model

// Resolution identifies how a disagreement was settled.
type Resolution string

const (
	ResolutionProviderA  Resolution = "provider_a"
	ResolutionProviderB  Resolution = "provider_b"
	ResolutionUnresolved Resolution = "unresolved"
)

// Disagreement records one field where both providers supplied non-empty,
// semantically unequal values.
type Disagreement struct {
	Field      string     `json:"field"`
	ValueA     string     `json:"value_a"`
	ValueB     string     `json:"value_b"`
	Resolution Resolution `json:"resolution"`
}

// ConsensusResult is the merged view of two analyses. It is rebuilt, not
// mutated, at each stage: initial pass, post-cross-validation, and
// post-research merge.
type ConsensusResult struct {
	Agreed   bool   `json:"agreed"`
	Category string `json:"category,omitempty"`

	Primary    map[string]string `json:"primary,omitempty"`
	Filter     map[string]string `json:"filter,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`

	Disagreements []Disagreement `json:"disagreements,omitempty"`
	NeedsResearch []string       `json:"needs_research,omitempty"`

	Confidence float64 `json:"confidence"`

	// NeedsReview flags a near-ambiguous dimension swap that was left
	// uncorrected rather than guessed.
	NeedsReview bool `json:"needs_review,omitempty"`
}

// VerificationResult is the terminal output of one verification run.
type VerificationResult struct {
	Consensus ConsensusResult `json:"consensus"`

	AnalysisA *AnalysisResult `json:"analysis_a,omitempty"`
	AnalysisB *AnalysisResult `json:"analysis_b,omitempty"`

	CrossValidationRounds int  `json:"cross_validation_rounds"`
	ResearchPerformed     bool `json:"research_performed"`

	DurationMs int64 `json:"duration_ms"`
}
