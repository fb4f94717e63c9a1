package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-verify/internal/consensus"
	"github.com/sells-group/catalog-verify/internal/match"
	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/provider"
)

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Analyze(ctx context.Context, req provider.AnalysisRequest) *model.AnalysisResult {
	args := m.Called(ctx, req)
	return args.Get(0).(*model.AnalysisResult)
}

func (m *mockProvider) Research(ctx context.Context, req provider.ResearchRequest) (map[string]string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func goodAnalysis(providerName, category string) *model.AnalysisResult {
	return &model.AnalysisResult{
		Provider:           providerName,
		Success:            true,
		Category:           category,
		CategoryConfidence: 0.9,
		Primary: map[string]string{
			"brand":        "GE",
			"model_number": "JGB735",
		},
		Confidence: 0.9,
	}
}

func newTestVerifier(a, b provider.Provider, cfg Config) *Verifier {
	return New(a, b, match.Noop{}, consensus.DefaultRules(), cfg)
}

func TestRun_AgreedNoExtras(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}
	a.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("claude", "Range")).Once()
	b.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("sonar", "Range")).Once()

	v := newTestVerifier(a, b, DefaultConfig())
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1", CatalogName: "GE Range"})
	require.NoError(t, err)

	assert.True(t, got.Consensus.Agreed)
	assert.Equal(t, "Range", got.Consensus.Category)
	assert.Equal(t, 0, got.CrossValidationRounds)
	assert.False(t, got.ResearchPerformed)
	assert.GreaterOrEqual(t, got.DurationMs, int64(0))

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestRun_BothProvidersFailed(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}
	a.On("Analyze", mock.Anything, mock.Anything).Return(model.Degraded("claude", assert.AnError))
	b.On("Analyze", mock.Anything, mock.Anything).Return(model.Degraded("sonar", assert.AnError))

	v := newTestVerifier(a, b, DefaultConfig())
	_, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	assert.Error(t, err)
}

func TestRun_SingleProviderFailureDegrades(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}
	a.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("claude", "Range"))
	b.On("Analyze", mock.Anything, mock.Anything).Return(model.Degraded("sonar", assert.AnError))

	v := newTestVerifier(a, b, DefaultConfig())
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	require.NoError(t, err)

	// Single-source consensus carries the surviving category but never
	// full agreement.
	assert.Equal(t, "Range", got.Consensus.Category)
	assert.False(t, got.Consensus.Agreed)
	assert.Equal(t, 0, got.CrossValidationRounds)
}

func TestRun_CrossValidationConverges(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}

	// Round zero: category disagreement.
	a.On("Analyze", mock.Anything, mock.MatchedBy(func(req provider.AnalysisRequest) bool {
		return req.CrossValidation == nil
	})).Return(goodAnalysis("claude", "Range")).Once()
	b.On("Analyze", mock.Anything, mock.MatchedBy(func(req provider.AnalysisRequest) bool {
		return req.CrossValidation == nil
	})).Return(goodAnalysis("sonar", "Cooktop")).Once()

	// Cross-validation round: each sees the other's verdict, B concedes.
	a.On("Analyze", mock.Anything, mock.MatchedBy(func(req provider.AnalysisRequest) bool {
		return req.CrossValidation != nil && req.CrossValidation.Category == "Cooktop"
	})).Return(goodAnalysis("claude", "Range")).Once()
	b.On("Analyze", mock.Anything, mock.MatchedBy(func(req provider.AnalysisRequest) bool {
		return req.CrossValidation != nil && req.CrossValidation.Category == "Range"
	})).Return(goodAnalysis("sonar", "Range")).Once()

	v := newTestVerifier(a, b, DefaultConfig())
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, 1, got.CrossValidationRounds)
	assert.Equal(t, "Range", got.Consensus.Category)
	assert.True(t, got.Consensus.Agreed)

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestRun_CrossValidationRoundLimit(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}

	// Neither side ever concedes; the loop must stop at the limit.
	a.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("claude", "Range"))
	b.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("sonar", "Cooktop"))

	cfg := DefaultConfig()
	cfg.CrossValMaxRounds = 2
	v := newTestVerifier(a, b, cfg)
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, 2, got.CrossValidationRounds)
	assert.False(t, got.Consensus.Agreed)
	// Tie on category confidence resolves to provider A.
	assert.Equal(t, "Range", got.Consensus.Category)
}

func TestRun_CrossValidationDisabled(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}
	a.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("claude", "Range")).Once()
	b.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("sonar", "Cooktop")).Once()

	cfg := DefaultConfig()
	cfg.CrossValMaxRounds = 0
	v := newTestVerifier(a, b, cfg)
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, 0, got.CrossValidationRounds)
	a.AssertNumberOfCalls(t, "Analyze", 1)
	b.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestRun_ResearchMerge(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}

	analysisA := goodAnalysis("claude", "Range")
	analysisA.NeedsResearch = []string{"btu_rating", "voltage", "weight"}
	analysisB := goodAnalysis("sonar", "Range")
	analysisB.NeedsResearch = []string{"btu_rating", "voltage", "weight"}

	a.On("Analyze", mock.Anything, mock.Anything).Return(analysisA).Once()
	b.On("Analyze", mock.Anything, mock.Anything).Return(analysisB).Once()

	a.On("Research", mock.Anything, mock.MatchedBy(func(req provider.ResearchRequest) bool {
		return req.Category == "Range" && req.ModelNumber == "JGB735"
	})).Return(map[string]string{
		"btu_rating": "15000 BTU",
		"voltage":    provider.ResearchUnknown,
		"weight":     provider.ResearchUnknown,
	}, nil).Once()
	b.On("Research", mock.Anything, mock.Anything).Return(map[string]string{
		"btu_rating": provider.ResearchUnknown,
		"voltage":    "120V",
		"weight":     provider.ResearchUnknown,
	}, nil).Once()

	v := newTestVerifier(a, b, DefaultConfig())
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	require.NoError(t, err)

	assert.True(t, got.ResearchPerformed)
	assert.Equal(t, "15000 BTU", got.Consensus.Additional["btu_rating"])
	assert.Equal(t, "120V", got.Consensus.Additional["voltage"])
	// Unknown from both sides stays absent, and the list is cleared
	// rather than carrying unresolved fields forward.
	assert.NotContains(t, got.Consensus.Additional, "weight")
	assert.Empty(t, got.Consensus.NeedsResearch)
}

func TestRun_ResearchRunsWithCategoryOnlyContext(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}

	// Neither provider extracted a brand or model number, so the lookup
	// has only the agreed category for context. The phase still runs and
	// the needs-research list still empties.
	analysisA := goodAnalysis("claude", "Range")
	analysisA.Primary = map[string]string{}
	analysisA.NeedsResearch = []string{"btu_rating"}
	analysisB := goodAnalysis("sonar", "Range")
	analysisB.Primary = map[string]string{}
	analysisB.NeedsResearch = []string{"btu_rating"}

	a.On("Analyze", mock.Anything, mock.Anything).Return(analysisA).Once()
	b.On("Analyze", mock.Anything, mock.Anything).Return(analysisB).Once()

	anchorless := mock.MatchedBy(func(req provider.ResearchRequest) bool {
		return req.Category == "Range" && req.Brand == "" && req.ModelNumber == ""
	})
	a.On("Research", mock.Anything, anchorless).Return(map[string]string{"btu_rating": "15000 BTU"}, nil).Once()
	b.On("Research", mock.Anything, anchorless).Return(map[string]string{"btu_rating": provider.ResearchUnknown}, nil).Once()

	v := newTestVerifier(a, b, DefaultConfig())
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1", CatalogName: "Gas Range"})
	require.NoError(t, err)

	assert.True(t, got.ResearchPerformed)
	assert.Equal(t, "15000 BTU", got.Consensus.Additional["btu_rating"])
	assert.Empty(t, got.Consensus.NeedsResearch)
	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestRun_ResearchConflictPrefersProviderA(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}

	analysisA := goodAnalysis("claude", "Range")
	analysisA.NeedsResearch = []string{"btu_rating"}
	analysisB := goodAnalysis("sonar", "Range")

	a.On("Analyze", mock.Anything, mock.Anything).Return(analysisA).Once()
	b.On("Analyze", mock.Anything, mock.Anything).Return(analysisB).Once()
	a.On("Research", mock.Anything, mock.Anything).Return(map[string]string{"btu_rating": "15000"}, nil).Once()
	b.On("Research", mock.Anything, mock.Anything).Return(map[string]string{"btu_rating": "18000"}, nil).Once()

	v := newTestVerifier(a, b, DefaultConfig())
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, "15000", got.Consensus.Additional["btu_rating"])
}

func TestRun_ResearchDisabled(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}

	analysisA := goodAnalysis("claude", "Range")
	analysisA.NeedsResearch = []string{"btu_rating"}

	a.On("Analyze", mock.Anything, mock.Anything).Return(analysisA).Once()
	b.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("sonar", "Range")).Once()

	cfg := DefaultConfig()
	cfg.ResearchEnabled = false
	v := newTestVerifier(a, b, cfg)
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	require.NoError(t, err)

	assert.False(t, got.ResearchPerformed)
	assert.Equal(t, []string{"btu_rating"}, got.Consensus.NeedsResearch)
	a.AssertNotCalled(t, "Research", mock.Anything, mock.Anything)
}

type canonicalMatcher struct{}

func (canonicalMatcher) Match(_ context.Context, value string, class match.ValueClass) (*match.Result, error) {
	if class == match.ClassBrand && value == "GE" {
		return &match.Result{Matched: true, Canonical: "GE Appliances", CanonicalID: "B-104"}, nil
	}
	return &match.Result{}, nil
}

func TestRun_CanonicalMatchApplied(t *testing.T) {
	a := &mockProvider{name: "claude"}
	b := &mockProvider{name: "sonar"}
	a.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("claude", "Range")).Once()
	b.On("Analyze", mock.Anything, mock.Anything).Return(goodAnalysis("sonar", "Range")).Once()

	v := New(a, b, canonicalMatcher{}, consensus.DefaultRules(), DefaultConfig())
	got, err := v.Run(context.Background(), model.ProductInput{CatalogID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, "GE Appliances", got.Consensus.Primary["brand"])
}

func TestMergeResearch(t *testing.T) {
	merged := mergeResearch(
		[]string{"a", "b", "c", "d"},
		map[string]string{"a": "1", "b": provider.ResearchUnknown, "c": "3"},
		map[string]string{"a": "1", "b": "2", "c": "30", "d": provider.ResearchUnknown},
	)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, merged)
}
