// internal/risk/scorer_test.go
package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

// fixtureBundle builds a one-tree bundle:
//
//	interruptions <= 1.5 ? (months <= 6 ? low : medium) : (income <= 30000 ? medium : high)
//
// Regressor leaves use the same shape with scores 15, 45, 50 and 110 (clamped to 100).
func fixtureBundle() *Bundle {
	cls := func(high, low, medium float64) []float64 { return []float64{high, low, medium} }
	return &Bundle{
		Version:        BundleVersion,
		FeatureNames:   append([]string(nil), FeatureNames...),
		SchemeEncoding: map[string]int{"pension": 0, "ration": 1, "subsidy": 2},
		Classes:        []string{"high", "low", "medium"},
		Classifier: Forest{Trees: []Tree{{Nodes: []Node{
			{Feature: 3, Threshold: 1.5, Left: 1, Right: 4},
			{Feature: 1, Threshold: 6, Left: 2, Right: 3},
			{Feature: -1, Value: cls(0, 1, 0)},
			{Feature: -1, Value: cls(0, 0, 1)},
			{Feature: 0, Threshold: 30000, Left: 5, Right: 6},
			{Feature: -1, Value: cls(0.2, 0, 0.8)},
			{Feature: -1, Value: cls(0.9, 0, 0.1)},
		}}}},
		Regressor: Forest{Trees: []Tree{{Nodes: []Node{
			{Feature: 3, Threshold: 1.5, Left: 1, Right: 4},
			{Feature: 1, Threshold: 6, Left: 2, Right: 3},
			{Feature: -1, Value: []float64{15}},
			{Feature: -1, Value: []float64{45}},
			{Feature: 0, Threshold: 30000, Left: 5, Right: 6},
			{Feature: -1, Value: []float64{50}},
			{Feature: -1, Value: []float64{110}},
		}}}},
		FeatureImportances: []float64{0.4, 0.3, 0.05, 0.25},
	}
}

func loadedScorer(t *testing.T) *Scorer {
	t.Helper()
	s := NewScorer(logger.NewTestLogger(t))
	s.SetBundle(fixtureBundle())
	return s
}

// ==========================
// Tests
// ==========================

func TestScore_NotLoaded(t *testing.T) {
	s := NewScorer(logger.NewNopLogger())
	assert.False(t, s.Loaded())

	_, err := s.Score(models.CitizenCase{CitizenID: "CIT_1", Income: 1000, SchemeType: models.SchemeRation})
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	_, err = s.Info()
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestScore_Levels(t *testing.T) {
	s := loadedScorer(t)

	tests := []struct {
		name      string
		input     models.CitizenCase
		wantLevel models.RiskLevel
		wantScore float64
	}{
		{
			name: "high income pension with stale documents",
			input: models.CitizenCase{
				CitizenID: "CIT_000001", Income: 35000, LastDocumentUpdateMonths: 18,
				SchemeType: models.SchemePension, PastBenefitInterruptions: 3,
			},
			wantLevel: models.RiskHigh,
			wantScore: 100,
		},
		{
			name: "recent documents no interruptions",
			input: models.CitizenCase{
				CitizenID: "CIT_000002", Income: 12000, LastDocumentUpdateMonths: 3,
				SchemeType: models.SchemeSubsidy, PastBenefitInterruptions: 0,
			},
			wantLevel: models.RiskLow,
			wantScore: 15,
		},
		{
			name: "moderately stale documents",
			input: models.CitizenCase{
				CitizenID: "CIT_000003", Income: 15000, LastDocumentUpdateMonths: 8,
				SchemeType: models.SchemeRation, PastBenefitInterruptions: 1,
			},
			wantLevel: models.RiskMedium,
			wantScore: 45,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := s.Score(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, a.RiskLevel)
			assert.InDelta(t, tt.wantScore, a.RiskScore, 1e-9)
			assert.GreaterOrEqual(t, a.RiskScore, 0.0)
			assert.LessOrEqual(t, a.RiskScore, 100.0)
		})
	}
}

func TestScore_LevelFollowsScoreWhenClassifierDisagrees(t *testing.T) {
	b := fixtureBundle()
	b.Regressor.Trees[0].Nodes[5].Value = []float64{65}
	s := NewScorer(logger.NewTestLogger(t))
	s.SetBundle(b)

	a, err := s.Score(models.CitizenCase{
		CitizenID: "CIT_000005", Income: 20000, LastDocumentUpdateMonths: 2,
		SchemeType: models.SchemeSubsidy, PastBenefitInterruptions: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 65.0, a.RiskScore)
	assert.Equal(t, models.RiskHigh, a.RiskLevel)
	assert.InDelta(t, 0.8, a.Probabilities["medium"], 1e-9)
}

func TestScore_ClampsBelowZero(t *testing.T) {
	b := fixtureBundle()
	b.Regressor.Trees[0].Nodes[2].Value = []float64{-40}
	s := NewScorer(logger.NewNopLogger())
	s.SetBundle(b)

	a, err := s.Score(models.CitizenCase{CitizenID: "CIT_9", Income: 9000, SchemeType: models.SchemeRation})
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.RiskScore)
}

func TestScore_ReasonsUseGlobalImportances(t *testing.T) {
	s := loadedScorer(t)

	a, err := s.Score(models.CitizenCase{
		CitizenID: "CIT_000004", Income: 22000, LastDocumentUpdateMonths: 4,
		SchemeType: models.SchemeSubsidy, PastBenefitInterruptions: 2,
	})
	require.NoError(t, err)

	require.Len(t, a.Reasons, 4)
	assert.Equal(t, models.FeatureReason{Value: 22000, Importance: 0.4}, a.Reasons[FeatureIncome])
	assert.Equal(t, models.FeatureReason{Value: 4, Importance: 0.3}, a.Reasons[FeatureLastDocumentUpdateMonths])
	assert.Equal(t, models.FeatureReason{Value: 2, Importance: 0.05}, a.Reasons[FeatureSchemeTypeEncoded])
	assert.Equal(t, models.FeatureReason{Value: 2, Importance: 0.25}, a.Reasons[FeaturePastBenefitInterruptions])
	assert.InDelta(t, 0.8, a.Probabilities["medium"], 1e-9)
}

func TestScore_SchemeEncodingIsFixed(t *testing.T) {
	s := loadedScorer(t)

	// The same scheme must encode identically no matter which cases were scored before it.
	for _, scheme := range []models.SchemeType{models.SchemeSubsidy, models.SchemePension, models.SchemeRation, models.SchemeSubsidy} {
		a, err := s.Score(models.CitizenCase{CitizenID: "CIT_X", Income: 1000, SchemeType: scheme})
		require.NoError(t, err)
		want := map[models.SchemeType]float64{models.SchemePension: 0, models.SchemeRation: 1, models.SchemeSubsidy: 2}[scheme]
		assert.Equal(t, want, a.Reasons[FeatureSchemeTypeEncoded].Value)
	}
}

func TestScore_UnknownScheme(t *testing.T) {
	s := loadedScorer(t)
	_, err := s.Score(models.CitizenCase{CitizenID: "CIT_X", Income: 1000, SchemeType: "housing"})
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "bundle.json")
	require.NoError(t, fixtureBundle().Save(path))

	s := NewScorer(logger.NewTestLogger(t))
	require.NoError(t, s.Load(path))
	assert.True(t, s.Loaded())

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, 1, info["classifier_trees"])
}

func TestLoad_Failures(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		s := NewScorer(logger.NewNopLogger())
		err := s.Load(filepath.Join(dir, "absent.json"))
		require.Error(t, err)
		assert.False(t, s.Loaded())
	})

	t.Run("schema violation", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":"1"}`), 0o600))
		err := NewScorer(logger.NewNopLogger()).Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema")
	})

	t.Run("structural violation", func(t *testing.T) {
		b := fixtureBundle()
		b.Classifier.Trees[0].Nodes[0].Left = 0
		path := filepath.Join(dir, "cycle.json")
		require.NoError(t, b.Save(path))
		err := NewScorer(logger.NewNopLogger()).Load(path)
		assert.ErrorIs(t, err, ErrInvalidBundle)
	})

	t.Run("missing scheme", func(t *testing.T) {
		b := fixtureBundle()
		delete(b.SchemeEncoding, "ration")
		assert.ErrorIs(t, b.Validate(), ErrInvalidBundle)
	})
}
