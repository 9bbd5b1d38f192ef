package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/missatech/breach-analytics/domain/entity"
)

func TestNewRiskScorer_ValidatesWeights(t *testing.T) {
	testCases := []struct {
		name    string
		weights entity.RiskWeights
		wantErr bool
	}{
		{name: "defaults", weights: entity.DefaultRiskWeights()},
		{name: "custom summing to one", weights: entity.RiskWeights{
			Frequency: 0.5, TotalCost: 0.5,
		}},
		{name: "sum above one", weights: entity.RiskWeights{
			Frequency: 0.5, TotalCost: 0.6,
		}, wantErr: true},
		{name: "negative component", weights: entity.RiskWeights{
			Frequency: -0.2, TotalCost: 1.2,
		}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRiskScorer(tc.weights, zaptest.NewLogger(t))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRiskScores_RankingAndBounds(t *testing.T) {
	scorer, err := NewRiskScorer(entity.DefaultRiskWeights(), zaptest.NewLogger(t))
	require.NoError(t, err)

	scores, err := scorer.Scores(entity.NewSnapshot(fourIncidentFixture()))
	require.NoError(t, err)
	require.Len(t, scores, 3)

	// Billing/EU dominates every signal, so it normalizes to 1.0 exactly.
	assert.Equal(t, "Billing/EU", scores[0].GroupKey())
	assert.InDelta(t, 1.0, scores[0].Score, 1e-12)

	assert.Equal(t, "HR/US", scores[1].GroupKey())
	assert.InDelta(t, 0.1490657, scores[1].Score, 1e-6)

	// HR/EU sits at the minimum of every signal.
	assert.Equal(t, "HR/EU", scores[2].GroupKey())
	assert.InDelta(t, 0.0, scores[2].Score, 1e-12)

	for _, s := range scores {
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
}

func TestRiskScores_GroupAggregates(t *testing.T) {
	scorer, err := NewRiskScorer(entity.DefaultRiskWeights(), zaptest.NewLogger(t))
	require.NoError(t, err)

	scores, err := scorer.Scores(entity.NewSnapshot(fourIncidentFixture()))
	require.NoError(t, err)

	top := scores[0]
	assert.Equal(t, "Billing", top.System)
	assert.Equal(t, "EU", top.Region)
	assert.Equal(t, 2, top.IncidentFrequency)
	assert.InDelta(t, 550000, top.TotalCost, 1e-9)
	assert.InDelta(t, 4.5, top.AvgSensitivity, 1e-9)
	assert.InDelta(t, 15, top.AvgDetectionDays, 1e-9)
	assert.Equal(t, int64(3000), top.TotalRecords)
}

func TestRiskScores_ZeroVarianceSignalContributesNothing(t *testing.T) {
	scorer, err := NewRiskScorer(entity.DefaultRiskWeights(), zaptest.NewLogger(t))
	require.NoError(t, err)

	// Identical costs across groups: the cost signal has no range, so it
	// must not lift either score.
	snap := entity.NewSnapshot([]entity.Incident{
		{ID: "a", System: "Billing", Region: "EU", AttackType: "Phishing", SensitivityLevel: 5, RecordsExposed: 100, Cost: 1000, DetectionTimeDays: 10, ResponseTimeDays: 1},
		{ID: "b", System: "HR", Region: "US", AttackType: "Phishing", SensitivityLevel: 1, RecordsExposed: 10, Cost: 1000, DetectionTimeDays: 1, ResponseTimeDays: 1},
	})

	scores, err := scorer.Scores(snap)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	for _, s := range scores {
		assert.Equal(t, 0.0, s.Components.TotalCost)
		assert.Equal(t, 0.0, s.Components.Frequency)
	}
	// Remaining live signals: sensitivity 0.15 + detection 0.20 + records 0.15.
	assert.Equal(t, "Billing/EU", scores[0].GroupKey())
	assert.InDelta(t, 0.50, scores[0].Score, 1e-12)
	assert.InDelta(t, 0.0, scores[1].Score, 1e-12)
}

func TestRiskScores_SingleGroupScoresZero(t *testing.T) {
	scorer, err := NewRiskScorer(entity.DefaultRiskWeights(), zaptest.NewLogger(t))
	require.NoError(t, err)

	snap := entity.NewSnapshot([]entity.Incident{
		{ID: "a", System: "CRM", Region: "EU", AttackType: "Phishing", SensitivityLevel: 3, RecordsExposed: 100, Cost: 5000, DetectionTimeDays: 3, ResponseTimeDays: 1},
	})

	scores, err := scorer.Scores(snap)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 0.0, scores[0].Score)
}

func TestRiskScores_EmptySnapshot(t *testing.T) {
	scorer, err := NewRiskScorer(entity.DefaultRiskWeights(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = scorer.Scores(entity.NewSnapshot(nil))
	var insufficient *entity.InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)
}

func TestRiskScores_ReorderInvariance(t *testing.T) {
	scorer, err := NewRiskScorer(entity.DefaultRiskWeights(), zaptest.NewLogger(t))
	require.NoError(t, err)

	incidents := fourIncidentFixture()
	base, err := scorer.Scores(entity.NewSnapshot(incidents))
	require.NoError(t, err)

	for _, seed := range []int64{3, 11, 42} {
		permuted, err := scorer.Scores(entity.NewSnapshot(shuffled(incidents, seed)))
		require.NoError(t, err)
		assert.Equal(t, base, permuted, "seed %d", seed)
	}
}
