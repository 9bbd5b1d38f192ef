package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/missatech/breach-analytics/domain/entity"
)

// linearFixture generates incidents whose cost is an exact linear function
// of delay and exposure, so the least squares fit must recover the
// generating coefficients.
func linearFixture(detections, responses []float64, records []int64, cost func(det, resp float64, rec int64) float64) []entity.Incident {
	incidents := make([]entity.Incident, len(detections))
	for i := range detections {
		incidents[i] = entity.Incident{
			ID:                "lin-" + string(rune('a'+i)),
			System:            "Billing",
			Region:            "EU",
			AttackType:        "Phishing",
			SensitivityLevel:  3,
			RecordsExposed:    records[i],
			Cost:              cost(detections[i], responses[i], records[i]),
			DetectionTimeDays: detections[i],
			ResponseTimeDays:  responses[i],
		}
	}
	return incidents
}

func TestDelayCostRegressor_RecoversLinearModel(t *testing.T) {
	incidents := linearFixture(
		[]float64{1, 2, 3, 5, 8, 10},
		[]float64{1, 3, 2, 4, 6, 5},
		[]int64{100, 200, 150, 300, 500, 250},
		func(det, resp float64, rec int64) float64 {
			return 1000 + 500*det + 200*resp + 2*float64(rec)
		},
	)

	regressor := NewDelayCostRegressor(zaptest.NewLogger(t))
	fit, err := regressor.Fit(entity.NewSnapshot(incidents))
	require.NoError(t, err)

	assert.Equal(t, 6, fit.SampleCount)
	assert.InDelta(t, 1000, fit.Intercept, 1e-6)

	det, ok := fit.Coefficient(RegressorDetectionDelay)
	require.True(t, ok)
	assert.False(t, det.Dropped)
	assert.InDelta(t, 500, det.Value, 1e-6)

	resp, ok := fit.Coefficient(RegressorResponseDelay)
	require.True(t, ok)
	assert.InDelta(t, 200, resp.Value, 1e-6)

	rec, ok := fit.Coefficient(RegressorRecordsExposed)
	require.True(t, ok)
	assert.InDelta(t, 2, rec.Value, 1e-6)

	assert.InDelta(t, 1.0, fit.RSquared, 1e-9)
	assert.InDelta(t, 500, fit.MarginalCostPerDay, 1e-6)
}

func TestDelayCostRegressor_DropsZeroVarianceRegressor(t *testing.T) {
	// Response delay is constant, so its effect is absorbed into the
	// intercept and the coefficient is reported as dropped.
	incidents := linearFixture(
		[]float64{1, 2, 3, 5, 8, 10},
		[]float64{3, 3, 3, 3, 3, 3},
		[]int64{100, 200, 150, 300, 500, 250},
		func(det, resp float64, rec int64) float64 {
			return 1000 + 500*det + 200*resp + 2*float64(rec)
		},
	)

	regressor := NewDelayCostRegressor(zaptest.NewLogger(t))
	fit, err := regressor.Fit(entity.NewSnapshot(incidents))
	require.NoError(t, err)

	resp, ok := fit.Coefficient(RegressorResponseDelay)
	require.True(t, ok)
	assert.True(t, resp.Dropped)
	assert.Equal(t, 0.0, resp.Value)

	assert.InDelta(t, 1600, fit.Intercept, 1e-6)
	det, _ := fit.Coefficient(RegressorDetectionDelay)
	assert.InDelta(t, 500, det.Value, 1e-6)
	rec, _ := fit.Coefficient(RegressorRecordsExposed)
	assert.InDelta(t, 2, rec.Value, 1e-6)
	assert.InDelta(t, 1.0, fit.RSquared, 1e-9)
}

func TestDelayCostRegressor_AllRegressorsConstant(t *testing.T) {
	incidents := linearFixture(
		[]float64{5, 5, 5},
		[]float64{2, 2, 2},
		[]int64{100, 100, 100},
		func(det, resp float64, rec int64) float64 { return 0 },
	)
	incidents[0].Cost = 100
	incidents[1].Cost = 200
	incidents[2].Cost = 600

	regressor := NewDelayCostRegressor(zaptest.NewLogger(t))
	fit, err := regressor.Fit(entity.NewSnapshot(incidents))
	require.NoError(t, err)

	for _, c := range fit.Coefficients {
		assert.True(t, c.Dropped, c.Name)
	}
	assert.InDelta(t, 300, fit.Intercept, 1e-9)
	assert.Equal(t, 0.0, fit.RSquared)
	assert.Equal(t, 0.0, fit.MarginalCostPerDay)
}

func TestDelayCostRegressor_InsufficientData(t *testing.T) {
	regressor := NewDelayCostRegressor(zaptest.NewLogger(t))

	_, err := regressor.Fit(entity.NewSnapshot(fourIncidentFixture()[:1]))
	var insufficient *entity.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)

	// Three varying regressors need at least four observations.
	incidents := linearFixture(
		[]float64{1, 2, 3},
		[]float64{1, 2, 4},
		[]int64{10, 30, 20},
		func(det, resp float64, rec int64) float64 { return 100 * det },
	)
	_, err = regressor.Fit(entity.NewSnapshot(incidents))
	assert.ErrorAs(t, err, &insufficient)
}

func TestDelayCostRegressor_SimpleRates(t *testing.T) {
	regressor := NewDelayCostRegressor(zaptest.NewLogger(t))
	fit, err := regressor.Fit(entity.NewSnapshot(fourIncidentFixture()))
	require.NoError(t, err)

	// Totals: cost 610000, detection 37 days, response 11 days.
	assert.InDelta(t, 610000.0/37.0, fit.SimpleCostPerDetectionDay, 1e-6)
	assert.InDelta(t, 610000.0/11.0, fit.SimpleCostPerResponseDay, 1e-6)
}

func TestPredictCost_SkipsDroppedCoefficients(t *testing.T) {
	fit := &entity.DelayCostFit{
		Intercept: 1000,
		Coefficients: []entity.RegressionCoefficient{
			{Name: RegressorDetectionDelay, Value: 500},
			{Name: RegressorResponseDelay, Dropped: true},
			{Name: RegressorRecordsExposed, Value: 2},
		},
	}

	got := PredictCost(fit, 10, 99, 100)
	assert.InDelta(t, 1000+500*10+2*100, got, 1e-9)
}

func TestCorrelations(t *testing.T) {
	incidents := linearFixture(
		[]float64{1, 2, 3, 4},
		[]float64{8, 6, 4, 2},
		[]int64{10, 20, 30, 40},
		func(det, resp float64, rec int64) float64 { return 100 * det },
	)

	analyzer := NewCorrelationAnalyzer(zaptest.NewLogger(t))
	correlations, err := analyzer.Correlations(entity.NewSnapshot(incidents))
	require.NoError(t, err)
	require.Len(t, correlations, 5)

	pairs := make([]string, len(correlations))
	byPair := make(map[string]entity.Correlation)
	for i, c := range correlations {
		pairs[i] = c.Pair
		byPair[c.Pair] = c
	}
	assert.Equal(t, []string{
		"detection_vs_cost",
		"response_vs_cost",
		"records_vs_cost",
		"sensitivity_vs_cost",
		"detection_vs_records",
	}, pairs)

	assert.InDelta(t, 1.0, byPair["detection_vs_cost"].Coefficient, 1e-9)
	assert.True(t, byPair["detection_vs_cost"].Defined)
	assert.InDelta(t, -1.0, byPair["response_vs_cost"].Coefficient, 1e-9)
	assert.InDelta(t, 1.0, byPair["records_vs_cost"].Coefficient, 1e-9)
	assert.InDelta(t, 1.0, byPair["detection_vs_records"].Coefficient, 1e-9)

	// Sensitivity is constant in this fixture: the pair is undefined, not NaN.
	sens := byPair["sensitivity_vs_cost"]
	assert.False(t, sens.Defined)
	assert.Equal(t, 0.0, sens.Coefficient)
}

func TestCorrelations_InsufficientData(t *testing.T) {
	analyzer := NewCorrelationAnalyzer(zaptest.NewLogger(t))

	_, err := analyzer.Correlations(entity.NewSnapshot(fourIncidentFixture()[:1]))
	var insufficient *entity.InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)
}
