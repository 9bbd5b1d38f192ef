package usecase

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/domain/service"
	"github.com/missatech/breach-analytics/infrastructure/artifact"
	"github.com/missatech/breach-analytics/infrastructure/cache"
	"github.com/missatech/breach-analytics/infrastructure/prediction"
	"github.com/missatech/breach-analytics/infrastructure/repository"
)

func testForestConfig() prediction.ForestConfig {
	cfg := prediction.DefaultForestConfig()
	cfg.Trees = 20
	return cfg
}

func newTestRunner(t *testing.T, incidents []entity.Incident, artifacts ArtifactStore) *AnalysisRunner {
	t.Helper()
	logger := zaptest.NewLogger(t)

	scorer, err := service.NewRiskScorer(entity.DefaultRiskWeights(), logger)
	require.NoError(t, err)
	builder := service.NewReportBuilder(
		service.NewCostAggregator(logger),
		scorer,
		service.NewCorrelationAnalyzer(logger),
		service.NewDelayCostRegressor(logger),
		service.NewDelaySimulator(logger),
		logger,
	)

	runner, err := NewAnalysisRunner(
		repository.NewMemorySource(incidents, logger),
		builder,
		cache.NewMemoryReportCache(8),
		artifacts,
		nil,
		testForestConfig(),
		prediction.DefaultClustererConfig(),
		service.DefaultReportParams(),
		logger,
	)
	require.NoError(t, err)
	return runner
}

func newTestStore(t *testing.T) *artifact.FSStore {
	t.Helper()
	store, err := artifact.NewFSStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return store
}

func validPredictionInput() entity.PredictionInput {
	return entity.PredictionInput{
		System:            "Billing",
		Region:            "eu-west2",
		AttackType:        "Misconfiguration",
		SensitivityLevel:  4,
		RecordsExposed:    5000,
		DetectionTimeDays: 12,
		ResponseTimeDays:  3,
	}
}

type failingSource struct{}

func (failingSource) FetchIncidents(context.Context) ([]entity.Incident, error) {
	return nil, errors.New("register offline")
}

func TestNewAnalysisRunner_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	builder := service.NewReportBuilder(
		service.NewCostAggregator(logger), nil, nil, nil,
		service.NewDelaySimulator(logger), logger)
	source := repository.NewMemorySource(nil, logger)
	reports := cache.NewMemoryReportCache(4)

	testCases := []struct {
		name string
		run  func() (*AnalysisRunner, error)
	}{
		{
			name: "missing source",
			run: func() (*AnalysisRunner, error) {
				return NewAnalysisRunner(nil, builder, reports, nil, nil,
					testForestConfig(), prediction.DefaultClustererConfig(),
					service.DefaultReportParams(), logger)
			},
		},
		{
			name: "missing builder",
			run: func() (*AnalysisRunner, error) {
				return NewAnalysisRunner(source, nil, reports, nil, nil,
					testForestConfig(), prediction.DefaultClustererConfig(),
					service.DefaultReportParams(), logger)
			},
		},
		{
			name: "missing cache",
			run: func() (*AnalysisRunner, error) {
				return NewAnalysisRunner(source, builder, nil, nil, nil,
					testForestConfig(), prediction.DefaultClustererConfig(),
					service.DefaultReportParams(), logger)
			},
		},
		{
			name: "invalid forest config",
			run: func() (*AnalysisRunner, error) {
				return NewAnalysisRunner(source, builder, reports, nil, nil,
					prediction.ForestConfig{HoldoutFraction: 0.2},
					prediction.DefaultClustererConfig(),
					service.DefaultReportParams(), logger)
			},
		},
		{
			name: "invalid clusterer config",
			run: func() (*AnalysisRunner, error) {
				return NewAnalysisRunner(source, builder, reports, nil, nil,
					testForestConfig(), prediction.ClustererConfig{Restarts: 1, MaxIterations: 1},
					service.DefaultReportParams(), logger)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			runner, err := tc.run()
			require.Error(t, err)
			assert.Nil(t, runner)
		})
	}
}

func TestAnalysisRunner_RunProducesCompleteReport(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	runner := newTestRunner(t, repository.SampleRegister(), store)

	report, err := runner.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 100, report.IncidentCount)
	assert.Empty(t, report.SectionErrors)
	assert.NotNil(t, report.Overview)
	assert.NotNil(t, report.DelayCostFit)
	assert.NotNil(t, report.PredictorEvaluation)
	assert.NotNil(t, report.Clusters)
	assert.NotEmpty(t, report.SavingsProjections)
	assert.NotNil(t, report.CounterfactualSavings)
	assert.True(t, runner.Ready())

	latest, err := runner.LatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.ID, latest.ID)

	byRun, err := runner.ReportByRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, byRun.ID)

	env, err := store.Load(ctx, artifact.ModelCostPredictor)
	require.NoError(t, err)
	require.NoError(t, env.Verify(artifact.ModelCostPredictor))
	assert.Equal(t, report.RunID.String(), env.RunID)
}

func TestAnalysisRunner_PredictAfterRun(t *testing.T) {
	runner := newTestRunner(t, repository.SampleRegister(), nil)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	result, err := runner.PredictCost(validPredictionInput())
	require.NoError(t, err)
	assert.Greater(t, result.PredictedCost, 0.0)
	assert.Equal(t, artifact.ModelCostPredictor, result.ModelName)
	assert.Equal(t, "v1", result.SchemaVersion)
	assert.Equal(t, report.RunID.String(), result.RunID)
}

func TestAnalysisRunner_SimulationsAfterRun(t *testing.T) {
	runner := newTestRunner(t, repository.SampleRegister(), nil)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	t.Run("projection with default conservatism", func(t *testing.T) {
		projection, err := runner.ProjectSavings(4, 0)
		require.NoError(t, err)
		assert.Equal(t, 100, projection.IncidentCount)
		assert.Equal(t, service.DefaultReportParams().DetectionConservatism, projection.Conservatism)
		assert.Greater(t, projection.ProjectedSavings, 0.0)
	})

	t.Run("projection with explicit conservatism", func(t *testing.T) {
		projection, err := runner.ProjectSavings(4, 0.25)
		require.NoError(t, err)
		assert.Equal(t, 0.25, projection.Conservatism)
	})

	t.Run("target above current mean rejected", func(t *testing.T) {
		_, err := runner.ProjectSavings(50, 0)
		var invalidTarget *entity.InvalidTargetError
		require.ErrorAs(t, err, &invalidTarget)
	})

	t.Run("counterfactual", func(t *testing.T) {
		counterfactual, err := runner.Counterfactual(7, 2, 0)
		require.NoError(t, err)
		assert.Greater(t, counterfactual.Savings, 0.0)
		assert.Less(t, counterfactual.ImprovedTotalCost, counterfactual.CurrentTotalCost)
	})
}

func TestAnalysisRunner_ColdStartFailsFast(t *testing.T) {
	runner := newTestRunner(t, repository.SampleRegister(), nil)
	assert.False(t, runner.Ready())

	var businessErr *entity.BusinessLogicError

	_, err := runner.PredictCost(validPredictionInput())
	require.ErrorAs(t, err, &businessErr)

	_, err = runner.ProjectSavings(4, 0)
	require.ErrorAs(t, err, &businessErr)

	_, err = runner.Counterfactual(7, 2, 0)
	require.ErrorAs(t, err, &businessErr)
}

func TestAnalysisRunner_TrainingFailureDegradesReport(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	// Six incidents clear every analytic minimum except forest training.
	runner := newTestRunner(t, repository.SampleRegister()[:6], store)

	report, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.Contains(t, report.SectionErrors, entity.SectionPredictorEvaluation)
	assert.Nil(t, report.PredictorEvaluation)
	assert.NotNil(t, report.Overview)
	assert.NotNil(t, report.DelayCostFit)
	assert.False(t, runner.Ready())

	_, err = runner.PredictCost(validPredictionInput())
	var businessErr *entity.BusinessLogicError
	require.ErrorAs(t, err, &businessErr)

	// An untrained model must never overwrite the persisted artifact.
	_, err = store.Load(ctx, artifact.ModelCostPredictor)
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestAnalysisRunner_WarmStart(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := newTestRunner(t, repository.SampleRegister(), store)
	report, err := first.Run(ctx)
	require.NoError(t, err)

	// A fresh process restores the predictor without rerunning the analysis.
	second := newTestRunner(t, repository.SampleRegister(), store)
	require.NoError(t, second.Warm(ctx))
	assert.True(t, second.Ready())

	result, err := second.PredictCost(validPredictionInput())
	require.NoError(t, err)
	assert.Equal(t, report.RunID.String(), result.RunID)

	// Simulations need a live run's data context, not just the model.
	_, err = second.ProjectSavings(4, 0)
	var businessErr *entity.BusinessLogicError
	require.ErrorAs(t, err, &businessErr)
}

func TestAnalysisRunner_WarmWithoutArtifacts(t *testing.T) {
	t.Run("no store configured", func(t *testing.T) {
		runner := newTestRunner(t, repository.SampleRegister(), nil)
		require.NoError(t, runner.Warm(context.Background()))
		assert.False(t, runner.Ready())
	})

	t.Run("empty store", func(t *testing.T) {
		runner := newTestRunner(t, repository.SampleRegister(), newTestStore(t))
		require.NoError(t, runner.Warm(context.Background()))
		assert.False(t, runner.Ready())
	})
}

func TestAnalysisRunner_FetchFailureAbortsRun(t *testing.T) {
	logger := zaptest.NewLogger(t)
	scorer, err := service.NewRiskScorer(entity.DefaultRiskWeights(), logger)
	require.NoError(t, err)
	builder := service.NewReportBuilder(
		service.NewCostAggregator(logger), scorer,
		service.NewCorrelationAnalyzer(logger),
		service.NewDelayCostRegressor(logger),
		service.NewDelaySimulator(logger), logger)

	runner, err := NewAnalysisRunner(failingSource{}, builder,
		cache.NewMemoryReportCache(4), nil, nil,
		testForestConfig(), prediction.DefaultClustererConfig(),
		service.DefaultReportParams(), logger)
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "failed to load breach register")

	_, err = runner.LatestReport(context.Background())
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestAnalysisRunner_RunHonorsCancellation(t *testing.T) {
	runner := newTestRunner(t, repository.SampleRegister(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
