package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/domain/service"
	"github.com/missatech/breach-analytics/infrastructure/artifact"
	"github.com/missatech/breach-analytics/infrastructure/prediction"
)

// AnalysisRunner executes analysis runs and holds the models and data
// context of the most recent one, so predictions and simulations can be
// served between runs. A warm start restores the cost predictor from its
// persisted artifact before the first run completes.
type AnalysisRunner struct {
	source    IncidentSource
	builder   *service.ReportBuilder
	cache     ReportCache
	artifacts ArtifactStore
	publisher RunPublisher

	forestCfg  prediction.ForestConfig
	clusterCfg prediction.ClustererConfig
	params     service.ReportParams
	logger     *zap.Logger

	mu       sync.RWMutex
	runSeq   sync.Mutex
	forest   *prediction.CostForest
	fit      *entity.DelayCostFit
	snapshot *entity.Snapshot
	runID    string
}

// NewAnalysisRunner wires the run pipeline. artifacts and publisher may be
// nil; persistence and announcements are then skipped.
func NewAnalysisRunner(
	source IncidentSource,
	builder *service.ReportBuilder,
	cache ReportCache,
	artifacts ArtifactStore,
	publisher RunPublisher,
	forestCfg prediction.ForestConfig,
	clusterCfg prediction.ClustererConfig,
	params service.ReportParams,
	logger *zap.Logger,
) (*AnalysisRunner, error) {
	if source == nil {
		return nil, entity.NewValidationError("source", "incident source is required")
	}
	if builder == nil {
		return nil, entity.NewValidationError("builder", "report builder is required")
	}
	if cache == nil {
		return nil, entity.NewValidationError("cache", "report cache is required")
	}
	if err := forestCfg.Validate(); err != nil {
		return nil, err
	}
	if err := clusterCfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnalysisRunner{
		source:     source,
		builder:    builder,
		cache:      cache,
		artifacts:  artifacts,
		publisher:  publisher,
		forestCfg:  forestCfg,
		clusterCfg: clusterCfg,
		params:     params,
		logger:     logger.Named("analysis"),
	}, nil
}

// Run executes one full analysis pass. Model training failures degrade
// the report (their sections carry an error) instead of failing the run;
// cache, artifact, and publish failures are logged and the report is
// still returned.
func (r *AnalysisRunner) Run(ctx context.Context) (*entity.ExecutiveReport, error) {
	// One run at a time: concurrent triggers would waste identical work.
	r.runSeq.Lock()
	defer r.runSeq.Unlock()

	start := time.Now()
	incidents, err := r.source.FetchIncidents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load breach register")
	}

	snap := entity.NewSnapshot(incidents)
	logger := r.logger.With(zap.String("run_id", snap.RunID().String()))
	logger.Info("analysis run started", zap.Int("incidents", snap.Len()))

	var costModel service.CostModel
	forest, err := prediction.NewCostForest(r.forestCfg, r.logger)
	if err != nil {
		return nil, err
	}
	if err := forest.Train(ctx, snap); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("cost predictor not trained for this run", zap.Error(err))
	} else {
		costModel = forest
	}

	clusterer, err := prediction.NewIncidentClusterer(r.clusterCfg, r.logger)
	if err != nil {
		return nil, err
	}

	report := r.builder.Build(snap, costModel, clusterer, r.params)

	if err := r.cache.StoreReport(ctx, report); err != nil {
		logger.Error("failed to cache report", zap.Error(err))
	}
	if r.artifacts != nil && costModel != nil {
		r.persistForest(ctx, forest, snap.RunID(), logger)
	}

	elapsed := time.Since(start)
	if r.publisher != nil {
		if err := r.publisher.PublishRunCompleted(ctx, report, elapsed); err != nil {
			logger.Warn("failed to publish run event", zap.Error(err))
		}
	}

	r.mu.Lock()
	if costModel != nil {
		r.forest = forest
	}
	r.fit = report.DelayCostFit
	r.snapshot = snap
	r.runID = snap.RunID().String()
	r.mu.Unlock()

	logger.Info("analysis run complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("section_errors", len(report.SectionErrors)))
	return report, nil
}

func (r *AnalysisRunner) persistForest(ctx context.Context, forest *prediction.CostForest, runID uuid.UUID, logger *zap.Logger) {
	payload, err := forest.MarshalBinary()
	if err != nil {
		logger.Warn("failed to serialize cost predictor", zap.Error(err))
		return
	}
	env := artifact.NewEnvelope(artifact.ModelCostPredictor, runID, payload)
	if err := r.artifacts.Save(ctx, env); err != nil {
		logger.Warn("failed to persist cost predictor artifact", zap.Error(err))
	}
}

// Warm restores the cost predictor from its persisted artifact, so
// predictions are available before the first run of this process. A
// missing artifact is not an error; a corrupt or incompatible one is.
func (r *AnalysisRunner) Warm(ctx context.Context) error {
	if r.artifacts == nil {
		return nil
	}

	env, err := r.artifacts.Load(ctx, artifact.ModelCostPredictor)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			r.logger.Info("no persisted cost predictor, starting cold")
			return nil
		}
		return errors.Wrap(err, "failed to load cost predictor artifact")
	}
	if err := env.Verify(artifact.ModelCostPredictor); err != nil {
		return err
	}

	forest, err := prediction.NewCostForest(r.forestCfg, r.logger)
	if err != nil {
		return err
	}
	if err := forest.UnmarshalBinary(env.Payload); err != nil {
		return errors.Wrap(err, "failed to restore cost predictor")
	}

	r.mu.Lock()
	r.forest = forest
	r.runID = env.RunID
	r.mu.Unlock()

	r.logger.Info("cost predictor restored from artifact",
		zap.String("trained_run_id", env.RunID),
		zap.Time("trained_at", env.TrainedAt))
	return nil
}

// PredictCost serves a cost prediction from the current model.
func (r *AnalysisRunner) PredictCost(input entity.PredictionInput) (*entity.PredictionResult, error) {
	r.mu.RLock()
	forest := r.forest
	runID := r.runID
	r.mu.RUnlock()

	if forest == nil {
		return nil, entity.NewBusinessLogicError("cost prediction",
			"no trained model available; trigger an analysis run first")
	}

	cost, err := forest.Predict(input)
	if err != nil {
		return nil, err
	}
	return &entity.PredictionResult{
		PredictedCost: cost,
		ModelName:     artifact.ModelCostPredictor,
		SchemaVersion: fmt.Sprintf("v%d", artifact.CurrentSchemaVersion),
		RunID:         runID,
	}, nil
}

// ProjectSavings serves a detection-delay savings projection against the
// data context of the most recent run.
func (r *AnalysisRunner) ProjectSavings(targetDays, conservatism float64) (*entity.SavingsProjection, error) {
	r.mu.RLock()
	snap, fit := r.snapshot, r.fit
	r.mu.RUnlock()

	if snap == nil {
		return nil, entity.NewBusinessLogicError("savings projection",
			"no completed analysis run; trigger one first")
	}
	if fit == nil {
		return nil, entity.NewBusinessLogicError("savings projection",
			"delay-cost model unavailable for the last run")
	}
	if conservatism == 0 {
		conservatism = r.params.DetectionConservatism
	}
	return r.builder.Simulator().ProjectSavings(snap, fit, targetDays, conservatism)
}

// Counterfactual re-scores the last run's register with its delays cut by
// the given number of days and reports the modeled savings.
func (r *AnalysisRunner) Counterfactual(detectionCutDays, responseCutDays, conservatism float64) (*entity.CounterfactualSavings, error) {
	r.mu.RLock()
	snap, fit := r.snapshot, r.fit
	r.mu.RUnlock()

	if snap == nil {
		return nil, entity.NewBusinessLogicError("counterfactual savings",
			"no completed analysis run; trigger one first")
	}
	if fit == nil {
		return nil, entity.NewBusinessLogicError("counterfactual savings",
			"delay-cost model unavailable for the last run")
	}
	if conservatism == 0 {
		conservatism = r.params.CutConservatism
	}
	return r.builder.Simulator().CounterfactualSavings(snap, fit, detectionCutDays, responseCutDays, conservatism)
}

// LatestReport returns the most recent cached report.
func (r *AnalysisRunner) LatestReport(ctx context.Context) (*entity.ExecutiveReport, error) {
	return r.cache.LatestReport(ctx)
}

// ReportByRun returns the cached report for one run.
func (r *AnalysisRunner) ReportByRun(ctx context.Context, runID uuid.UUID) (*entity.ExecutiveReport, error) {
	return r.cache.ReportByRun(ctx, runID)
}

// Ready reports whether the runner can serve predictions.
func (r *AnalysisRunner) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.forest != nil
}
