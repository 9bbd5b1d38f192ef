package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// CostModel is a trained breach-cost predictor. Implementations live in
// infrastructure; the report builder only consumes the holdout evaluation.
type CostModel interface {
	Predict(input entity.PredictionInput) (float64, error)
	Evaluation() *entity.PredictorEvaluation
}

// ClusterModel groups the incidents of a snapshot into behavioral segments.
type ClusterModel interface {
	Cluster(snap *entity.Snapshot) (*entity.ClusterAnalysis, error)
}

// ReportParams are the per-run knobs of the executive report. Defaults come
// from configuration; callers may override them per request.
type ReportParams struct {
	TopIncidents          int
	DetectionTargets      []float64
	DetectionConservatism float64
	DetectionCutDays      float64
	ResponseCutDays       float64
	CutConservatism       float64
}

// DefaultReportParams returns the standard report shape: ten costliest
// incidents, a four-day detection target discounted to 10%, and a one-week
// detection / two-day response counterfactual discounted to 5%.
func DefaultReportParams() ReportParams {
	return ReportParams{
		TopIncidents:          10,
		DetectionTargets:      []float64{4},
		DetectionConservatism: 0.10,
		DetectionCutDays:      7,
		ResponseCutDays:       2,
		CutConservatism:       0.05,
	}
}

// ReportBuilder assembles the executive report from the engine components.
// Every section is attempted independently: a section that fails with a
// domain error is omitted from the report and its error recorded under the
// section key, so one thin slice of data never suppresses the rest of the
// analysis. The components themselves never swallow errors; omission is
// decided only here.
type ReportBuilder struct {
	aggregator *CostAggregator
	scorer     *RiskScorer
	correlator *CorrelationAnalyzer
	regressor  *DelayCostRegressor
	simulator  *DelaySimulator
	logger     *zap.Logger
}

// NewReportBuilder wires the engine components into a report builder.
func NewReportBuilder(
	aggregator *CostAggregator,
	scorer *RiskScorer,
	correlator *CorrelationAnalyzer,
	regressor *DelayCostRegressor,
	simulator *DelaySimulator,
	logger *zap.Logger,
) *ReportBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportBuilder{
		aggregator: aggregator,
		scorer:     scorer,
		correlator: correlator,
		regressor:  regressor,
		simulator:  simulator,
		logger:     logger.Named("report"),
	}
}

// Simulator exposes the delay simulator for ad hoc projections outside
// a full report build.
func (b *ReportBuilder) Simulator() *DelaySimulator { return b.simulator }

// Build runs every analysis section over the snapshot and assembles the
// report. costModel and clusterModel may be nil when model training is
// disabled; their sections are then recorded as unavailable.
func (b *ReportBuilder) Build(snap *entity.Snapshot, costModel CostModel, clusterModel ClusterModel, params ReportParams) *entity.ExecutiveReport {
	start := time.Now()
	report := &entity.ExecutiveReport{
		ID:            uuid.New(),
		RunID:         snap.RunID(),
		GeneratedAt:   time.Now().UTC(),
		IncidentCount: snap.Len(),
		SectionErrors: make(map[string]string),
	}

	section := func(key string, err error) bool {
		if err != nil {
			b.logger.Warn("report section unavailable",
				zap.String("section", key),
				zap.Error(err))
			report.SectionErrors[key] = err.Error()
			return false
		}
		return true
	}

	if overview, err := b.aggregator.Overview(snap); section(entity.SectionOverview, err) {
		report.Overview = overview
	}
	if groups, err := b.aggregator.CostByDimension(snap, DimensionSystem); section(entity.SectionCostBySystem, err) {
		report.CostBySystem = groups
	}
	if groups, err := b.aggregator.CostByDimension(snap, DimensionRegion); section(entity.SectionCostByRegion, err) {
		report.CostByRegion = groups
	}
	if groups, err := b.aggregator.CostByDimension(snap, DimensionAttackType); section(entity.SectionCostByAttackType, err) {
		report.CostByAttackType = groups
	}
	if groups, err := b.aggregator.CostByDimension(snap, DimensionSystem, DimensionRegion); section(entity.SectionCostBySystemRegion, err) {
		report.CostBySystemRegion = groups
	}
	if top, err := b.aggregator.TopCostliestIncidents(snap, params.TopIncidents); section(entity.SectionTopIncidents, err) {
		report.TopIncidents = top
	}
	if stats, err := b.aggregator.DetectionBySystem(snap); section(entity.SectionDetectionBySystem, err) {
		report.DetectionBySystem = stats
	}
	if vectors, err := b.aggregator.AttackVectorAnalysis(snap); section(entity.SectionAttackVectors, err) {
		report.AttackVectors = vectors
	}
	if impacts, err := b.aggregator.SensitivityImpact(snap); section(entity.SectionSensitivityImpact, err) {
		report.SensitivityImpact = impacts
	}
	if pareto, err := b.aggregator.Pareto(snap); section(entity.SectionPareto, err) {
		report.Pareto = pareto
	}

	if scores, err := b.scorer.Scores(snap); section(entity.SectionRiskScores, err) {
		report.RiskScores = scores
	}
	if correlations, err := b.correlator.Correlations(snap); section(entity.SectionCorrelations, err) {
		report.Correlations = correlations
	}

	fit, err := b.regressor.Fit(snap)
	if section(entity.SectionDelayCostFit, err) {
		report.DelayCostFit = fit
		b.buildSavings(snap, fit, params, report, section)
	} else {
		report.SectionErrors[entity.SectionSavingsProjections] = "delay-cost model unavailable"
		report.SectionErrors[entity.SectionCounterfactualSavings] = "delay-cost model unavailable"
	}

	if costModel == nil {
		report.SectionErrors[entity.SectionPredictorEvaluation] = "cost model not trained for this run"
	} else if eval := costModel.Evaluation(); eval != nil {
		report.PredictorEvaluation = eval
	}
	if clusterModel == nil {
		report.SectionErrors[entity.SectionClusters] = "cluster model not trained for this run"
	} else if clusters, err := clusterModel.Cluster(snap); section(entity.SectionClusters, err) {
		report.Clusters = clusters
	}

	b.logger.Info("executive report assembled",
		zap.String("run_id", report.RunID.String()),
		zap.Int("incidents", report.IncidentCount),
		zap.Int("failed_sections", len(report.SectionErrors)),
		zap.Duration("elapsed", time.Since(start)))

	return report
}

func (b *ReportBuilder) buildSavings(snap *entity.Snapshot, fit *entity.DelayCostFit, params ReportParams, report *entity.ExecutiveReport, section func(string, error) bool) {
	projections := make([]entity.SavingsProjection, 0, len(params.DetectionTargets))
	for _, target := range params.DetectionTargets {
		projection, err := b.simulator.ProjectSavings(snap, fit, target, params.DetectionConservatism)
		if !section(entity.SectionSavingsProjections, err) {
			continue
		}
		projections = append(projections, *projection)
	}
	if len(projections) > 0 {
		report.SavingsProjections = projections
	}

	counterfactual, err := b.simulator.CounterfactualSavings(snap, fit, params.DetectionCutDays, params.ResponseCutDays, params.CutConservatism)
	if section(entity.SectionCounterfactualSavings, err) {
		report.CounterfactualSavings = counterfactual
	}
}
