package service

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// DelaySimulator projects the financial impact of reducing detection and
// response delays, using the marginal rates of a fitted delay-cost model.
type DelaySimulator struct {
	logger *zap.Logger
}

// NewDelaySimulator creates a delay-impact simulator.
func NewDelaySimulator(logger *zap.Logger) *DelaySimulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelaySimulator{logger: logger.Named("simulator")}
}

// ProjectSavings estimates the total savings of bringing the mean detection
// delay down to targetDays:
//
//	incidents x (current mean - target) x marginal cost per day x conservatism
//
// The conservatism factor discounts the linear extrapolation and must lie
// in (0, 1]. A target at or above the current mean fails with
// InvalidTargetError rather than reporting a zero or negative saving.
func (s *DelaySimulator) ProjectSavings(snap *entity.Snapshot, fit *entity.DelayCostFit, targetDays, conservatism float64) (*entity.SavingsProjection, error) {
	if snap.Len() == 0 {
		return nil, entity.NewInsufficientDataError("savings projection", 1, 0)
	}
	if fit == nil {
		return nil, entity.NewBusinessLogicError("savings projection", "no fitted delay-cost model")
	}
	if err := validateConservatism(conservatism); err != nil {
		return nil, err
	}
	if targetDays < 0 || math.IsNaN(targetDays) {
		return nil, entity.NewValidationError("target_days", "must be a non-negative number")
	}

	detection := make([]float64, 0, snap.Len())
	for _, inc := range snap.Incidents() {
		detection = append(detection, inc.DetectionTimeDays)
	}
	currentMean := stableMean(detection)
	if targetDays >= currentMean {
		return nil, entity.NewInvalidTargetError(targetDays, currentMean)
	}

	reduction := currentMean - targetDays
	projection := &entity.SavingsProjection{
		Scenario:             fmt.Sprintf("mean detection delay to %.1f days", targetDays),
		IncidentCount:        snap.Len(),
		CurrentMeanDelayDays: currentMean,
		TargetDelayDays:      targetDays,
		MarginalCostPerDay:   fit.MarginalCostPerDay,
		Conservatism:         conservatism,
		ProjectedSavings:     float64(snap.Len()) * reduction * fit.MarginalCostPerDay * conservatism,
	}

	s.logger.Debug("savings projected",
		zap.Float64("current_mean_days", currentMean),
		zap.Float64("target_days", targetDays),
		zap.Float64("projected_savings", projection.ProjectedSavings))

	return projection, nil
}

// CounterfactualSavings re-scores every incident through the fitted model
// with its delays cut by the given number of days, and reports the modeled
// cost difference. Delays and predicted costs are both floored at zero, so
// an aggressive cut can never produce negative delays or negative costs.
func (s *DelaySimulator) CounterfactualSavings(snap *entity.Snapshot, fit *entity.DelayCostFit, detectionCutDays, responseCutDays, conservatism float64) (*entity.CounterfactualSavings, error) {
	if snap.Len() == 0 {
		return nil, entity.NewInsufficientDataError("counterfactual savings", 1, 0)
	}
	if fit == nil {
		return nil, entity.NewBusinessLogicError("counterfactual savings", "no fitted delay-cost model")
	}
	if err := validateConservatism(conservatism); err != nil {
		return nil, err
	}
	if detectionCutDays < 0 || math.IsNaN(detectionCutDays) {
		return nil, entity.NewValidationError("detection_cut_days", "must be a non-negative number")
	}
	if responseCutDays < 0 || math.IsNaN(responseCutDays) {
		return nil, entity.NewValidationError("response_cut_days", "must be a non-negative number")
	}

	incidents := snap.Incidents()
	actual := make([]float64, 0, len(incidents))
	deltas := make([]float64, 0, len(incidents))
	for _, inc := range incidents {
		actual = append(actual, inc.Cost)

		base := math.Max(PredictCost(fit, inc.DetectionTimeDays, inc.ResponseTimeDays, inc.RecordsExposed), 0)
		improved := math.Max(PredictCost(fit,
			math.Max(inc.DetectionTimeDays-detectionCutDays, 0),
			math.Max(inc.ResponseTimeDays-responseCutDays, 0),
			inc.RecordsExposed), 0)
		deltas = append(deltas, math.Max(base-improved, 0))
	}

	currentTotal := stableSum(actual)
	savings := stableSum(deltas) * conservatism
	result := &entity.CounterfactualSavings{
		DetectionCutDays:  detectionCutDays,
		ResponseCutDays:   responseCutDays,
		CurrentTotalCost:  currentTotal,
		ImprovedTotalCost: currentTotal - savings,
		Savings:           savings,
	}
	if currentTotal > 0 {
		result.SavingsPercent = savings / currentTotal * 100
	}

	s.logger.Debug("counterfactual evaluated",
		zap.Float64("detection_cut_days", detectionCutDays),
		zap.Float64("response_cut_days", responseCutDays),
		zap.Float64("savings", savings))

	return result, nil
}

func validateConservatism(factor float64) error {
	if math.IsNaN(factor) || factor <= 0 || factor > 1 {
		return entity.NewValidationError("conservatism", "must be in (0, 1]")
	}
	return nil
}
