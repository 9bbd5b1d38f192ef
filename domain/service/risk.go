package service

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// RiskScorer ranks (system, region) pairs by a composite of five
// incident-derived signals: incident frequency, total cost, mean
// sensitivity, mean detection delay, and total records exposed. Each
// signal is min-max normalized over all groups before weighting, so every
// composite score lands in [0,1].
type RiskScorer struct {
	weights entity.RiskWeights
	logger  *zap.Logger
}

// NewRiskScorer creates a risk scorer with the given component weights.
// The weights must be non-negative and sum to exactly 1.
func NewRiskScorer(weights entity.RiskWeights, logger *zap.Logger) (*RiskScorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskScorer{weights: weights, logger: logger.Named("risk_scorer")}, nil
}

// Weights returns the component weighting this scorer applies.
func (s *RiskScorer) Weights() entity.RiskWeights { return s.weights }

// Scores computes the composite risk ranking for every (system, region)
// group in the snapshot, ordered by descending score with ties broken by
// descending total cost and then ascending group key. An empty snapshot
// fails with InsufficientDataError.
func (s *RiskScorer) Scores(snap *entity.Snapshot) ([]entity.RiskScore, error) {
	type groupSignals struct {
		system        string
		region        string
		costs         []float64
		sensitivities []float64
		detections    []float64
		records       int64
	}

	groups := make(map[string]*groupSignals)
	for _, inc := range snap.Incidents() {
		key := inc.System + "/" + inc.Region
		g, ok := groups[key]
		if !ok {
			g = &groupSignals{system: inc.System, region: inc.Region}
			groups[key] = g
		}
		g.costs = append(g.costs, inc.Cost)
		g.sensitivities = append(g.sensitivities, float64(inc.SensitivityLevel))
		g.detections = append(g.detections, inc.DetectionTimeDays)
		g.records += inc.RecordsExposed
	}
	if len(groups) == 0 {
		return nil, entity.NewInsufficientDataError("risk scoring", 1, 0)
	}

	scores := make([]entity.RiskScore, 0, len(groups))
	for _, g := range groups {
		scores = append(scores, entity.RiskScore{
			System:            g.system,
			Region:            g.region,
			IncidentFrequency: len(g.costs),
			TotalCost:         stableSum(g.costs),
			AvgSensitivity:    stableMean(g.sensitivities),
			AvgDetectionDays:  stableMean(g.detections),
			TotalRecords:      g.records,
		})
	}

	frequency := make([]float64, len(scores))
	totalCost := make([]float64, len(scores))
	sensitivity := make([]float64, len(scores))
	detection := make([]float64, len(scores))
	records := make([]float64, len(scores))
	for i, sc := range scores {
		frequency[i] = float64(sc.IncidentFrequency)
		totalCost[i] = sc.TotalCost
		sensitivity[i] = sc.AvgSensitivity
		detection[i] = sc.AvgDetectionDays
		records[i] = float64(sc.TotalRecords)
	}

	normFrequency := minMaxNormalize(frequency)
	normCost := minMaxNormalize(totalCost)
	normSensitivity := minMaxNormalize(sensitivity)
	normDetection := minMaxNormalize(detection)
	normRecords := minMaxNormalize(records)

	for i := range scores {
		scores[i].Components = entity.RiskComponents{
			Frequency:      normFrequency[i],
			TotalCost:      normCost[i],
			Sensitivity:    normSensitivity[i],
			DetectionDelay: normDetection[i],
			RecordsExposed: normRecords[i],
		}
		score := normFrequency[i]*s.weights.Frequency +
			normCost[i]*s.weights.TotalCost +
			normSensitivity[i]*s.weights.Sensitivity +
			normDetection[i]*s.weights.DetectionDelay +
			normRecords[i]*s.weights.RecordsExposed
		// Accumulation can overshoot the unit interval by an ulp.
		scores[i].Score = math.Min(math.Max(score, 0), 1)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].TotalCost != scores[j].TotalCost {
			return scores[i].TotalCost > scores[j].TotalCost
		}
		return scores[i].GroupKey() < scores[j].GroupKey()
	})

	s.logger.Debug("risk scores computed",
		zap.Int("incidents", snap.Len()),
		zap.Int("groups", len(scores)))

	return scores, nil
}

// minMaxNormalize rescales values to [0,1] over their observed range. A
// zero-range signal normalizes to 0 for every group: with no variance it
// carries no ranking information, and it must not inflate every score the
// way a midpoint default would.
func minMaxNormalize(values []float64) []float64 {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	normalized := make([]float64, len(values))
	if max == min {
		return normalized
	}
	span := max - min
	for i, v := range values {
		normalized[i] = (v - min) / span
	}
	return normalized
}
