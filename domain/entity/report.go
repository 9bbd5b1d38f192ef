package entity

import (
	"time"

	"github.com/google/uuid"
)

// AggregateGroup holds the cost aggregates for one group of incidents.
// Groups are recomputed fresh on every query and never persisted apart
// from the report that carries them.
type AggregateGroup struct {
	Key              string  `json:"key"`
	IncidentCount    int     `json:"incident_count"`
	TotalCost        float64 `json:"total_cost"`
	AvgCost          float64 `json:"avg_cost"`
	TotalRecords     int64   `json:"total_records"`
	AvgDetectionDays float64 `json:"avg_detection_days"`
	AvgResponseDays  float64 `json:"avg_response_days"`
}

// SystemDetectionStats summarizes detection and response timing for one
// business system.
type SystemDetectionStats struct {
	System           string  `json:"system"`
	IncidentCount    int     `json:"incident_count"`
	AvgDetectionDays float64 `json:"avg_detection_days"`
	AvgResponseDays  float64 `json:"avg_response_days"`
	MinDetectionDays float64 `json:"min_detection_days"`
	MaxDetectionDays float64 `json:"max_detection_days"`
}

// AttackVectorStats summarizes the impact profile of one attack type.
type AttackVectorStats struct {
	AttackType       string  `json:"attack_type"`
	Frequency        int     `json:"frequency"`
	TotalCost        float64 `json:"total_cost"`
	AvgCost          float64 `json:"avg_cost"`
	AvgRecords       float64 `json:"avg_records"`
	AvgDetectionDays float64 `json:"avg_detection_days"`
	AvgResponseDays  float64 `json:"avg_response_days"`
	CostShare        float64 `json:"cost_share"`
}

// SensitivityImpact summarizes breach impact for one data sensitivity
// level.
type SensitivityImpact struct {
	SensitivityLevel      int     `json:"sensitivity_level"`
	IncidentCount         int     `json:"incident_count"`
	AvgCostPerRecord      float64 `json:"avg_cost_per_record"`
	AvgTotalCost          float64 `json:"avg_total_cost"`
	NotificationsRequired int     `json:"notifications_required"`
}

// ParetoAnalysis captures the cost concentration curve: incidents sorted by
// descending cost with their cumulative share of total cost. The share
// sequence is non-decreasing and ends at exactly 1.
type ParetoAnalysis struct {
	TotalCost                float64   `json:"total_cost"`
	CumulativeShare          []float64 `json:"cumulative_share"`
	CriticalIncidentCount    int       `json:"critical_incident_count"`
	CriticalIncidentFraction float64   `json:"critical_incident_fraction"`
	CriticalCostCovered      float64   `json:"critical_cost_covered"`
}

// DatasetOverview holds the headline figures for the executive summary.
type DatasetOverview struct {
	TotalIncidents           int     `json:"total_incidents"`
	TotalCost                float64 `json:"total_cost"`
	TotalRecordsExposed      int64   `json:"total_records_exposed"`
	AvgCostPerIncident       float64 `json:"avg_cost_per_incident"`
	AvgDetectionDays         float64 `json:"avg_detection_days"`
	AvgResponseDays          float64 `json:"avg_response_days"`
	CostliestSystem          string  `json:"costliest_system"`
	CostliestRegion          string  `json:"costliest_region"`
	CostliestAttackType      string  `json:"costliest_attack_type"`
	MostFrequentAttackType   string  `json:"most_frequent_attack_type"`
	HighSensitivityIncidents int     `json:"high_sensitivity_incidents"`
	NotificationsRequired    int     `json:"notifications_required"`
}

// RiskWeights are the fixed component weights of the composite risk score.
// They must sum to exactly 1; the dominant mass sits on total cost and
// detection delay, reflecting financial impact and operational blindness.
type RiskWeights struct {
	Frequency      float64 `json:"frequency" mapstructure:"frequency"`
	TotalCost      float64 `json:"total_cost" mapstructure:"total_cost"`
	Sensitivity    float64 `json:"sensitivity" mapstructure:"sensitivity"`
	DetectionDelay float64 `json:"detection_delay" mapstructure:"detection_delay"`
	RecordsExposed float64 `json:"records_exposed" mapstructure:"records_exposed"`
}

// DefaultRiskWeights returns the documented production weighting.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		Frequency:      0.20,
		TotalCost:      0.30,
		Sensitivity:    0.15,
		DetectionDelay: 0.20,
		RecordsExposed: 0.15,
	}
}

// Sum returns the total of the five weights.
func (w RiskWeights) Sum() float64 {
	return w.Frequency + w.TotalCost + w.Sensitivity + w.DetectionDelay + w.RecordsExposed
}

// Validate checks that every weight is non-negative and that the weights
// sum to 1 within floating point tolerance.
func (w RiskWeights) Validate() error {
	for _, v := range []float64{w.Frequency, w.TotalCost, w.Sensitivity, w.DetectionDelay, w.RecordsExposed} {
		if v < 0 {
			return NewValidationError("risk_weights", "weights cannot be negative")
		}
	}
	const tolerance = 1e-9
	if diff := w.Sum() - 1.0; diff > tolerance || diff < -tolerance {
		return NewValidationError("risk_weights", "weights must sum to exactly 1.0")
	}
	return nil
}

// RiskComponents are the min-max normalized signals behind one composite
// score, each in [0,1]. A signal with zero range across all groups
// normalizes to 0 and contributes nothing to the ranking.
type RiskComponents struct {
	Frequency      float64 `json:"frequency"`
	TotalCost      float64 `json:"total_cost"`
	Sensitivity    float64 `json:"sensitivity"`
	DetectionDelay float64 `json:"detection_delay"`
	RecordsExposed float64 `json:"records_exposed"`
}

// RiskScore is the composite risk ranking entry for one (system, region)
// pair.
type RiskScore struct {
	System            string         `json:"system"`
	Region            string         `json:"region"`
	IncidentFrequency int            `json:"incident_frequency"`
	TotalCost         float64        `json:"total_cost"`
	AvgSensitivity    float64        `json:"avg_sensitivity"`
	AvgDetectionDays  float64        `json:"avg_detection_days"`
	TotalRecords      int64          `json:"total_records"`
	Components        RiskComponents `json:"components"`
	Score             float64        `json:"score"`
}

// GroupKey returns the stable "system/region" key used for deterministic
// ordering.
func (r RiskScore) GroupKey() string { return r.System + "/" + r.Region }

// Correlation is one Pearson correlation pair. Defined is false when either
// side has zero variance, in which case the coefficient is reported as 0.
type Correlation struct {
	Pair        string  `json:"pair"`
	Coefficient float64 `json:"coefficient"`
	Defined     bool    `json:"defined"`
}

// RegressionCoefficient is one fitted term of the delay-cost model. Dropped
// marks regressors removed from the design matrix for having zero variance.
type RegressionCoefficient struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Dropped bool    `json:"dropped"`
}

// DelayCostFit is the ordinary least squares fit of cost on detection
// delay, response delay, and records exposed. The detection coefficient is
// the marginal dollar cost per day of detection delay used by the
// delay-impact simulator.
type DelayCostFit struct {
	Coefficients              []RegressionCoefficient `json:"coefficients"`
	Intercept                 float64                 `json:"intercept"`
	RSquared                  float64                 `json:"r_squared"`
	SampleCount               int                     `json:"sample_count"`
	MarginalCostPerDay        float64                 `json:"marginal_cost_per_detection_day"`
	SimpleCostPerDetectionDay float64                 `json:"simple_cost_per_detection_day"`
	SimpleCostPerResponseDay  float64                 `json:"simple_cost_per_response_day"`
}

// Coefficient returns the fitted value for the named regressor.
func (f DelayCostFit) Coefficient(name string) (RegressionCoefficient, bool) {
	for _, c := range f.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return RegressionCoefficient{}, false
}

// FeatureWeight is one entry of a model's feature importance ranking.
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// PredictorEvaluation reports holdout performance of the cost predictor.
type PredictorEvaluation struct {
	RMSE              float64         `json:"rmse"`
	RSquared          float64         `json:"r_squared"`
	TrainCount        int             `json:"train_count"`
	HoldoutCount      int             `json:"holdout_count"`
	FeatureImportance []FeatureWeight `json:"feature_importance"`
}

// ClusterAssignment maps one incident to the behavioral cluster it belongs
// to, with its distance to the cluster centroid in standardized feature
// space.
type ClusterAssignment struct {
	IncidentID string  `json:"incident_id"`
	Cluster    int     `json:"cluster"`
	Distance   float64 `json:"distance"`
}

// ClusterProfile describes one cluster in original feature units for
// interpretation alongside its standardized centroid. Empty clusters keep
// their label with Size 0 rather than being renumbered.
type ClusterProfile struct {
	Label            int       `json:"label"`
	Size             int       `json:"size"`
	AvgCost          float64   `json:"avg_cost"`
	AvgRecords       float64   `json:"avg_records"`
	AvgSensitivity   float64   `json:"avg_sensitivity"`
	AvgDetectionDays float64   `json:"avg_detection_days"`
	AvgResponseDays  float64   `json:"avg_response_days"`
	Centroid         []float64 `json:"centroid"`
}

// ClusterAnalysis is the full clustering result for a snapshot.
type ClusterAnalysis struct {
	K           int                 `json:"k"`
	Assignments []ClusterAssignment `json:"assignments"`
	Profiles    []ClusterProfile    `json:"profiles"`
	Inertia     float64             `json:"inertia"`
	Silhouette  float64             `json:"silhouette"`
}

// SavingsProjection is the output of one delay-impact simulation scenario.
type SavingsProjection struct {
	Scenario             string  `json:"scenario"`
	IncidentCount        int     `json:"incident_count"`
	CurrentMeanDelayDays float64 `json:"current_mean_delay_days"`
	TargetDelayDays      float64 `json:"target_delay_days"`
	MarginalCostPerDay   float64 `json:"marginal_cost_per_day"`
	Conservatism         float64 `json:"conservatism"`
	ProjectedSavings     float64 `json:"projected_savings"`
}

// CounterfactualSavings re-scores the snapshot with reduced delays through
// the fitted delay-cost model and reports the cost difference.
type CounterfactualSavings struct {
	DetectionCutDays  float64 `json:"detection_cut_days"`
	ResponseCutDays   float64 `json:"response_cut_days"`
	CurrentTotalCost  float64 `json:"current_total_cost"`
	ImprovedTotalCost float64 `json:"improved_total_cost"`
	Savings           float64 `json:"savings"`
	SavingsPercent    float64 `json:"savings_percent"`
}

// Report section keys. These are the stable identifiers of the output
// contract consumed by dashboards and downstream renderers.
const (
	SectionOverview              = "overview"
	SectionCostBySystem          = "cost_by_system"
	SectionCostByRegion          = "cost_by_region"
	SectionCostByAttackType      = "cost_by_attack_type"
	SectionCostBySystemRegion    = "cost_by_system_region"
	SectionTopIncidents          = "top_incidents"
	SectionDetectionBySystem     = "detection_by_system"
	SectionAttackVectors         = "attack_vectors"
	SectionSensitivityImpact     = "sensitivity_impact"
	SectionPareto                = "pareto"
	SectionRiskScores            = "risk_scores"
	SectionCorrelations          = "correlations"
	SectionDelayCostFit          = "delay_cost_fit"
	SectionPredictorEvaluation   = "predictor_evaluation"
	SectionClusters              = "clusters"
	SectionSavingsProjections    = "savings_projections"
	SectionCounterfactualSavings = "counterfactual_savings"
)

// ExecutiveReport is the reporting structure assembled once per analysis
// run. Sections that could not be produced are absent from the payload and
// recorded in SectionErrors keyed by section name.
type ExecutiveReport struct {
	ID            uuid.UUID `json:"id"`
	RunID         uuid.UUID `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	IncidentCount int       `json:"incident_count"`

	Overview              *DatasetOverview       `json:"overview,omitempty"`
	CostBySystem          []AggregateGroup       `json:"cost_by_system,omitempty"`
	CostByRegion          []AggregateGroup       `json:"cost_by_region,omitempty"`
	CostByAttackType      []AggregateGroup       `json:"cost_by_attack_type,omitempty"`
	CostBySystemRegion    []AggregateGroup       `json:"cost_by_system_region,omitempty"`
	TopIncidents          []Incident             `json:"top_incidents,omitempty"`
	DetectionBySystem     []SystemDetectionStats `json:"detection_by_system,omitempty"`
	AttackVectors         []AttackVectorStats    `json:"attack_vectors,omitempty"`
	SensitivityImpact     []SensitivityImpact    `json:"sensitivity_impact,omitempty"`
	Pareto                *ParetoAnalysis        `json:"pareto,omitempty"`
	RiskScores            []RiskScore            `json:"risk_scores,omitempty"`
	Correlations          []Correlation          `json:"correlations,omitempty"`
	DelayCostFit          *DelayCostFit          `json:"delay_cost_fit,omitempty"`
	PredictorEvaluation   *PredictorEvaluation   `json:"predictor_evaluation,omitempty"`
	Clusters              *ClusterAnalysis       `json:"clusters,omitempty"`
	SavingsProjections    []SavingsProjection    `json:"savings_projections,omitempty"`
	CounterfactualSavings *CounterfactualSavings `json:"counterfactual_savings,omitempty"`

	SectionErrors map[string]string `json:"section_errors,omitempty"`
}

// Section returns the payload for one section key, or false when the
// section is absent from this report.
func (r *ExecutiveReport) Section(key string) (interface{}, bool) {
	switch key {
	case SectionOverview:
		return r.Overview, r.Overview != nil
	case SectionCostBySystem:
		return r.CostBySystem, r.CostBySystem != nil
	case SectionCostByRegion:
		return r.CostByRegion, r.CostByRegion != nil
	case SectionCostByAttackType:
		return r.CostByAttackType, r.CostByAttackType != nil
	case SectionCostBySystemRegion:
		return r.CostBySystemRegion, r.CostBySystemRegion != nil
	case SectionTopIncidents:
		return r.TopIncidents, r.TopIncidents != nil
	case SectionDetectionBySystem:
		return r.DetectionBySystem, r.DetectionBySystem != nil
	case SectionAttackVectors:
		return r.AttackVectors, r.AttackVectors != nil
	case SectionSensitivityImpact:
		return r.SensitivityImpact, r.SensitivityImpact != nil
	case SectionPareto:
		return r.Pareto, r.Pareto != nil
	case SectionRiskScores:
		return r.RiskScores, r.RiskScores != nil
	case SectionCorrelations:
		return r.Correlations, r.Correlations != nil
	case SectionDelayCostFit:
		return r.DelayCostFit, r.DelayCostFit != nil
	case SectionPredictorEvaluation:
		return r.PredictorEvaluation, r.PredictorEvaluation != nil
	case SectionClusters:
		return r.Clusters, r.Clusters != nil
	case SectionSavingsProjections:
		return r.SavingsProjections, r.SavingsProjections != nil
	case SectionCounterfactualSavings:
		return r.CounterfactualSavings, r.CounterfactualSavings != nil
	default:
		return nil, false
	}
}

// SectionKeys lists every section key a complete report can carry, in
// presentation order.
func SectionKeys() []string {
	return []string{
		SectionOverview,
		SectionCostBySystem,
		SectionCostByRegion,
		SectionCostByAttackType,
		SectionCostBySystemRegion,
		SectionTopIncidents,
		SectionDetectionBySystem,
		SectionAttackVectors,
		SectionSensitivityImpact,
		SectionPareto,
		SectionRiskScores,
		SectionCorrelations,
		SectionDelayCostFit,
		SectionPredictorEvaluation,
		SectionClusters,
		SectionSavingsProjections,
		SectionCounterfactualSavings,
	}
}
