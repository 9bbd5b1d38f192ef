package entity

import "fmt"

// PredictionInput carries the features of a hypothetical incident submitted
// for cost prediction. Field names mirror the incident record.
type PredictionInput struct {
	System            string  `json:"system"`
	Region            string  `json:"region"`
	AttackType        string  `json:"attack_type"`
	SensitivityLevel  int     `json:"sensitivity_level"`
	RecordsExposed    int64   `json:"records_exposed"`
	DetectionTimeDays float64 `json:"detection_delay_days"`
	ResponseTimeDays  float64 `json:"response_time_days"`
}

// Validate checks the structural invariants of a prediction request.
// Category membership is not checked here; the trained model rejects
// unseen categories with UnknownCategoryError.
func (p PredictionInput) Validate() error {
	if p.System == "" {
		return NewValidationError("system", "system is required")
	}
	if p.Region == "" {
		return NewValidationError("region", "region is required")
	}
	if p.AttackType == "" {
		return NewValidationError("attack_type", "attack type is required")
	}
	if p.SensitivityLevel < MinSensitivityLevel || p.SensitivityLevel > MaxSensitivityLevel {
		return NewValidationError("sensitivity_level",
			fmt.Sprintf("sensitivity level must be between %d and %d, got %d",
				MinSensitivityLevel, MaxSensitivityLevel, p.SensitivityLevel))
	}
	if p.RecordsExposed < 0 {
		return NewValidationError("records_exposed", "records exposed cannot be negative")
	}
	if err := validateFiniteNonNegative("detection_delay_days", p.DetectionTimeDays); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("response_time_days", p.ResponseTimeDays); err != nil {
		return err
	}
	return nil
}

// PredictionResult pairs a predicted cost with the identity of the model
// that produced it.
type PredictionResult struct {
	PredictedCost float64 `json:"predicted_cost_usd"`
	ModelName     string  `json:"model_name"`
	SchemaVersion string  `json:"schema_version"`
	RunID         string  `json:"run_id,omitempty"`
}
