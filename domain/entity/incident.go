package entity

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Incident represents one recorded breach event. Records are immutable once
// loaded; the engine never writes back to the incident store.
type Incident struct {
	ID                   string  `json:"id" db:"id"`
	System               string  `json:"system" db:"system_name"`
	Region               string  `json:"region" db:"region"`
	AttackType           string  `json:"attack_type" db:"attack_type"`
	SensitivityLevel     int     `json:"sensitivity_level" db:"data_sensitivity_level"`
	RecordsExposed       int64   `json:"records_exposed" db:"records_exposed"`
	CostPerRecord        float64 `json:"cost_per_record_usd" db:"estimated_cost_per_record_usd"`
	Cost                 float64 `json:"total_cost_usd" db:"estimated_total_cost_usd"`
	DetectionTimeDays    float64 `json:"detection_delay_days" db:"detection_delay_days"`
	ResponseTimeDays     float64 `json:"response_time_days" db:"response_time_days"`
	NotificationRequired bool    `json:"notification_required" db:"notification_required"`
}

// KnownSystems is the closed set of business systems tracked by the breach
// register. Regions and attack types are open sets validated only for
// presence; the cost predictor enforces closed-world categories at
// inference time instead.
var KnownSystems = []string{"Billing", "HR", "Inventory", "CRM", "Support", "Analytics"}

// IsKnownSystem reports whether s is one of the tracked business systems.
func IsKnownSystem(s string) bool {
	for _, known := range KnownSystems {
		if s == known {
			return true
		}
	}
	return false
}

// MinSensitivityLevel and MaxSensitivityLevel bound the ordinal data
// sensitivity scale.
const (
	MinSensitivityLevel = 1
	MaxSensitivityLevel = 5
)

// Validate checks the structural invariants of an incident record. Sources
// are expected to filter or flag malformed rows before they reach the
// engine; Validate is the fail-fast boundary for values that cannot be
// silently coerced.
func (i Incident) Validate() error {
	if i.System == "" {
		return NewValidationError("system", "system is required")
	}
	if i.Region == "" {
		return NewValidationError("region", "region is required")
	}
	if i.AttackType == "" {
		return NewValidationError("attack_type", "attack type is required")
	}
	if i.SensitivityLevel < MinSensitivityLevel || i.SensitivityLevel > MaxSensitivityLevel {
		return NewValidationError("sensitivity_level",
			fmt.Sprintf("sensitivity level must be between %d and %d, got %d",
				MinSensitivityLevel, MaxSensitivityLevel, i.SensitivityLevel))
	}
	if i.RecordsExposed < 0 {
		return NewValidationError("records_exposed", "records exposed cannot be negative")
	}
	if err := validateFiniteNonNegative("total_cost_usd", i.Cost); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("cost_per_record_usd", i.CostPerRecord); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("detection_delay_days", i.DetectionTimeDays); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("response_time_days", i.ResponseTimeDays); err != nil {
		return err
	}
	return nil
}

func validateFiniteNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NewValidationError(field, "value must be finite")
	}
	if v < 0 {
		return NewValidationError(field, "value cannot be negative")
	}
	return nil
}

// Snapshot is the immutable data context for one analysis run. Every engine
// component receives a snapshot explicitly instead of sharing a process-wide
// data handle, so concurrent runs (and tests) never interfere.
type Snapshot struct {
	runID     uuid.UUID
	loadedAt  time.Time
	incidents []Incident
}

// NewSnapshot copies the given incidents into a fresh snapshot with a new
// run identifier. The input slice may be reused by the caller afterwards.
func NewSnapshot(incidents []Incident) *Snapshot {
	copied := make([]Incident, len(incidents))
	copy(copied, incidents)
	return &Snapshot{
		runID:     uuid.New(),
		loadedAt:  time.Now().UTC(),
		incidents: copied,
	}
}

// RunID identifies the analysis run this snapshot was loaded for.
func (s *Snapshot) RunID() uuid.UUID { return s.runID }

// LoadedAt reports when the snapshot was constructed.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of incidents in the snapshot.
func (s *Snapshot) Len() int { return len(s.incidents) }

// Incidents returns the snapshot's records in load order. The returned
// slice is shared; callers must treat it as read-only.
func (s *Snapshot) Incidents() []Incident { return s.incidents }
