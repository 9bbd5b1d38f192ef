package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// MemorySource serves incidents from a fixed in-process slice. It backs
// tests, fixtures, and the demo mode of the CLI.
type MemorySource struct {
	incidents []entity.Incident
	logger    *zap.Logger
}

// NewMemorySource creates a source over the given incidents.
func NewMemorySource(incidents []entity.Incident, logger *zap.Logger) *MemorySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make([]entity.Incident, len(incidents))
	copy(copied, incidents)
	return &MemorySource{incidents: copied, logger: logger.Named("memory_source")}
}

// FetchIncidents returns the valid incidents. Rows failing validation are
// skipped and logged, mirroring how the external source adapters behave.
func (s *MemorySource) FetchIncidents(ctx context.Context) ([]entity.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]entity.Incident, 0, len(s.incidents))
	rejected := 0
	for _, inc := range s.incidents {
		if err := inc.Validate(); err != nil {
			rejected++
			s.logger.Warn("skipping invalid incident row",
				zap.String("id", inc.ID),
				zap.Error(err))
			continue
		}
		out = append(out, inc)
	}
	s.logger.Info("incident fetch complete",
		zap.Int("rows_read", len(s.incidents)),
		zap.Int("rows_rejected", rejected))
	return out, nil
}

// sampleRegions are the deployment regions of the demonstration register.
var sampleRegions = []string{"us-east1", "eu-west2", "ap-south1", "ap-northeast1", "latam-north1"}

// SampleRegister builds the deterministic demonstration dataset: 100
// incidents totaling $73.6M, with misconfiguration accounting for 68
// incidents and 72% of the cost, and a mean detection delay of 11.7 days.
// Values are spread by fixed arithmetic rather than random draws, so the
// register's aggregates can be verified by hand.
func SampleRegister() []entity.Incident {
	type block struct {
		attack string
		count  int
		total  float64
		spread float64
	}
	blocks := []block{
		{attack: "Misconfiguration", count: 68, total: 52_992_000, spread: 7_000},
		{attack: "External Hacker", count: 16, total: 11_776_000, spread: 9_000},
		{attack: "Insider Threat", count: 16, total: 8_832_000, spread: 6_500},
	}

	incidents := make([]entity.Incident, 0, 100)
	i := 0
	for _, b := range blocks {
		mean := b.total / float64(b.count)
		for pair := 0; pair < b.count/2; pair++ {
			offset := b.spread * float64(pair+1)
			for _, cost := range []float64{mean - offset, mean + offset} {
				incidents = append(incidents, sampleIncident(i, b.attack, cost))
				i++
			}
		}
	}
	return incidents
}

func sampleIncident(i int, attack string, cost float64) entity.Incident {
	// Detection delays come in pairs balanced around 11.7 days so the
	// register's mean lands there.
	detectionOffset := 0.5 + 0.08*float64(i/2)
	detection := 11.7 - detectionOffset
	if i%2 == 1 {
		detection = 11.7 + detectionOffset
	}

	sensitivity := 1 + (i*7)%5
	records := int64(500 + (i*137)%9000)
	return entity.Incident{
		ID:                   fmt.Sprintf("BR-%04d", i+1),
		System:               entity.KnownSystems[i%len(entity.KnownSystems)],
		Region:               sampleRegions[i%len(sampleRegions)],
		AttackType:           attack,
		SensitivityLevel:     sensitivity,
		RecordsExposed:       records,
		CostPerRecord:        cost / float64(records),
		Cost:                 cost,
		DetectionTimeDays:    detection,
		ResponseTimeDays:     1 + 0.5*float64(i%9),
		NotificationRequired: sensitivity >= 4,
	}
}
