package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/missatech/breach-analytics/domain/entity"
)

func TestKafkaConfig_Validate(t *testing.T) {
	cfg := DefaultKafkaConfig()
	require.NoError(t, cfg.Validate(), "disabled config is always valid")

	cfg.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Brokers = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultKafkaConfig()
	cfg.Enabled = true
	cfg.Topic = ""
	assert.Error(t, cfg.Validate())
}

func TestNewRunEvent(t *testing.T) {
	report := &entity.ExecutiveReport{
		ID:            uuid.New(),
		RunID:         uuid.New(),
		GeneratedAt:   time.Now().UTC(),
		IncidentCount: 100,
		Overview:      &entity.DatasetOverview{TotalCost: 73_600_000},
		SectionErrors: map[string]string{"correlations": "insufficient data"},
	}

	event := NewRunEvent(report, 1500*time.Millisecond)
	assert.Equal(t, report.RunID.String(), event.RunID)
	assert.Equal(t, report.ID.String(), event.ReportID)
	assert.Equal(t, 100, event.IncidentCount)
	assert.Equal(t, 73_600_000.0, event.TotalCost)
	assert.Equal(t, int64(1500), event.DurationMs)
	assert.Equal(t, 1, event.SectionErrors)
}

func TestNewRunEvent_NoOverview(t *testing.T) {
	report := &entity.ExecutiveReport{ID: uuid.New(), RunID: uuid.New()}
	event := NewRunEvent(report, 0)
	assert.Zero(t, event.TotalCost)
}

func TestNopRunPublisher(t *testing.T) {
	var publisher NopRunPublisher
	err := publisher.PublishRunCompleted(context.Background(), &entity.ExecutiveReport{}, time.Second)
	assert.NoError(t, err)
}
