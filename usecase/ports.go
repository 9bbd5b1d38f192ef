// Package usecase orchestrates analysis runs: loading the register,
// training models, building the executive report, and fanning the result
// out to cache, artifact storage, and event consumers.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/infrastructure/artifact"
)

// IncidentSource loads the breach register. Implementations validate rows
// and skip malformed ones.
type IncidentSource interface {
	FetchIncidents(ctx context.Context) ([]entity.Incident, error)
}

// ReportCache stores finished reports for serving.
type ReportCache interface {
	StoreReport(ctx context.Context, report *entity.ExecutiveReport) error
	LatestReport(ctx context.Context) (*entity.ExecutiveReport, error)
	ReportByRun(ctx context.Context, runID uuid.UUID) (*entity.ExecutiveReport, error)
}

// ArtifactStore persists trained model envelopes between runs.
type ArtifactStore interface {
	Save(ctx context.Context, env artifact.Envelope) error
	Load(ctx context.Context, modelName string) (artifact.Envelope, error)
}

// RunPublisher announces finished runs to downstream consumers.
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, report *entity.ExecutiveReport, elapsed time.Duration) error
}
