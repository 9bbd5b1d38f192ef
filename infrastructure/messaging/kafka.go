// Package messaging announces finished analysis runs to downstream
// consumers. Publishing is fire-and-forget from the engine's point of
// view: a failed announcement is logged by the caller, never fails the
// run.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// RunEvent is the wire format published after each analysis run.
type RunEvent struct {
	RunID         string    `json:"run_id"`
	ReportID      string    `json:"report_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	IncidentCount int       `json:"incident_count"`
	TotalCost     float64   `json:"total_cost_usd"`
	DurationMs    int64     `json:"duration_ms"`
	SectionErrors int       `json:"section_errors"`
}

// NewRunEvent maps a finished report to its announcement.
func NewRunEvent(report *entity.ExecutiveReport, elapsed time.Duration) RunEvent {
	event := RunEvent{
		RunID:         report.RunID.String(),
		ReportID:      report.ID.String(),
		GeneratedAt:   report.GeneratedAt,
		IncidentCount: report.IncidentCount,
		DurationMs:    elapsed.Milliseconds(),
		SectionErrors: len(report.SectionErrors),
	}
	if report.Overview != nil {
		event.TotalCost = report.Overview.TotalCost
	}
	return event
}

// KafkaConfig holds producer settings for run announcements.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	ClientID     string        `mapstructure:"client_id"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// DefaultKafkaConfig returns a disabled producer pointed at a local
// broker.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		Topic:        "breach-analysis-runs",
		ClientID:     "breach-analytics",
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		MaxRetries:   3,
	}
}

// Validate checks producer settings. A disabled config is always valid.
func (c KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return entity.NewValidationError("kafka.brokers", "at least one broker is required")
	}
	if c.Topic == "" {
		return entity.NewValidationError("kafka.topic", "topic is required")
	}
	return nil
}

// KafkaRunPublisher writes run events to a Kafka topic.
type KafkaRunPublisher struct {
	writer   *kafka.Writer
	clientID string
	logger   *zap.Logger
}

// NewKafkaRunPublisher builds a publisher over the configured brokers.
func NewKafkaRunPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaRunPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logger.Named("run_publisher")

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  cfg.MaxRetries,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Sugar().Errorf(msg, args...)
		}),
	}

	return &KafkaRunPublisher{
		writer:   writer,
		clientID: cfg.ClientID,
		logger:   logger,
	}, nil
}

// PublishRunCompleted announces one finished run.
func (p *KafkaRunPublisher) PublishRunCompleted(ctx context.Context, report *entity.ExecutiveReport, elapsed time.Duration) error {
	event := NewRunEvent(report, elapsed)
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode run event")
	}

	message := kafka.Message{
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("analysis_run_completed")},
			{Key: "producer_id", Value: []byte(p.clientID)},
			{Key: "produced_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return errors.Wrap(err, "failed to publish run event")
	}

	p.logger.Debug("run event published",
		zap.String("run_id", event.RunID),
		zap.Int("incident_count", event.IncidentCount))
	return nil
}

// Close flushes and releases the writer.
func (p *KafkaRunPublisher) Close() error {
	return p.writer.Close()
}

// NopRunPublisher drops run events. Used when event publishing is
// disabled.
type NopRunPublisher struct{}

// PublishRunCompleted discards the event.
func (NopRunPublisher) PublishRunCompleted(context.Context, *entity.ExecutiveReport, time.Duration) error {
	return nil
}
