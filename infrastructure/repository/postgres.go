package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// incidentTable is the breach register table. Column names follow the
// original CSV export, so the same schema serves both the loader and the
// analytics queries.
const incidentTable = "breach_incidents"

// PostgresConfig holds connection and resilience settings for the breach
// register database.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`

	BreakerFailureThreshold uint32        `mapstructure:"breaker_failure_threshold"`
	BreakerInterval         time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout          time.Duration `mapstructure:"breaker_timeout"`
}

// DefaultPostgresConfig returns settings suitable for a local instance.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:                    "localhost",
		Port:                    5432,
		User:                    "breach",
		Database:                "breach_analytics",
		SSLMode:                 "disable",
		MaxOpenConns:            10,
		MaxIdleConns:            2,
		ConnMaxLifetime:         30 * time.Minute,
		ConnectTimeout:          5 * time.Second,
		QueryTimeout:            15 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerInterval:         time.Minute,
		BreakerTimeout:          30 * time.Second,
	}
}

// DSN renders the config as a lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Validate checks the connection settings.
func (c PostgresConfig) Validate() error {
	if c.Host == "" {
		return entity.NewValidationError("postgres.host", "host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return entity.NewValidationError("postgres.port", "port must be in 1..65535")
	}
	if c.Database == "" {
		return entity.NewValidationError("postgres.database", "database name is required")
	}
	if c.QueryTimeout <= 0 {
		return entity.NewValidationError("postgres.query_timeout", "query timeout must be positive")
	}
	return nil
}

// Connect opens a pooled connection and verifies it with a ping.
func Connect(cfg PostgresConfig, logger *zap.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("postgres connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int("max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// PostgresSource reads the breach register from PostgreSQL. Reads run
// behind a circuit breaker so a struggling database degrades analysis runs
// fast instead of piling up blocked queries.
type PostgresSource struct {
	db      *sqlx.DB
	cfg     PostgresConfig
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewPostgresSource wraps an established connection pool.
func NewPostgresSource(db *sqlx.DB, cfg PostgresConfig, logger *zap.Logger) *PostgresSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("postgres_source")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "postgres-incident-source",
		Interval: cfg.BreakerInterval,
		Timeout:  cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &PostgresSource{db: db, cfg: cfg, breaker: breaker, logger: logger}
}

// incidentRow mirrors one register row with nullable columns, so partially
// populated rows can be rejected individually instead of failing the fetch.
type incidentRow struct {
	ID                   sql.NullString  `db:"id"`
	System               sql.NullString  `db:"system_name"`
	Region               sql.NullString  `db:"region"`
	AttackType           sql.NullString  `db:"attack_type"`
	SensitivityLevel     sql.NullInt64   `db:"data_sensitivity_level"`
	RecordsExposed       sql.NullInt64   `db:"records_exposed"`
	CostPerRecord        sql.NullFloat64 `db:"estimated_cost_per_record_usd"`
	Cost                 sql.NullFloat64 `db:"estimated_total_cost_usd"`
	DetectionTimeDays    sql.NullFloat64 `db:"detection_delay_days"`
	ResponseTimeDays     sql.NullFloat64 `db:"response_time_days"`
	NotificationRequired sql.NullBool    `db:"notification_required"`
}

func (r incidentRow) toIncident() (entity.Incident, error) {
	inc := entity.Incident{
		ID:                   r.ID.String,
		System:               r.System.String,
		Region:               r.Region.String,
		AttackType:           r.AttackType.String,
		SensitivityLevel:     int(r.SensitivityLevel.Int64),
		RecordsExposed:       r.RecordsExposed.Int64,
		CostPerRecord:        r.CostPerRecord.Float64,
		Cost:                 r.Cost.Float64,
		DetectionTimeDays:    r.DetectionTimeDays.Float64,
		ResponseTimeDays:     r.ResponseTimeDays.Float64,
		NotificationRequired: r.NotificationRequired.Bool,
	}
	if err := inc.Validate(); err != nil {
		return entity.Incident{}, err
	}
	return inc, nil
}

// FetchIncidents loads the full register in load order. Rows failing
// validation are skipped and logged.
func (s *PostgresSource) FetchIncidents(ctx context.Context) ([]entity.Incident, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	query := `
		SELECT id, system_name, region, attack_type, data_sensitivity_level,
		       records_exposed, estimated_cost_per_record_usd, estimated_total_cost_usd,
		       detection_delay_days, response_time_days, notification_required
		FROM ` + incidentTable + `
		ORDER BY id`

	result, err := s.breaker.Execute(func() (interface{}, error) {
		var rows []incidentRow
		if err := s.db.SelectContext(ctx, &rows, query); err != nil {
			return nil, fmt.Errorf("failed to query breach register: %w", err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	rows := result.([]incidentRow)
	incidents := make([]entity.Incident, 0, len(rows))
	rejected := 0
	for _, row := range rows {
		inc, err := row.toIncident()
		if err != nil {
			rejected++
			s.logger.Warn("skipping invalid incident row",
				zap.String("id", row.ID.String),
				zap.Error(err))
			continue
		}
		incidents = append(incidents, inc)
	}

	s.logger.Info("incident fetch complete",
		zap.Int("rows_read", len(rows)),
		zap.Int("rows_rejected", rejected))
	return incidents, nil
}

// InsertIncidents bulk-loads incidents into the register with COPY. Used by
// the CSV import path; rows are validated before the transaction starts.
func (s *PostgresSource) InsertIncidents(ctx context.Context, incidents []entity.Incident) error {
	for _, inc := range incidents {
		if err := inc.Validate(); err != nil {
			return fmt.Errorf("incident %s failed validation: %w", inc.ID, err)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, pq.CopyIn(incidentTable,
		"id", "system_name", "region", "attack_type", "data_sensitivity_level",
		"records_exposed", "estimated_cost_per_record_usd", "estimated_total_cost_usd",
		"detection_delay_days", "response_time_days", "notification_required"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, inc := range incidents {
		if _, err := stmt.ExecContext(ctx,
			inc.ID, inc.System, inc.Region, inc.AttackType, inc.SensitivityLevel,
			inc.RecordsExposed, inc.CostPerRecord, inc.Cost,
			inc.DetectionTimeDays, inc.ResponseTimeDays, inc.NotificationRequired); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to buffer incident %s: %w", inc.ID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}

	s.logger.Info("incident load complete", zap.Int("rows_written", len(incidents)))
	return nil
}

// EnsureSchema creates the register table and its query indexes when they
// do not exist yet.
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + incidentTable + ` (
			id TEXT PRIMARY KEY,
			system_name TEXT NOT NULL,
			region TEXT NOT NULL,
			attack_type TEXT NOT NULL,
			data_sensitivity_level INTEGER NOT NULL,
			records_exposed BIGINT NOT NULL,
			estimated_cost_per_record_usd DOUBLE PRECISION NOT NULL,
			estimated_total_cost_usd DOUBLE PRECISION NOT NULL,
			detection_delay_days DOUBLE PRECISION NOT NULL,
			response_time_days DOUBLE PRECISION NOT NULL,
			notification_required BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_system ON ` + incidentTable + `(system_name)`,
		`CREATE INDEX IF NOT EXISTS idx_region ON ` + incidentTable + `(region)`,
		`CREATE INDEX IF NOT EXISTS idx_attack ON ` + incidentTable + `(attack_type)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure register schema: %w", err)
		}
	}
	return nil
}

// Health verifies connectivity and the presence of the register table.
func (s *PostgresSource) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres connectivity check failed: %w", err)
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`
	if err := s.db.QueryRowContext(ctx, query, incidentTable).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check register table: %w", err)
	}
	if !exists {
		return fmt.Errorf("register table %s does not exist", incidentTable)
	}
	return nil
}
