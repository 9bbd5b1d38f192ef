// Package cache stores finished executive reports for serving, keyed by
// run. The HTTP layer reads from here; analysis runs write through after
// building a report.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// ErrCacheMiss reports that no report is stored under the requested key.
var ErrCacheMiss = errors.New("report cache miss")

const (
	latestReportKey = "breach:report:latest"
	runReportKey    = "breach:report:run:"
)

// RedisConfig holds connection settings for the report cache.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// DefaultRedisConfig returns settings for a local instance.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		TTL:          24 * time.Hour,
	}
}

// Validate checks the cache settings.
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return entity.NewValidationError("redis.addr", "address is required")
	}
	if c.TTL <= 0 {
		return entity.NewValidationError("redis.ttl", "ttl must be positive")
	}
	return nil
}

// RedisReportCache keeps reports in Redis with a TTL, under one key per
// run plus a latest pointer.
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisReportCache builds a cache over the configured instance. The
// constructor performs no I/O; use Health to verify connectivity.
func NewRedisReportCache(cfg RedisConfig, logger *zap.Logger) (*RedisReportCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	return &RedisReportCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.Named("report_cache"),
	}, nil
}

// StoreReport writes the report under its run key and moves the latest
// pointer to it.
func (c *RedisReportCache) StoreReport(ctx context.Context, report *entity.ExecutiveReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, runReportKey+report.RunID.String(), data, c.ttl)
	pipe.Set(ctx, latestReportKey, data, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store report")
	}

	c.logger.Debug("report cached",
		zap.String("run_id", report.RunID.String()),
		zap.Int("bytes", len(data)))
	return nil
}

// LatestReport returns the most recently stored report.
func (c *RedisReportCache) LatestReport(ctx context.Context) (*entity.ExecutiveReport, error) {
	return c.get(ctx, latestReportKey)
}

// ReportByRun returns the report for one analysis run.
func (c *RedisReportCache) ReportByRun(ctx context.Context, runID uuid.UUID) (*entity.ExecutiveReport, error) {
	return c.get(ctx, runReportKey+runID.String())
}

func (c *RedisReportCache) get(ctx context.Context, key string) (*entity.ExecutiveReport, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(ErrCacheMiss, "key %s", key)
		}
		return nil, errors.Wrap(err, "failed to read report cache")
	}

	var report entity.ExecutiveReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.Wrap(err, "failed to decode cached report")
	}
	return &report, nil
}

// Health verifies the cache responds.
func (c *RedisReportCache) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping failed")
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisReportCache) Close() error {
	return c.client.Close()
}
