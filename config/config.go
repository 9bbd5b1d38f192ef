// Package config loads the engine configuration from YAML files and
// environment variables layered over compiled-in defaults. Adapter
// packages own their config types and validation; this package composes
// them into one document and selects which adapters a deployment uses.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/domain/service"
	"github.com/missatech/breach-analytics/infrastructure/artifact"
	"github.com/missatech/breach-analytics/infrastructure/cache"
	"github.com/missatech/breach-analytics/infrastructure/discovery"
	"github.com/missatech/breach-analytics/infrastructure/messaging"
	"github.com/missatech/breach-analytics/infrastructure/prediction"
	"github.com/missatech/breach-analytics/infrastructure/repository"
	httpapi "github.com/missatech/breach-analytics/interfaces/http"
	"github.com/missatech/breach-analytics/pkg/logging"
)

// Source drivers accepted by SourceConfig.Driver.
const (
	SourceMemory        = "memory"
	SourceCSV           = "csv"
	SourcePostgres      = "postgres"
	SourceElasticsearch = "elasticsearch"
)

// Cache backends accepted by CacheConfig.Backend.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Artifact stores accepted by ArtifactsConfig.Store.
const (
	ArtifactsFS    = "fs"
	ArtifactsMongo = "mongo"
	ArtifactsNone  = "none"
)

// Config is the complete engine configuration.
type Config struct {
	Service       ServiceConfig                   `mapstructure:"service"`
	Logging       logging.Config                  `mapstructure:"logging"`
	HTTP          httpapi.Config                  `mapstructure:"http"`
	Source        SourceConfig                    `mapstructure:"source"`
	Postgres      repository.PostgresConfig       `mapstructure:"postgres"`
	Elasticsearch repository.ElasticsearchConfig  `mapstructure:"elasticsearch"`
	Cache         CacheConfig                     `mapstructure:"cache"`
	Artifacts     ArtifactsConfig                 `mapstructure:"artifacts"`
	Kafka         messaging.KafkaConfig           `mapstructure:"kafka"`
	Model         ModelConfig                     `mapstructure:"model"`
	Report        ReportConfig                    `mapstructure:"report"`
	RiskWeights   entity.RiskWeights              `mapstructure:"risk_weights"`
	Metrics       MetricsConfig                   `mapstructure:"metrics"`
	Consul        discovery.Config                `mapstructure:"consul"`
}

// ServiceConfig identifies the deployment.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig selects where the breach register is read from. The memory
// driver serves the bundled sample register and needs no further settings;
// csv reads a local file; postgres and elasticsearch use their sections.
type SourceConfig struct {
	Driver  string `mapstructure:"driver"`
	CSVPath string `mapstructure:"csv_path"`
}

// CacheConfig selects the report cache backend. Capacity bounds the
// in-memory backend only; the redis backend evicts by TTL.
type CacheConfig struct {
	Backend  string            `mapstructure:"backend"`
	Capacity int               `mapstructure:"capacity"`
	Redis    cache.RedisConfig `mapstructure:"redis"`
}

// ArtifactsConfig selects where trained model artifacts persist. The none
// store disables persistence; the engine then starts cold on every boot.
type ArtifactsConfig struct {
	Store string               `mapstructure:"store"`
	Dir   string               `mapstructure:"dir"`
	Mongo artifact.MongoConfig `mapstructure:"mongo"`
}

// ModelConfig carries the training settings for both models.
type ModelConfig struct {
	Forest    prediction.ForestConfig    `mapstructure:"forest"`
	Clusterer prediction.ClustererConfig `mapstructure:"clusterer"`
}

// ReportConfig shapes the executive report and its simulation sections.
type ReportConfig struct {
	TopIncidents          int       `mapstructure:"top_incidents"`
	DetectionTargets      []float64 `mapstructure:"detection_targets"`
	DetectionConservatism float64   `mapstructure:"detection_conservatism"`
	DetectionCutDays      float64   `mapstructure:"detection_cut_days"`
	ResponseCutDays       float64   `mapstructure:"response_cut_days"`
	CutConservatism       float64   `mapstructure:"cut_conservatism"`
}

// Params converts the section into the report builder's parameter set.
func (c ReportConfig) Params() service.ReportParams {
	return service.ReportParams{
		TopIncidents:          c.TopIncidents,
		DetectionTargets:      c.DetectionTargets,
		DetectionConservatism: c.DetectionConservatism,
		DetectionCutDays:      c.DetectionCutDays,
		ResponseCutDays:       c.ResponseCutDays,
		CutConservatism:       c.CutConservatism,
	}
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Default returns the configuration the engine runs with when no file or
// environment override is present: sample register in memory, in-memory
// report cache, filesystem artifacts, metrics on, Kafka and Consul off.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			Name:        "breach-analytics",
			Environment: "development",
		},
		Logging:       logging.DefaultConfig(),
		HTTP:          httpapi.DefaultConfig(),
		Source:        SourceConfig{Driver: SourceMemory},
		Postgres:      repository.DefaultPostgresConfig(),
		Elasticsearch: repository.DefaultElasticsearchConfig(),
		Cache: CacheConfig{
			Backend:  CacheMemory,
			Capacity: 16,
			Redis:    cache.DefaultRedisConfig(),
		},
		Artifacts: ArtifactsConfig{
			Store: ArtifactsFS,
			Dir:   "data/artifacts",
			Mongo: artifact.DefaultMongoConfig(),
		},
		Kafka: messaging.DefaultKafkaConfig(),
		Model: ModelConfig{
			Forest:    prediction.DefaultForestConfig(),
			Clusterer: prediction.DefaultClustererConfig(),
		},
		Report: ReportConfig{
			TopIncidents:          10,
			DetectionTargets:      []float64{4},
			DetectionConservatism: 0.10,
			DetectionCutDays:      7,
			ResponseCutDays:       2,
			CutConservatism:       0.05,
		},
		RiskWeights: entity.DefaultRiskWeights(),
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "breach_analytics",
		},
		Consul: discovery.DefaultConfig(),
	}
}

// Load reads the configuration. With an empty path it searches the usual
// locations for a config.yaml and runs on defaults when none exists; an
// explicit path must exist. Environment variables override file values
// under the BREACH_ANALYTICS prefix with dots replaced by underscores,
// so http.port becomes BREACH_ANALYTICS_HTTP_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/breach-analytics")
	}

	v.SetEnvPrefix("BREACH_ANALYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key with its default so environment
// overrides resolve during Unmarshal even without a config file.
func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service.name", "breach-analytics")
	v.SetDefault("service.environment", "development")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.development", false)

	// HTTP defaults
	v.SetDefault("http.host", "")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.auth.enabled", false)
	v.SetDefault("http.auth.secret", "")
	v.SetDefault("http.auth.issuer", "")
	v.SetDefault("http.rate_limit.enabled", false)
	v.SetDefault("http.rate_limit.requests_per_second", 20)
	v.SetDefault("http.rate_limit.burst", 40)

	// Source defaults
	v.SetDefault("source.driver", SourceMemory)
	v.SetDefault("source.csv_path", "")

	// Postgres defaults
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "breach")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "breach_analytics")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 2)
	v.SetDefault("postgres.conn_max_lifetime", "30m")
	v.SetDefault("postgres.connect_timeout", "5s")
	v.SetDefault("postgres.query_timeout", "15s")
	v.SetDefault("postgres.breaker_failure_threshold", 5)
	v.SetDefault("postgres.breaker_interval", "1m")
	v.SetDefault("postgres.breaker_timeout", "30s")

	// Elasticsearch defaults
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.api_key", "")
	v.SetDefault("elasticsearch.index", "breach-incidents")
	v.SetDefault("elasticsearch.page_size", 1000)
	v.SetDefault("elasticsearch.max_retries", 3)
	v.SetDefault("elasticsearch.request_timeout", "30s")

	// Cache defaults
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.capacity", 16)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.redis.pool_size", 10)
	v.SetDefault("cache.redis.min_idle_conns", 2)
	v.SetDefault("cache.redis.ttl", "24h")

	// Artifact defaults
	v.SetDefault("artifacts.store", ArtifactsFS)
	v.SetDefault("artifacts.dir", "data/artifacts")
	v.SetDefault("artifacts.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("artifacts.mongo.database", "breach_analytics")
	v.SetDefault("artifacts.mongo.collection", "model_artifacts")
	v.SetDefault("artifacts.mongo.connect_timeout", "5s")
	v.SetDefault("artifacts.mongo.query_timeout", "15s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "breach-analysis-runs")
	v.SetDefault("kafka.client_id", "breach-analytics")
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.max_retries", 3)

	// Model defaults
	v.SetDefault("model.forest.trees", 100)
	v.SetDefault("model.forest.seed", 42)
	v.SetDefault("model.forest.max_depth", 0)
	v.SetDefault("model.forest.min_leaf", 0)
	v.SetDefault("model.forest.max_features", 0)
	v.SetDefault("model.forest.holdout_fraction", 0.2)
	v.SetDefault("model.forest.parallelism", 0)
	v.SetDefault("model.clusterer.k", 4)
	v.SetDefault("model.clusterer.seed", 42)
	v.SetDefault("model.clusterer.restarts", 10)
	v.SetDefault("model.clusterer.max_iterations", 300)

	// Report defaults
	v.SetDefault("report.top_incidents", 10)
	v.SetDefault("report.detection_targets", []float64{4})
	v.SetDefault("report.detection_conservatism", 0.10)
	v.SetDefault("report.detection_cut_days", 7)
	v.SetDefault("report.response_cut_days", 2)
	v.SetDefault("report.cut_conservatism", 0.05)

	// Risk weight defaults
	v.SetDefault("risk_weights.frequency", 0.20)
	v.SetDefault("risk_weights.total_cost", 0.30)
	v.SetDefault("risk_weights.sensitivity", 0.15)
	v.SetDefault("risk_weights.detection_delay", 0.20)
	v.SetDefault("risk_weights.records_exposed", 0.15)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "breach_analytics")

	// Consul defaults
	v.SetDefault("consul.enabled", false)
	v.SetDefault("consul.address", "localhost:8500")
	v.SetDefault("consul.service_name", "breach-analytics")
	v.SetDefault("consul.service_id", "")
	v.SetDefault("consul.tags", []string{"analytics", "api"})
	v.SetDefault("consul.advertise_host", "localhost")
	v.SetDefault("consul.check_interval", "15s")
	v.SetDefault("consul.check_timeout", "3s")
	v.SetDefault("consul.deregister_after", "1m")
}

// Validate checks the whole document. Sections for unselected backends
// are still validated so a deployment can switch drivers without
// discovering a stale section at the worst time.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return entity.NewValidationError("service.name", "service name is required")
	}
	switch c.Service.Environment {
	case "development", "staging", "production":
	default:
		return entity.NewValidationError("service.environment",
			"must be one of development, staging, production")
	}

	if err := c.HTTP.Validate(); err != nil {
		return err
	}

	switch c.Source.Driver {
	case SourceMemory, SourcePostgres, SourceElasticsearch:
	case SourceCSV:
		if c.Source.CSVPath == "" {
			return entity.NewValidationError("source.csv_path", "required for the csv driver")
		}
	default:
		return entity.NewValidationError("source.driver",
			"must be one of memory, csv, postgres, elasticsearch")
	}
	if err := c.Postgres.Validate(); err != nil {
		return err
	}
	if err := c.Elasticsearch.Validate(); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case CacheMemory:
		if c.Cache.Capacity < 1 {
			return entity.NewValidationError("cache.capacity", "must be at least 1")
		}
	case CacheRedis:
	default:
		return entity.NewValidationError("cache.backend", "must be memory or redis")
	}
	if err := c.Cache.Redis.Validate(); err != nil {
		return err
	}

	switch c.Artifacts.Store {
	case ArtifactsFS:
		if c.Artifacts.Dir == "" {
			return entity.NewValidationError("artifacts.dir", "required for the fs store")
		}
	case ArtifactsMongo, ArtifactsNone:
	default:
		return entity.NewValidationError("artifacts.store", "must be fs, mongo, or none")
	}
	if err := c.Artifacts.Mongo.Validate(); err != nil {
		return err
	}

	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	if err := c.Model.Forest.Validate(); err != nil {
		return err
	}
	if err := c.Model.Clusterer.Validate(); err != nil {
		return err
	}
	if err := c.validateReport(); err != nil {
		return err
	}
	if err := c.RiskWeights.Validate(); err != nil {
		return err
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return entity.NewValidationError("metrics.namespace", "required when metrics are enabled")
	}
	return c.Consul.Validate()
}

func (c *Config) validateReport() error {
	r := c.Report
	if r.TopIncidents < 1 {
		return entity.NewValidationError("report.top_incidents", "must be at least 1")
	}
	if len(r.DetectionTargets) == 0 {
		return entity.NewValidationError("report.detection_targets", "at least one target is required")
	}
	for _, target := range r.DetectionTargets {
		if target <= 0 {
			return entity.NewValidationError("report.detection_targets", "targets must be positive")
		}
	}
	if r.DetectionConservatism <= 0 || r.DetectionConservatism > 1 {
		return entity.NewValidationError("report.detection_conservatism", "must be in (0, 1]")
	}
	if r.CutConservatism <= 0 || r.CutConservatism > 1 {
		return entity.NewValidationError("report.cut_conservatism", "must be in (0, 1]")
	}
	if r.DetectionCutDays < 0 || r.ResponseCutDays < 0 {
		return entity.NewValidationError("report.detection_cut_days", "cut days must be non-negative")
	}
	if r.DetectionCutDays == 0 && r.ResponseCutDays == 0 {
		return entity.NewValidationError("report.detection_cut_days",
			"at least one counterfactual cut must be positive")
	}
	return nil
}

