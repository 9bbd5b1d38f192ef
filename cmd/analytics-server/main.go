// The analytics server loads a breach register, trains the cost models,
// and serves reports, predictions, and simulations over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/config"
	"github.com/missatech/breach-analytics/domain/service"
	"github.com/missatech/breach-analytics/infrastructure/artifact"
	"github.com/missatech/breach-analytics/infrastructure/cache"
	"github.com/missatech/breach-analytics/infrastructure/discovery"
	"github.com/missatech/breach-analytics/infrastructure/messaging"
	"github.com/missatech/breach-analytics/infrastructure/repository"
	httpapi "github.com/missatech/breach-analytics/interfaces/http"
	"github.com/missatech/breach-analytics/pkg/logging"
	"github.com/missatech/breach-analytics/pkg/metrics"
	"github.com/missatech/breach-analytics/usecase"
)

const (
	serviceName = "breach-analytics"
	version     = "1.0.0"
)

func main() {
	var (
		configPath string
		runOnStart bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (default: search ., ./config, /etc/breach-analytics)")
	flag.BoolVar(&runOnStart, "run-on-start", false, "execute an analysis run before serving")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Service.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting breach analytics engine",
		zap.String("version", version),
		zap.String("environment", cfg.Service.Environment),
		zap.String("source", cfg.Source.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Cleanup(logger)

	if err := deps.Runner.Warm(ctx); err != nil {
		logger.Warn("warm start failed, serving cold until the first run", zap.Error(err))
	}
	if runOnStart {
		if _, err := deps.Runner.Run(ctx); err != nil {
			logger.Error("initial analysis run failed", zap.Error(err))
		}
	}

	server, err := httpapi.NewServer(cfg.HTTP, deps.Runner, deps.Collector, deps.Checks, logger)
	if err != nil {
		logger.Fatal("failed to initialize http server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	var registrar *discovery.Registrar
	if cfg.Consul.Enabled {
		registrar, err = discovery.NewRegistrar(cfg.Consul, logger)
		if err != nil {
			logger.Fatal("failed to build consul registrar", zap.Error(err))
		}
		if err := registrar.Register(cfg.HTTP.Port); err != nil {
			logger.Fatal("consul registration failed", zap.Error(err))
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	if registrar != nil {
		if err := registrar.Deregister(); err != nil {
			logger.Error("consul deregistration failed", zap.Error(err))
		}
	}

	// Shutdown applies the configured drain timeout itself.
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// Dependencies holds everything the server wires at boot, with handles to
// the connections Cleanup must close.
type Dependencies struct {
	Runner    *usecase.AnalysisRunner
	Collector *metrics.Collector
	Checks    map[string]httpapi.HealthChecker

	db        *sqlx.DB
	mongoDB   *mongo.Database
	redis     *cache.RedisReportCache
	publisher *messaging.KafkaRunPublisher
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{Checks: make(map[string]httpapi.HealthChecker)}

	source, err := deps.initSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	reportCache, err := deps.initCache(cfg, logger)
	if err != nil {
		deps.Cleanup(logger)
		return nil, err
	}
	artifacts, err := deps.initArtifacts(ctx, cfg, logger)
	if err != nil {
		deps.Cleanup(logger)
		return nil, err
	}

	var publisher usecase.RunPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := messaging.NewKafkaRunPublisher(cfg.Kafka, logger)
		if err != nil {
			deps.Cleanup(logger)
			return nil, err
		}
		deps.publisher = kafkaPublisher
		publisher = kafkaPublisher
	}

	scorer, err := service.NewRiskScorer(cfg.RiskWeights, logger)
	if err != nil {
		deps.Cleanup(logger)
		return nil, err
	}
	builder := service.NewReportBuilder(
		service.NewCostAggregator(logger),
		scorer,
		service.NewCorrelationAnalyzer(logger),
		service.NewDelayCostRegressor(logger),
		service.NewDelaySimulator(logger),
		logger,
	)

	runner, err := usecase.NewAnalysisRunner(
		source,
		builder,
		reportCache,
		artifacts,
		publisher,
		cfg.Model.Forest,
		cfg.Model.Clusterer,
		cfg.Report.Params(),
		logger,
	)
	if err != nil {
		deps.Cleanup(logger)
		return nil, err
	}
	deps.Runner = runner

	if cfg.Metrics.Enabled {
		deps.Collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}
	return deps, nil
}

// initSource builds the configured breach register reader. Sources backed
// by a live store also join the readiness checks.
func (d *Dependencies) initSource(cfg *config.Config, logger *zap.Logger) (usecase.IncidentSource, error) {
	switch cfg.Source.Driver {
	case config.SourceMemory:
		logger.Info("using bundled sample register")
		return repository.NewMemorySource(repository.SampleRegister(), logger), nil

	case config.SourceCSV:
		logger.Info("reading breach register from csv", zap.String("path", cfg.Source.CSVPath))
		return repository.NewCSVSource(cfg.Source.CSVPath, logger), nil

	case config.SourcePostgres:
		db, err := repository.Connect(cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		d.db = db
		source := repository.NewPostgresSource(db, cfg.Postgres, logger)
		d.Checks["register"] = source
		return source, nil

	case config.SourceElasticsearch:
		source, err := repository.NewElasticsearchSource(cfg.Elasticsearch, logger)
		if err != nil {
			return nil, err
		}
		d.Checks["register"] = source
		return source, nil

	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
	}
}

func (d *Dependencies) initCache(cfg *config.Config, logger *zap.Logger) (usecase.ReportCache, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		redisCache, err := cache.NewRedisReportCache(cfg.Cache.Redis, logger)
		if err != nil {
			return nil, err
		}
		d.redis = redisCache
		d.Checks["report_cache"] = redisCache
		return redisCache, nil

	default:
		memoryCache := cache.NewMemoryReportCache(cfg.Cache.Capacity)
		d.Checks["report_cache"] = memoryCache
		return memoryCache, nil
	}
}

func (d *Dependencies) initArtifacts(ctx context.Context, cfg *config.Config, logger *zap.Logger) (usecase.ArtifactStore, error) {
	switch cfg.Artifacts.Store {
	case config.ArtifactsFS:
		store, err := artifact.NewFSStore(cfg.Artifacts.Dir, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.ArtifactsMongo:
		db, err := artifact.ConnectMongo(ctx, cfg.Artifacts.Mongo, logger)
		if err != nil {
			return nil, err
		}
		d.mongoDB = db
		store, err := artifact.NewMongoStore(db, cfg.Artifacts.Mongo, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		logger.Info("model artifact persistence disabled")
		return nil, nil
	}
}

// Cleanup closes every connection initDependencies opened, in reverse
// dependency order.
func (d *Dependencies) Cleanup(logger *zap.Logger) {
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			logger.Error("failed to close kafka publisher", zap.Error(err))
		}
	}
	if d.mongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.mongoDB.Client().Disconnect(ctx); err != nil {
			logger.Error("failed to disconnect mongo", zap.Error(err))
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logger.Error("failed to close redis cache", zap.Error(err))
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			logger.Error("failed to close postgres", zap.Error(err))
		}
	}
}
