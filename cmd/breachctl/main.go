// breachctl runs the analytics engine from the command line: one-shot
// analysis runs, cost predictions, and delay-impact simulations against
// the configured breach register, without standing up the HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/config"
	"github.com/missatech/breach-analytics/domain/service"
	"github.com/missatech/breach-analytics/infrastructure/artifact"
	"github.com/missatech/breach-analytics/infrastructure/cache"
	"github.com/missatech/breach-analytics/infrastructure/repository"
	"github.com/missatech/breach-analytics/pkg/logging"
	"github.com/missatech/breach-analytics/usecase"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "breachctl",
	Short:   "Breach analytics and risk modeling from the command line",
	Version: "1.0.0",
	Long: `breachctl runs the breach analytics engine as a one-shot tool.

It reads the configured breach register, trains the cost models, and
prints reports, predictions, or savings simulations. Trained models are
persisted to the configured artifact store, so a later analytics-server
boot can serve predictions without retraining.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config file (default: search ., ./config, /etc/breach-analytics)")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// engine is the slice of the server wiring a one-shot command needs:
// the configured register source, an in-process report cache, and the
// artifact store. Kafka, Redis, metrics, and Consul stay out.
type engine struct {
	cfg    *config.Config
	runner *usecase.AnalysisRunner
	logger *zap.Logger
}

func newEngine() (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// Logs go to stderr so stdout stays parseable command output.
	cfg.Logging.Output = "stderr"
	logger, err := logging.New(cfg.Logging, "breachctl")
	if err != nil {
		return nil, err
	}

	source, err := newSource(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Filesystem artifacts let a later analytics-server boot warm-start
	// from a CLI run. Mongo stays a server concern; a one-shot command
	// should not require a reachable document store.
	var artifacts usecase.ArtifactStore
	if cfg.Artifacts.Store == config.ArtifactsFS {
		store, err := artifact.NewFSStore(cfg.Artifacts.Dir, logger)
		if err != nil {
			return nil, err
		}
		artifacts = store
	}

	scorer, err := service.NewRiskScorer(cfg.RiskWeights, logger)
	if err != nil {
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
		cache.NewMemoryReportCache(cfg.Cache.Capacity),
		artifacts,
		nil,
		cfg.Model.Forest,
		cfg.Model.Clusterer,
		cfg.Report.Params(),
		logger,
	)
	if err != nil {
		return nil, err
	}
	return &engine{cfg: cfg, runner: runner, logger: logger}, nil
}

func newSource(cfg *config.Config, logger *zap.Logger) (usecase.IncidentSource, error) {
	switch cfg.Source.Driver {
	case config.SourceMemory:
		return repository.NewMemorySource(repository.SampleRegister(), logger), nil
	case config.SourceCSV:
		return repository.NewCSVSource(cfg.Source.CSVPath, logger), nil
	case config.SourcePostgres:
		db, err := repository.Connect(cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresSource(db, cfg.Postgres, logger), nil
	case config.SourceElasticsearch:
		return repository.NewElasticsearchSource(cfg.Elasticsearch, logger)
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// money renders dollar amounts at executive scale.
func money(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
