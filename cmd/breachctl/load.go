package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/missatech/breach-analytics/config"
	"github.com/missatech/breach-analytics/infrastructure/repository"
	"github.com/missatech/breach-analytics/pkg/logging"
)

var loadCSVPath string

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a CSV breach register into Postgres",
	Long: `Read a CSV breach register and bulk-load it into the configured
Postgres store, creating the register table and indexes when missing.
Rows failing validation are skipped by the reader before the load
begins, so a partial file never aborts mid-transaction.`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadCSVPath, "csv", "", "path to the breach register CSV")
	loadCmd.MarkFlagRequired("csv")
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Logging.Output = "stderr"
	logger, err := logging.New(cfg.Logging, "breachctl")
	if err != nil {
		return err
	}

	ctx := context.Background()
	incidents, err := repository.NewCSVSource(loadCSVPath, logger).FetchIncidents(ctx)
	if err != nil {
		return fmt.Errorf("failed to read csv register: %w", err)
	}
	if len(incidents) == 0 {
		return fmt.Errorf("no valid incidents in %s", loadCSVPath)
	}

	db, err := repository.Connect(cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := repository.NewPostgresSource(db, cfg.Postgres, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.InsertIncidents(ctx, incidents); err != nil {
		return fmt.Errorf("register load failed: %w", err)
	}

	fmt.Printf("Loaded %d incidents into %s/%s\n",
		len(incidents), cfg.Postgres.Host, cfg.Postgres.Database)
	return nil
}
