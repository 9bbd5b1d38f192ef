package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/missatech/breach-analytics/domain/entity"
)

var (
	predictInput entity.PredictionInput
	predictJSON  bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the total cost of a hypothetical incident",
	Long: `Predict the total cost of a breach with the given profile.

A cost predictor persisted by an earlier run is reused when the artifact
store has one; otherwise a fresh analysis run trains it first.`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictInput.System, "system", "", "affected system (e.g. Billing)")
	predictCmd.Flags().StringVar(&predictInput.Region, "region", "", "region code (e.g. eu-west2)")
	predictCmd.Flags().StringVar(&predictInput.AttackType, "attack", "", "attack type (e.g. Misconfiguration)")
	predictCmd.Flags().IntVar(&predictInput.SensitivityLevel, "sensitivity", 3, "data sensitivity level 1-5")
	predictCmd.Flags().Int64Var(&predictInput.RecordsExposed, "records", 0, "records exposed")
	predictCmd.Flags().Float64Var(&predictInput.DetectionTimeDays, "detection-days", 0, "days until detection")
	predictCmd.Flags().Float64Var(&predictInput.ResponseTimeDays, "response-days", 0, "days until response")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print the result as JSON")

	predictCmd.MarkFlagRequired("system")
	predictCmd.MarkFlagRequired("region")
	predictCmd.MarkFlagRequired("attack")
}

func runPredict(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := eng.runner.Warm(ctx); err != nil {
		return fmt.Errorf("failed to load persisted model: %w", err)
	}
	if !eng.runner.Ready() {
		if _, err := eng.runner.Run(ctx); err != nil {
			return fmt.Errorf("training run failed: %w", err)
		}
	}

	result, err := eng.runner.PredictCost(predictInput)
	if err != nil {
		return err
	}

	if predictJSON {
		return printJSON(result)
	}
	fmt.Printf("Predicted breach cost: %s\n", money(result.PredictedCost))
	fmt.Printf("  %s %s via %s, sensitivity %d, %d records, %.0fd detect / %.0fd respond\n",
		predictInput.System, predictInput.Region, predictInput.AttackType,
		predictInput.SensitivityLevel, predictInput.RecordsExposed,
		predictInput.DetectionTimeDays, predictInput.ResponseTimeDays)
	fmt.Printf("  model %s %s (run %s)\n", result.ModelName, result.SchemaVersion, result.RunID)
	return nil
}
