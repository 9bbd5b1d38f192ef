package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	simTargetDays   float64
	simDetectionCut float64
	simResponseCut  float64
	simConservatism float64
	simJSON         bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Model the savings from faster detection or response",
	Long: `Model the financial impact of operational improvements.

With --target, projects the savings of bringing mean detection delay
down to the target. With --detection-cut and/or --response-cut, re-scores
every incident with its delays reduced and reports the cost difference.
Simulations always execute a fresh analysis run, since they price the
current register rather than a persisted model.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Float64Var(&simTargetDays, "target", 0, "target mean detection delay in days")
	simulateCmd.Flags().Float64Var(&simDetectionCut, "detection-cut", 0, "days to cut from every detection delay")
	simulateCmd.Flags().Float64Var(&simResponseCut, "response-cut", 0, "days to cut from every response time")
	simulateCmd.Flags().Float64Var(&simConservatism, "conservatism", 0, "fraction of modeled savings to claim (default from config)")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "print the result as JSON")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simTargetDays == 0 && simDetectionCut == 0 && simResponseCut == 0 {
		return fmt.Errorf("provide --target, or --detection-cut / --response-cut")
	}
	if simTargetDays != 0 && (simDetectionCut != 0 || simResponseCut != 0) {
		return fmt.Errorf("--target and cut flags are mutually exclusive")
	}

	eng, err := newEngine()
	if err != nil {
		return err
	}

	if _, err := eng.runner.Run(context.Background()); err != nil {
		return fmt.Errorf("analysis run failed: %w", err)
	}

	if simTargetDays != 0 {
		projection, err := eng.runner.ProjectSavings(simTargetDays, simConservatism)
		if err != nil {
			return err
		}
		if simJSON {
			return printJSON(projection)
		}
		fmt.Printf("Detection at %.1f days (from %.1f): %s projected savings\n",
			projection.TargetDelayDays, projection.CurrentMeanDelayDays,
			money(projection.ProjectedSavings))
		fmt.Printf("  %s marginal cost per day, conservatism %.0f%%, %d incidents\n",
			money(projection.MarginalCostPerDay), projection.Conservatism*100,
			projection.IncidentCount)
		return nil
	}

	counterfactual, err := eng.runner.Counterfactual(simDetectionCut, simResponseCut, simConservatism)
	if err != nil {
		return err
	}
	if simJSON {
		return printJSON(counterfactual)
	}
	fmt.Printf("Cutting detection by %.1fd and response by %.1fd saves %s (%.1f%%)\n",
		counterfactual.DetectionCutDays, counterfactual.ResponseCutDays,
		money(counterfactual.Savings), counterfactual.SavingsPercent)
	fmt.Printf("  modeled register cost %s -> %s\n",
		money(counterfactual.CurrentTotalCost), money(counterfactual.ImprovedTotalCost))
	return nil
}
