package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/missatech/breach-analytics/domain/entity"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a full analysis and print the executive report",
	Long: `Read the configured breach register, train the cost models, and
print the executive report. The default output is a human-readable
summary; --json emits the full report document.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full report as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}

	report, err := eng.runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("analysis run failed: %w", err)
	}

	if analyzeJSON {
		return printJSON(report)
	}
	renderSummary(report)
	return nil
}

func renderSummary(report *entity.ExecutiveReport) {
	fmt.Printf("Breach Analytics Report  (run %s)\n", report.RunID)
	fmt.Printf("Generated %s over %d incidents\n\n",
		report.GeneratedAt.Format("2006-01-02 15:04 MST"), report.IncidentCount)

	if o := report.Overview; o != nil {
		fmt.Printf("Total breach cost:    %s  (%s per incident)\n",
			money(o.TotalCost), money(o.AvgCostPerIncident))
		fmt.Printf("Records exposed:      %d\n", o.TotalRecordsExposed)
		fmt.Printf("Mean detection delay: %.1f days   mean response: %.1f days\n",
			o.AvgDetectionDays, o.AvgResponseDays)
		fmt.Printf("Costliest system:     %s   region: %s\n", o.CostliestSystem, o.CostliestRegion)
		fmt.Printf("Dominant attack type: %s (most frequent: %s)\n",
			o.CostliestAttackType, o.MostFrequentAttackType)
		fmt.Printf("Notification duty:    %d incidents\n\n", o.NotificationsRequired)
	}

	if len(report.RiskScores) > 0 {
		fmt.Println("Highest-risk groups:")
		top := report.RiskScores
		if len(top) > 3 {
			top = top[:3]
		}
		for i, rs := range top {
			fmt.Printf("  %d. %-24s score %.3f  %s across %d incidents\n",
				i+1, rs.GroupKey(), rs.Score, money(rs.TotalCost), rs.IncidentFrequency)
		}
		fmt.Println()
	}

	if fit := report.DelayCostFit; fit != nil {
		fmt.Printf("Delay-cost model:     R²=%.3f on %d incidents, %s per detection day\n",
			fit.RSquared, fit.SampleCount, money(fit.MarginalCostPerDay))
	}
	if eval := report.PredictorEvaluation; eval != nil {
		fmt.Printf("Cost predictor:       trained (holdout RMSE %s, R²=%.3f)\n",
			money(eval.RMSE), eval.RSquared)
	}
	for _, proj := range report.SavingsProjections {
		fmt.Printf("Detection at %.0f days: %s projected savings (conservatism %.0f%%)\n",
			proj.TargetDelayDays, money(proj.ProjectedSavings), proj.Conservatism*100)
	}
	if cf := report.CounterfactualSavings; cf != nil {
		fmt.Printf("Cutting detection %.0fd / response %.0fd: %s saved (%.1f%%)\n",
			cf.DetectionCutDays, cf.ResponseCutDays, money(cf.Savings), cf.SavingsPercent)
	}

	if len(report.SectionErrors) > 0 {
		fmt.Println("\nSections not produced:")
		keys := make([]string, 0, len(report.SectionErrors))
		for key := range report.SectionErrors {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("  %-24s %s\n", key, report.SectionErrors[key])
		}
	}
}
