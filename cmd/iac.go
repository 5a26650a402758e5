package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/northcutted/dock-lens/pkg/console"
	"github.com/northcutted/dock-lens/pkg/runner"
)

var (
	iacRecursive bool
	iacThreshold string
)

var iacCmd = &cobra.Command{
	Use:   "iac PATH",
	Short: "Scan infrastructure-as-code files for misconfigurations",
	Example: `  dock-lens iac ./deploy --recursive
  dock-lens iac ./main.tf --severity-threshold medium`,
	Args: cobra.ExactArgs(1),
	RunE: runIaC,
}

func init() {
	iacCmd.Flags().BoolVar(&iacRecursive, "recursive", false, "Scan subdirectories too")
	iacCmd.Flags().StringVar(&iacThreshold, "severity-threshold", runner.ThresholdNever, "Lowest severity that fails the scan (never, low, medium, high)")
}

func runIaC(cmd *cobra.Command, args []string) error {
	thresholds := []string{runner.ThresholdNever, runner.ThresholdLow, runner.ThresholdMedium, runner.ThresholdHigh}
	if !slices.Contains(thresholds, iacThreshold) {
		return fmt.Errorf("invalid severity threshold %q, expected one of %v", iacThreshold, thresholds)
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	stopMetrics, err := serveMetrics(env)
	if err != nil {
		return err
	}
	defer stopMetrics()

	diags, err := newIaCScanner(env, iacRecursive, iacThreshold).Scan(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, console.RenderDiagnostics(diags))
	return nil
}
