package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beamwalk",
		Short: "Beamwalk - Beamline Alignment Engine",
		Long: `Beamwalk drives automated mirror alignment on FEL beamlines: it walks
steering mirrors until beam centroids hit their goals on imaging detectors,
recovering automatically when the beam is lost and pausing when beam
conditions degrade.

Features:
  - Lazy command-stream plans with checkpoint-synchronized branching
  - Threshold-sweep beam recovery with per-imager selectors
  - Global suspension on beam energy, rate, and alarm conditions
  - Typed beamline topology via CUE or YAML
  - Scripted branch selectors via Starlark`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "beamline config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDevicesCommand())
	rootCmd.AddCommand(newAlignCommand())

	return rootCmd
}
