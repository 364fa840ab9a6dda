package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openbeamline/beamwalk/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a beamline configuration file",
		Long: `Validate a beamline configuration file.

This command checks:
  - YAML/CUE syntax validity
  - Required fields and value constraints
  - Duplicate device names
  - Mirror centers within their travel limits`,
		Example: `  # Validate the default config
  beamwalk validate

  # Validate a specific file
  beamwalk validate ./homs.cue

  # Print the resolved config (with defaults applied) as JSON
  beamwalk validate --json ./homs.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(args)

			log.Info().
				Str("path", path).
				Msg("Validating configuration")

			cfg, err := config.NewLoader().Load(path)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			fmt.Printf("✓ %s is valid\n", path)
			fmt.Printf("  beamline: %s\n", cfg.Beamline)
			fmt.Printf("  mirrors:  %d\n", len(cfg.Mirrors))
			fmt.Printf("  imagers:  %d\n", len(cfg.Imagers))
			return nil
		},
	}

	return cmd
}

// resolveConfigPath picks the config path from the positional argument, the
// persistent --config flag, or the default, in that order.
func resolveConfigPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if configPath != "" {
		return configPath
	}
	return "./beamwalk.yaml"
}
