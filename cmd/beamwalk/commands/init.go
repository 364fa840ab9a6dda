package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// starterConfig is the two-mirror HOMS-style topology written by init.
const starterConfig = `# Beamwalk beamline configuration

beamline: HOMS

# Steering mirrors, in beam order.
mirrors:
  - name: m1h
    center: 239.98
    low_limit: 200
    high_limit: 280
    gradient: 0.0012
  - name: m2h
    center: 102.37
    low_limit: 60
    high_limit: 140
    gradient: 0.0008

# Insertable imaging detectors, in beam order.
imagers:
  - name: y1
    z: 103.66
    goal: 480
    floor: 0.2
    threshold: 0.3
  - name: y2
    z: 375.01
    goal: 512
    floor: 0.2
    threshold: 0.3

# Beam-health conditions that pause sessions.
suspend:
  energy_pv: GDET:FEE1:241:ENRC
  energy_floor: 0.01
  rate_pv: EVNT:SYS0:1:LCLSBEAMRATE
  rate_floor: 2
  poll_interval: 500ms

# Iterative walk parameters.
align:
  tolerance: 20
  averages: 20
  timeout: 600s
  max_walks: 100

# Beam-recovery sweeps.
recovery:
  enabled: true
  step: 5
  sweep_timeout: 120s
`

func newInitCommand() *cobra.Command {
	var (
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter beamline configuration",
		Long: `Write a starter beamline configuration describing a two-mirror system:
mirrors with centers and limits, imagers with goals and signal floors,
suspend conditions, and walk/recovery parameters.

Edit the generated file to match your beamline, then check it with
'beamwalk validate'.`,
		Example: `  # Write ./beamwalk.yaml
  beamwalk init

  # Write to a custom location
  beamwalk init --config /etc/beamwalk/homs.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = "./beamwalk.yaml"
			}

			log.Info().
				Str("config", path).
				Msg("Initializing beamline config")

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Printf("✓ Created config file: %s\n\n", path)
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Edit the topology to match your beamline\n")
			fmt.Printf("  2. Check it:        beamwalk validate -c %s\n", path)
			fmt.Printf("  3. Dry-run a walk:  beamwalk align -c %s --sim\n\n", path)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
