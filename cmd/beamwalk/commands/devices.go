package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openbeamline/beamwalk/pkg/config"
)

func newDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices a beamline config names",
		Long: `List the mirrors, imagers, and process variables declared in the
beamline configuration, with their alignment parameters.`,
		Example: `  # List devices from the default config
  beamwalk devices

  # JSON output for scripting
  beamwalk devices --json -c ./homs.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(args)
			cfg, err := config.NewLoader().Load(path)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"beamline": cfg.Beamline,
					"mirrors":  cfg.Mirrors,
					"imagers":  cfg.Imagers,
					"suspend":  cfg.Suspend,
				})
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "MIRROR\tCENTER\tLOW\tHIGH\tGRADIENT\n")
			for _, m := range cfg.Mirrors {
				fmt.Fprintf(w, "%s\t%g\t%g\t%g\t%g\n", m.Name, m.Center, m.LowLimit, m.HighLimit, m.Gradient)
			}
			fmt.Fprintf(w, "\nIMAGER\tZ\tGOAL\tFLOOR\tTHRESHOLD\n")
			for _, im := range cfg.Imagers {
				fmt.Fprintf(w, "%s\t%g\t%g\t%g\t%g\n", im.Name, im.Z, im.Goal, im.Floor, im.Threshold)
			}
			if cfg.Suspend.EnergyPV != "" || cfg.Suspend.RatePV != "" || len(cfg.Suspend.AlarmPVs) > 0 {
				fmt.Fprintf(w, "\nPV\tROLE\tFLOOR\n")
				if cfg.Suspend.EnergyPV != "" {
					fmt.Fprintf(w, "%s\tenergy\t%g\n", cfg.Suspend.EnergyPV, cfg.Suspend.EnergyFloor)
				}
				if cfg.Suspend.RatePV != "" {
					fmt.Fprintf(w, "%s\trate\t%g\n", cfg.Suspend.RatePV, cfg.Suspend.RateFloor)
				}
				for _, pv := range cfg.Suspend.AlarmPVs {
					fmt.Fprintf(w, "%s\talarm\t-\n", pv)
				}
			}
			return w.Flush()
		},
	}

	return cmd
}
