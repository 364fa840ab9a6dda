package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openbeamline/beamwalk/pkg/align"
	"github.com/openbeamline/beamwalk/pkg/config"
	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/engine"
	"github.com/openbeamline/beamwalk/pkg/telemetry"
)

func newAlignCommand() *cobra.Command {
	var (
		sim         bool
		offset      float64
		timeout     time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "align",
		Short: "Run an alignment session",
		Long: `Run an alignment session over the configured mirror/imager pairs.

With --sim the beamline is simulated: each mirror starts offset from its
nominal center and each imager's centroid responds linearly to its mirror,
so the walk converges against the configured goals. Real hardware drivers
are wired in by embedding beamwalk as a library.`,
		Example: `  # Simulated alignment against the default config
  beamwalk align --sim

  # Custom config, larger initial misalignment, session JSON on stdout
  beamwalk align --sim -c ./homs.cue --offset 25 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !sim {
				return fmt.Errorf("hardware drivers are not wired into this binary, use --sim")
			}

			path := resolveConfigPath(args)
			cfg, err := config.NewLoader().Load(path)
			if err != nil {
				return err
			}
			if timeout > 0 {
				cfg.Align.Timeout = config.Duration(timeout)
			}

			log.Info().
				Str("config", path).
				Str("beamline", cfg.Beamline).
				Float64("offset", offset).
				Msg("Starting simulated alignment")

			tel, err := newTelemetry(metricsAddr)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()
			if metricsAddr != "" {
				if err := tel.StartMetricsServer(); err != nil {
					return err
				}
			}

			devices, resolve := simBeamline(cfg, offset)
			pairs, opts, err := align.Preset(cfg, devices, resolve, tel)
			if err != nil {
				return err
			}

			session, runErr := align.Run(cmd.Context(), devices, pairs, opts)

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(session); err != nil {
					return err
				}
			} else {
				printSession(session)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&sim, "sim", false, "run against a simulated beamline")
	cmd.Flags().Float64Var(&offset, "offset", 10, "initial mirror misalignment from center (sim)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "session timeout override")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("sim")

	return cmd
}

// newTelemetry builds the session telemetry stack for the CLI: console
// logging (debug when --verbose), metrics only when a listen address was
// given, tracing off.
func newTelemetry(metricsAddr string) (*telemetry.Telemetry, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.Tracing.Enabled = false
	tcfg.Metrics.Enabled = metricsAddr != ""
	tcfg.Metrics.ListenAddress = metricsAddr
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	if jsonOutput {
		// Keep stdout clean for the session JSON.
		tcfg.Logging.Output = "stderr"
	}
	return telemetry.NewTelemetry(tcfg)
}

// simBeamline builds simulated devices matching the config: each mirror
// starts offset from its center inside its limits, and each imager's
// centroid tracks its mirror linearly so the goal sits at the center.
func simBeamline(cfg *config.Config, offset float64) (*engine.Devices, align.PVResolver) {
	devices := engine.NewDevices()
	for i := range cfg.Mirrors {
		m := &cfg.Mirrors[i]
		if m.Gradient == 0 {
			m.Gradient = 1
		}

		start := m.Center + offset
		if start > m.HighLimit {
			start = m.HighLimit
		}
		if start < m.LowLimit {
			start = m.LowLimit
		}
		act := device.NewSimActuator(m.Name, start)
		act.SetLimits(m.LowLimit, m.HighLimit)
		devices.AddActuator(act)

		if i < len(cfg.Imagers) {
			imCfg := cfg.Imagers[i]
			center, gradient, goal := m.Center, m.Gradient, imCfg.Goal
			devices.AddImager(device.NewSimImager(imCfg.Name, func() (float64, bool) {
				pos, _ := act.Position(context.Background())
				return goal + (pos-center)*gradient, true
			}))
		}
	}

	pvs := map[string]*device.SimPV{}
	resolve := func(name string) (device.PV, error) {
		if pv, ok := pvs[name]; ok {
			return pv, nil
		}
		// Healthy beam: well above any configured floor, no alarms.
		pv := device.NewSimPV(name, 1e6)
		pvs[name] = pv
		return pv, nil
	}
	return devices, resolve
}

func printSession(session *engine.Session) {
	if session == nil {
		return
	}
	s := session.Summary
	fmt.Printf("\nSession %s: %s in %s\n", session.ID, session.Status, session.Duration.Round(time.Millisecond))
	fmt.Printf("  commands:    %d (%d moves, %d readings, %d checkpoints)\n",
		s.Commands, s.Moves, s.Readings, s.Checkpoints)
	fmt.Printf("  branches:    %d taken, %d failed\n", s.Branches, s.RecoveryFailures)
	fmt.Printf("  suspensions: %d (%s paused)\n", s.Suspensions, s.SuspendedFor.Round(time.Millisecond))
	if session.Cause != "" {
		fmt.Printf("  cause:       %s\n", session.Cause)
	}
}
