package branch

import (
	"context"
	"math"
	"time"

	"github.com/openbeamline/beamwalk/pkg/device"
)

// PickRecoverConfig parameterizes the two-imager recovery selector.
type PickRecoverConfig struct {
	// First and Second are the candidate imagers, in static priority
	// order. If both report presence, only First is evaluated.
	First  device.Imager
	Second device.Imager

	// Floors are the per-imager beam-present floors, indexed like the
	// imagers.
	Floors [2]float64

	// Samples is how many back-to-back reads feed the recent-maximum
	// check. Defaults to 25.
	Samples int

	// SampleDelay is the pause between samples. The default of zero takes
	// samples back-to-back so transient signal loss is not smoothed over.
	SampleDelay time.Duration

	// Enabled gates the whole policy. A disabled selector always reports
	// no-branch.
	Enabled bool
}

// MakePickRecover builds the default branch selector: whichever imager is
// currently inserted is sampled Samples times without delay; if the maximum
// observed signal stays below that imager's floor, the beam is considered
// lost on it and the matching recovery branch (0 for First, 1 for Second) is
// selected. Reads that report no signal count as no beam. Read errors and
// unknown insertion states resolve to no-branch.
func MakePickRecover(cfg PickRecoverConfig) Selector {
	samples := cfg.Samples
	if samples <= 0 {
		samples = 25
	}

	sampleMax := func(ctx context.Context, im device.Imager) float64 {
		max := math.Inf(-1)
		for i := 0; i < samples; i++ {
			if cfg.SampleDelay > 0 && i > 0 {
				select {
				case <-time.After(cfg.SampleDelay):
				case <-ctx.Done():
					return max
				}
			}
			v, ok, err := im.Read(ctx)
			if err != nil || !ok {
				continue
			}
			if v > max {
				max = v
			}
		}
		return max
	}

	return func(ctx context.Context) (int, bool) {
		if !cfg.Enabled {
			return 0, false
		}

		if state, err := cfg.First.State(ctx); err == nil && state == device.ImagerIn {
			if sampleMax(ctx, cfg.First) < cfg.Floors[0] {
				return 0, true
			}
			return 0, false
		}
		if state, err := cfg.Second.State(ctx); err == nil && state == device.ImagerIn {
			if sampleMax(ctx, cfg.Second) < cfg.Floors[1] {
				return 1, true
			}
			return 0, false
		}
		return 0, false
	}
}
