package align

import (
	"fmt"

	"github.com/openbeamline/beamwalk/pkg/branch"
	"github.com/openbeamline/beamwalk/pkg/config"
	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/engine"
	"github.com/openbeamline/beamwalk/pkg/path"
	"github.com/openbeamline/beamwalk/pkg/recovery"
	"github.com/openbeamline/beamwalk/pkg/stream"
	"github.com/openbeamline/beamwalk/pkg/suspend"
	"github.com/openbeamline/beamwalk/pkg/telemetry"
)

// PVResolver resolves a process variable name to a live PV.
type PVResolver func(name string) (device.PV, error)

// Preset assembles a configured two-mirror alignment run: mirror/imager
// pairs, per-pair recovery branches, the beam-loss selector, and the suspend
// conditions the beamline config names. The i-th mirror is paired with the
// i-th imager, in beam order.
func Preset(cfg *config.Config, devices *engine.Devices, resolve PVResolver, tel *telemetry.Telemetry) ([]Pair, Options, error) {
	if len(cfg.Mirrors) != len(cfg.Imagers) {
		return nil, Options{}, engine.NewPermanentError(
			fmt.Sprintf("mirror/imager count mismatch: %d vs %d", len(cfg.Mirrors), len(cfg.Imagers)), nil).
			WithCode(engine.ErrCodeValidation)
	}

	pairs, imagers, err := buildPairs(cfg, devices)
	if err != nil {
		return nil, Options{}, err
	}

	branches := buildBranches(cfg, pairs, imagers)
	selector, err := buildSelector(cfg, imagers, tel)
	if err != nil {
		return nil, Options{}, err
	}

	registry := suspend.NewRegistry()
	if err := InstallConditions(registry, cfg, imagers, resolve); err != nil {
		return nil, Options{}, err
	}

	opts := Options{
		PlanName:  "guided_" + cfg.Beamline,
		Tolerance: cfg.Align.Tolerance,
		Averages:  cfg.Align.Averages,
		Timeout:   cfg.Align.Timeout.Std(),
		MaxWalks:  cfg.Align.MaxWalks,
		Branches:  branches,
		Selector:  selector,
		Gate:      suspend.NewGate(registry, cfg.Suspend.PollInterval.Std()),
		Telemetry: tel,
	}
	return pairs, opts, nil
}

// buildPairs resolves the configured device names against the registry.
func buildPairs(cfg *config.Config, devices *engine.Devices) ([]Pair, []device.Imager, error) {
	pairs := make([]Pair, len(cfg.Mirrors))
	imagers := make([]device.Imager, len(cfg.Imagers))
	for i := range cfg.Mirrors {
		mirror, err := devices.Actuator(cfg.Mirrors[i].Name)
		if err != nil {
			return nil, nil, err
		}
		imager, err := devices.Imager(cfg.Imagers[i].Name)
		if err != nil {
			return nil, nil, err
		}
		pairs[i] = Pair{
			Mirror:   mirror,
			Imager:   imager,
			Goal:     cfg.Imagers[i].Goal,
			Gradient: cfg.Mirrors[i].Gradient,
		}
		imagers[i] = imager
	}
	return pairs, imagers, nil
}

// buildBranches creates one recovery sweep per pair, indexed like the pairs
// so the selector's branch index addresses the lost imager directly.
func buildBranches(cfg *config.Config, pairs []Pair, imagers []device.Imager) []stream.Factory {
	if !cfg.Recovery.Enabled {
		return nil
	}
	branches := make([]stream.Factory, len(pairs))
	for i, p := range pairs {
		spec := recovery.Spec{
			Actuator:     p.Mirror,
			Signal:       p.Imager,
			Threshold:    cfg.Imagers[i].Threshold,
			Center:       cfg.Mirrors[i].Center,
			Step:         cfg.Recovery.Step,
			PrepTimeout:  cfg.Recovery.PrepTimeout.Std(),
			SweepTimeout: cfg.Recovery.SweepTimeout.Std(),
			HasStop:      cfg.Recovery.HasStop,
		}
		branches[i] = recovery.Factory(spec, imagers)
	}
	return branches
}

// buildSelector picks the branch selector: the scripted one when the config
// carries a Starlark selector, the built-in pick-recover policy otherwise.
func buildSelector(cfg *config.Config, imagers []device.Imager, tel *telemetry.Telemetry) (branch.Selector, error) {
	if !cfg.Recovery.Enabled {
		return nil, nil
	}
	if cfg.Recovery.SelectorScript != "" {
		return NewScriptSelector(cfg.Recovery.SelectorScript, imagers, tel), nil
	}
	if len(imagers) < 2 {
		return nil, engine.NewPermanentError("pick-recover selector needs two imagers", nil).
			WithCode(engine.ErrCodeValidation)
	}
	return branch.MakePickRecover(branch.PickRecoverConfig{
		First:       imagers[0],
		Second:      imagers[1],
		Floors:      [2]float64{cfg.Imagers[0].Floor, cfg.Imagers[1].Floor},
		Samples:     cfg.Recovery.Samples,
		SampleDelay: cfg.Recovery.SampleDelay.Std(),
		Enabled:     true,
	}), nil
}

// InstallConditions installs the suspend conditions the config names: the
// beam energy and rate floors, a major-severity alarm watch per alarm PV,
// and the lightpath-clear check over the configured imagers.
func InstallConditions(registry *suspend.Registry, cfg *config.Config, imagers []device.Imager, resolve PVResolver) error {
	if cfg.Suspend.EnergyPV != "" {
		pv, err := resolve(cfg.Suspend.EnergyPV)
		if err != nil {
			return err
		}
		if err := registry.Install(suspend.NewEnergyFloor(pv, cfg.Suspend.EnergyFloor)); err != nil {
			return err
		}
	}
	if cfg.Suspend.RatePV != "" {
		pv, err := resolve(cfg.Suspend.RatePV)
		if err != nil {
			return err
		}
		if err := registry.Install(suspend.NewRateFloor(pv, cfg.Suspend.RateFloor)); err != nil {
			return err
		}
	}
	for _, name := range cfg.Suspend.AlarmPVs {
		pv, err := resolve(name)
		if err != nil {
			return err
		}
		if err := registry.Install(suspend.NewPVAlarm(pv, device.SeverityMajor)); err != nil {
			return err
		}
	}

	// The beam path upstream of the last imager must be clear of everything
	// except the imagers the walk itself stages.
	if len(imagers) > 0 {
		elements := make([]path.Element, len(imagers))
		exclude := make([]path.Element, len(imagers))
		var lastZ float64
		for i, im := range imagers {
			el := path.ImagerAt(im, cfg.Imagers[i].Z)
			elements[i] = el
			exclude[i] = el
			if cfg.Imagers[i].Z > lastZ {
				lastZ = cfg.Imagers[i].Z
			}
		}
		cond := path.NewClearCondition(path.New(elements...), lastZ, exclude...)
		if err := registry.Install(cond); err != nil {
			return err
		}
	}
	return nil
}
