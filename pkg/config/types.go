package config

import (
	"time"
)

// Config is the beamline topology and alignment configuration. It names the
// devices an alignment session drives, the process variables that gate it,
// and the tunable parameters of the walk and recovery procedures.
type Config struct {
	// Beamline is the facility identifier, used in telemetry.
	Beamline string `json:"beamline" yaml:"beamline" validate:"required"`

	// Mirrors are the steering actuators, in beam order.
	Mirrors []MirrorConfig `json:"mirrors" yaml:"mirrors" validate:"required,min=1,dive"`

	// Imagers are the insertable imaging detectors, in beam order.
	Imagers []ImagerConfig `json:"imagers" yaml:"imagers" validate:"required,min=1,dive"`

	// Suspend configures the beam-health conditions that pause sessions.
	Suspend SuspendConfig `json:"suspend" yaml:"suspend"`

	// Align configures the iterative walk.
	Align AlignConfig `json:"align" yaml:"align"`

	// Recovery configures the beam-recovery branches.
	Recovery RecoveryConfig `json:"recovery" yaml:"recovery"`
}

// MirrorConfig describes one steering mirror's pitch axis.
type MirrorConfig struct {
	// Name is the device name, e.g. "m1h".
	Name string `json:"name" yaml:"name" validate:"required"`

	// Center is the nominal pitch position recovery sweeps walk toward.
	Center float64 `json:"center" yaml:"center"`

	// LowLimit and HighLimit bound commanded moves.
	LowLimit  float64 `json:"low_limit" yaml:"low_limit"`
	HighLimit float64 `json:"high_limit" yaml:"high_limit" validate:"gtefield=LowLimit"`

	// Gradient is the approximate beam-response slope used to seed the
	// walk's first correction.
	Gradient float64 `json:"gradient,omitempty" yaml:"gradient,omitempty"`
}

// ImagerConfig describes one insertable imaging detector.
type ImagerConfig struct {
	// Name is the device name, e.g. "y1".
	Name string `json:"name" yaml:"name" validate:"required"`

	// Z is the longitudinal position along the beamline in meters.
	Z float64 `json:"z" yaml:"z"`

	// Goal is the target centroid pixel on this imager.
	Goal float64 `json:"goal" yaml:"goal"`

	// Floor is the minimum healthy signal; readings below it mark the
	// beam as lost on this imager.
	Floor float64 `json:"floor" yaml:"floor" validate:"gte=0"`

	// Threshold is the signal level recovery sweeps must cross.
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0"`
}

// SuspendConfig names the beam-health PVs and their floors.
type SuspendConfig struct {
	// EnergyPV is the pulse energy gas detector PV.
	EnergyPV string `json:"energy_pv" yaml:"energy_pv"`

	// EnergyFloor is the minimum pulse energy in mJ.
	EnergyFloor float64 `json:"energy_floor" yaml:"energy_floor" validate:"gte=0"`

	// RatePV is the beam repetition rate PV.
	RatePV string `json:"rate_pv" yaml:"rate_pv"`

	// RateFloor is the minimum repetition rate in Hz.
	RateFloor float64 `json:"rate_floor" yaml:"rate_floor" validate:"gte=0"`

	// AlarmPVs are suspended on at MAJOR severity or worse.
	AlarmPVs []string `json:"alarm_pvs,omitempty" yaml:"alarm_pvs,omitempty"`

	// PollInterval is how often a paused session re-checks conditions.
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`
}

// AlignConfig tunes the iterative alignment walk.
type AlignConfig struct {
	// Tolerance is the acceptable centroid error in pixels.
	Tolerance float64 `json:"tolerance" yaml:"tolerance" validate:"gte=0"`

	// Averages is how many readings are averaged per measurement.
	Averages int `json:"averages" yaml:"averages" validate:"gte=0"`

	// Timeout bounds the whole session.
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// MaxWalks caps the walk iterations per mirror/imager pair.
	MaxWalks int `json:"max_walks" yaml:"max_walks" validate:"gte=0"`
}

// RecoveryConfig tunes the beam-recovery branches.
type RecoveryConfig struct {
	// Enabled gates the whole recovery policy.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Samples is how many back-to-back reads feed the signal-loss check.
	Samples int `json:"samples" yaml:"samples" validate:"gte=0"`

	// SampleDelay is the pause between samples.
	SampleDelay Duration `json:"sample_delay" yaml:"sample_delay"`

	// Step is the sweep increment per recovery move.
	Step float64 `json:"step" yaml:"step" validate:"gte=0"`

	// PrepTimeout bounds imager staging during recovery.
	PrepTimeout Duration `json:"prep_timeout" yaml:"prep_timeout"`

	// SweepTimeout bounds the recovery sweep.
	SweepTimeout Duration `json:"sweep_timeout" yaml:"sweep_timeout"`

	// HasStop marks recovery moves as stoppable on cancellation.
	HasStop bool `json:"has_stop" yaml:"has_stop"`

	// SelectorScript is an optional Starlark script that replaces the
	// built-in branch selector. See EvaluateSelector for its contract.
	SelectorScript string `json:"selector_script,omitempty" yaml:"selector_script,omitempty"`
}

// Default parameter values, applied by ApplyDefaults when a field is zero.
const (
	DefaultTolerance    = 20.0
	DefaultAverages     = 20
	DefaultAlignTimeout = Duration(600 * time.Second)
	DefaultMaxWalks     = 100
	DefaultSamples      = 25
	DefaultStep         = 5.0
	DefaultPrepTimeout  = Duration(10 * time.Second)
	DefaultSweepTimeout = Duration(120 * time.Second)
	DefaultPollInterval = Duration(500 * time.Millisecond)
)

// ApplyDefaults fills zero-valued tunables with their defaults. Explicit
// values, including disabled toggles, are left alone.
func (c *Config) ApplyDefaults() {
	if c.Align.Tolerance == 0 {
		c.Align.Tolerance = DefaultTolerance
	}
	if c.Align.Averages == 0 {
		c.Align.Averages = DefaultAverages
	}
	if c.Align.Timeout == 0 {
		c.Align.Timeout = DefaultAlignTimeout
	}
	if c.Align.MaxWalks == 0 {
		c.Align.MaxWalks = DefaultMaxWalks
	}
	if c.Recovery.Samples == 0 {
		c.Recovery.Samples = DefaultSamples
	}
	if c.Recovery.Step == 0 {
		c.Recovery.Step = DefaultStep
	}
	if c.Recovery.PrepTimeout == 0 {
		c.Recovery.PrepTimeout = DefaultPrepTimeout
	}
	if c.Recovery.SweepTimeout == 0 {
		c.Recovery.SweepTimeout = DefaultSweepTimeout
	}
	if c.Suspend.PollInterval == 0 {
		c.Suspend.PollInterval = DefaultPollInterval
	}
}

// Mirror looks up a mirror by name.
func (c *Config) Mirror(name string) (MirrorConfig, bool) {
	for _, m := range c.Mirrors {
		if m.Name == name {
			return m, true
		}
	}
	return MirrorConfig{}, false
}

// Imager looks up an imager by name.
func (c *Config) Imager(name string) (ImagerConfig, bool) {
	for _, im := range c.Imagers {
		if im.Name == name {
			return im, true
		}
	}
	return ImagerConfig{}, false
}

// ValidationError is a config validation failure with location context.
type ValidationError struct {
	// File is the source file path, if known.
	File string `json:"file,omitempty"`

	// Path is the config path to the error, e.g. "mirrors[0].name".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	return msg
}
