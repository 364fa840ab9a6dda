// Package align orchestrates beamline alignment sessions: it wires the
// iterative walk planner, the branching engine, recovery sub-plans, and the
// suspension gate into a single dispatched run.
package align

import (
	"context"
	"time"

	"github.com/openbeamline/beamwalk/pkg/branch"
	"github.com/openbeamline/beamwalk/pkg/engine"
	"github.com/openbeamline/beamwalk/pkg/stream"
	"github.com/openbeamline/beamwalk/pkg/suspend"
	"github.com/openbeamline/beamwalk/pkg/telemetry"
)

// Default walk parameters, matching the historical alignment procedure.
const (
	DefaultTolerance = 20.0
	DefaultAverages  = 20
	DefaultTimeout   = 600 * time.Second
	DefaultMaxWalks  = 100
)

// Options configures one alignment run.
type Options struct {
	// PlanName labels the session in telemetry. Defaults to "iterwalk".
	PlanName string

	// Tolerance is the acceptable centroid error. Zero selects
	// DefaultTolerance.
	Tolerance float64

	// Averages is how many reads are averaged per measurement. Zero selects
	// DefaultAverages.
	Averages int

	// Timeout bounds the whole session. Zero selects DefaultTimeout.
	Timeout time.Duration

	// MaxWalks caps correction iterations per pair. Zero selects
	// DefaultMaxWalks.
	MaxWalks int

	// MoveTimeout bounds each correction move. Zero defers to the
	// dispatcher's default.
	MoveTimeout time.Duration

	// Branches are the recovery sub-plans available to the branching
	// engine, indexed by the selector's branch index.
	Branches []stream.Factory

	// Selector decides at checkpoints whether to divert into a branch.
	// Nil never branches.
	Selector branch.Selector

	// Gate applies suspend conditions to the session. Nil disables
	// suspension.
	Gate *suspend.Gate

	// Telemetry carries the logger, metrics, tracer, and event publisher.
	Telemetry *telemetry.Telemetry

	// AbortOnRecoveryFailure terminates the session when a recovery branch
	// fails instead of resuming the primary plan.
	AbortOnRecoveryFailure bool

	// Extra is caller-supplied metadata attached to the session record.
	Extra map[string]interface{}
}

func (o *Options) applyDefaults() {
	if o.PlanName == "" {
		o.PlanName = "iterwalk"
	}
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Averages == 0 {
		o.Averages = DefaultAverages
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxWalks == 0 {
		o.MaxWalks = DefaultMaxWalks
	}
}

// Run executes one alignment session over the given pairs and returns the
// completed session record. The error is the terminal fault, nil on success;
// failed recovery branches are not terminal unless AbortOnRecoveryFailure is
// set.
func Run(ctx context.Context, devices *engine.Devices, pairs []Pair, opts Options) (*engine.Session, error) {
	opts.applyDefaults()

	if err := validatePairs(pairs); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	primary := NewWalker(pairs, WalkerParams{
		Tolerance:   opts.Tolerance,
		Averages:    opts.Averages,
		MaxWalks:    opts.MaxWalks,
		MoveTimeout: opts.MoveTimeout,
	})
	eng := branch.NewEngine(primary, opts.Branches, opts.Selector)

	d := engine.NewDispatcher(devices, engine.Options{
		Gate:      opts.Gate,
		Telemetry: opts.Telemetry,
	})
	eng.OnBranch = d.RecordBranch
	eng.OnBranchFailure = func(index int, err error) {
		d.RecordRecoveryFailure(index, err)
		if opts.AbortOnRecoveryFailure {
			cancel()
		}
	}

	return d.Run(ctx, eng, metadata(pairs, opts))
}

func validatePairs(pairs []Pair) error {
	if len(pairs) == 0 {
		return engine.NewPermanentError("no mirror/imager pairs", nil).
			WithCode(engine.ErrCodeValidation)
	}
	for _, p := range pairs {
		if p.Mirror == nil || p.Imager == nil {
			return engine.NewPermanentError("pair missing mirror or imager", nil).
				WithCode(engine.ErrCodeValidation)
		}
	}
	return nil
}

// metadata builds the session's descriptive record from the run parameters.
func metadata(pairs []Pair, opts Options) engine.Metadata {
	goals := make([]float64, len(pairs))
	detectors := make([]string, len(pairs))
	mirrors := make([]string, len(pairs))
	for i, p := range pairs {
		goals[i] = p.Goal
		detectors[i] = p.Imager.Name()
		mirrors[i] = p.Mirror.Name()
	}
	return engine.Metadata{
		PlanName:  opts.PlanName,
		Goals:     goals,
		Detectors: detectors,
		Mirrors:   mirrors,
		PlanArgs: map[string]interface{}{
			"tolerance": opts.Tolerance,
			"averages":  opts.Averages,
			"max_walks": opts.MaxWalks,
			"timeout":   opts.Timeout.String(),
		},
		Extra: opts.Extra,
	}
}
