// Package recovery builds beam-recovery sub-plans: insert the imager that
// watches a misaligned actuator, then sweep the actuator toward its nominal
// center until the beam signal crosses a threshold.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/engine"
	"github.com/openbeamline/beamwalk/pkg/stream"
)

const (
	// DefaultPrepTimeout bounds each imager insert or remove during the
	// preparation phase.
	DefaultPrepTimeout = 10 * time.Second

	// DefaultSweepTimeout bounds the whole threshold sweep.
	DefaultSweepTimeout = 120 * time.Second
)

var validate = validator.New()

// Spec describes one recovery sweep: which actuator to walk, which imager
// carries the feedback signal, and the geometry of the search.
type Spec struct {
	// Actuator is the axis swept during recovery.
	Actuator device.Actuator `validate:"required"`

	// Signal is the imager whose reading decides when the beam is back.
	// It is inserted during the preparation phase.
	Signal device.Imager `validate:"required"`

	// Threshold is the signal level that counts as beam recovered. Reads
	// reporting no signal never cross it.
	Threshold float64 `validate:"gte=0"`

	// Center is the nominal actuator position. The sweep walks toward it:
	// positive steps when the actuator starts below center, negative when
	// above.
	Center float64

	// Step is the sweep increment per move.
	Step float64 `validate:"gt=0"`

	// PrepTimeout bounds each insert/remove during preparation. Zero
	// selects DefaultPrepTimeout.
	PrepTimeout time.Duration

	// SweepTimeout bounds the sweep phase. Zero selects
	// DefaultSweepTimeout. An expired sweep fails with a recovery-class
	// error so the primary plan can resume.
	SweepTimeout time.Duration

	// MaxSteps caps the number of sweep moves. Zero means no cap; the
	// sweep is then bounded only by SweepTimeout.
	MaxSteps int

	// HasStop marks sweep moves as stoppable on cancellation.
	HasStop bool
}

// Validate checks the spec for structural errors before a plan is built.
func (s Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return engine.NewPermanentError("invalid recovery spec", err).
			WithCode(engine.ErrCodeValidation)
	}
	return nil
}

// Factory returns a plan factory for the spec. Each invocation builds a fresh
// plan: a preparation phase that inserts the signal imager and parks the
// others, followed by the threshold sweep. park lists imagers to retract
// during preparation; the signal imager is skipped if present.
func Factory(spec Spec, park []device.Imager) stream.Factory {
	return func() stream.Plan {
		return New(spec, park)
	}
}

// New builds a single-use recovery plan.
func New(spec Spec, park []device.Imager) stream.Plan {
	if spec.PrepTimeout <= 0 {
		spec.PrepTimeout = DefaultPrepTimeout
	}
	if spec.SweepTimeout <= 0 {
		spec.SweepTimeout = DefaultSweepTimeout
	}
	return stream.Sequence(prepPlan(spec, park), &sweep{spec: spec})
}

// prepPlan emits the imager staging commands: insert the signal imager, then
// retract every other imager so it cannot shadow the measurement.
func prepPlan(spec Spec, park []device.Imager) stream.Plan {
	cmds := []stream.Command{
		stream.PrepImager(spec.Signal.Name(), true, spec.PrepTimeout),
	}
	for _, im := range park {
		if im.Name() == spec.Signal.Name() {
			continue
		}
		cmds = append(cmds, stream.PrepImager(im.Name(), false, spec.PrepTimeout))
	}
	return stream.FromCommands(cmds...)
}

// sweep walks the actuator toward center in fixed steps until the signal
// crosses the threshold. Direction is decided once, from the position at the
// start of the sweep. The signal is re-read before every step, so the sweep
// ends without moving when the beam is already present.
type sweep struct {
	spec Spec

	started bool
	start   time.Time
	dir     float64
	target  float64
	steps   int
}

// Next implements stream.Plan.
func (s *sweep) Next(ctx context.Context) (*stream.Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.started {
		pos, err := s.spec.Actuator.Position(ctx)
		if err != nil {
			return nil, engine.NewRecoveryError("reading actuator position", err).
				WithDevice(s.spec.Actuator.Name()).
				WithOperation("recover_sweep")
		}
		s.started = true
		s.start = time.Now()
		s.dir = 1
		if pos >= s.spec.Center {
			s.dir = -1
		}
		s.target = pos
	}

	v, ok, err := s.spec.Signal.Read(ctx)
	if err != nil {
		return nil, engine.NewRecoveryError("reading recovery signal", err).
			WithDevice(s.spec.Signal.Name()).
			WithOperation("recover_sweep")
	}
	if ok && v >= s.spec.Threshold {
		return nil, nil
	}

	remaining := s.spec.SweepTimeout - time.Since(s.start)
	if remaining <= 0 {
		return nil, engine.NewRecoveryError(
			fmt.Sprintf("beam not recovered within %s", s.spec.SweepTimeout),
			nil).
			WithCode(engine.ErrCodeRecoveryTimeout).
			WithDevice(s.spec.Actuator.Name()).
			WithOperation("recover_sweep")
	}
	if s.spec.MaxSteps > 0 && s.steps >= s.spec.MaxSteps {
		return nil, engine.NewRecoveryError(
			fmt.Sprintf("beam not recovered within %d steps", s.spec.MaxSteps),
			nil).
			WithCode(engine.ErrCodeRecoveryTimeout).
			WithDevice(s.spec.Actuator.Name()).
			WithOperation("recover_sweep")
	}

	s.target += s.dir * s.spec.Step
	s.steps++
	cmd := stream.SetActuator(s.spec.Actuator.Name(), s.target, remaining)
	cmd.HasStop = s.spec.HasStop
	return &cmd, nil
}
