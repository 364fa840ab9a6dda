package align

import (
	"context"
	"fmt"
	"time"

	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/engine"
	"github.com/openbeamline/beamwalk/pkg/stream"
)

// stageTimeout bounds each imager insert or remove while staging a pair.
const stageTimeout = 10 * time.Second

// Pair couples one steering mirror with the imager that observes it.
type Pair struct {
	// Mirror is the actuator being walked.
	Mirror device.Actuator

	// Imager carries the centroid feedback for this mirror.
	Imager device.Imager

	// Goal is the target centroid on the imager.
	Goal float64

	// Gradient is the expected centroid change per unit of mirror travel.
	// It seeds the first correction; later corrections use the slope
	// measured between consecutive iterations.
	Gradient float64
}

// WalkerParams tunes the iterative walk.
type WalkerParams struct {
	// Tolerance is the acceptable centroid error.
	Tolerance float64

	// Averages is how many reads are averaged per measurement.
	Averages int

	// MaxWalks caps the correction iterations per pair.
	MaxWalks int

	// MoveTimeout bounds each correction move. Zero defers to the
	// dispatcher's default.
	MoveTimeout time.Duration
}

// walker is the iterative alignment planner. For each pair in order it
// stages the pair's imager, measures the averaged centroid, and emits
// correction moves until the error is within tolerance, then advances to the
// next pair. It reads devices directly for its own decisions and emits
// read_sensor commands so every accepted measurement lands in the session
// record.
//
// Each correction is bracketed with a checkpoint, which is where suspension
// and branching take effect.
type walker struct {
	pairs  []Pair
	params WalkerParams

	idx     int
	staged  bool
	walks   int
	pending []stream.Command

	lastValid    bool
	lastPos      float64
	lastCentroid float64
}

// NewWalker builds a single-use iterative walk plan over the pairs.
func NewWalker(pairs []Pair, params WalkerParams) stream.Plan {
	if params.Averages <= 0 {
		params.Averages = 1
	}
	return &walker{pairs: pairs, params: params}
}

// WalkerFactory returns a factory producing fresh walk plans.
func WalkerFactory(pairs []Pair, params WalkerParams) stream.Factory {
	return func() stream.Plan {
		return NewWalker(pairs, params)
	}
}

// Next implements stream.Plan.
func (w *walker) Next(ctx context.Context) (*stream.Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for {
		if len(w.pending) > 0 {
			cmd := w.pending[0]
			w.pending = w.pending[1:]
			return &cmd, nil
		}

		if w.idx >= len(w.pairs) {
			return nil, nil
		}
		pair := w.pairs[w.idx]

		if !w.staged {
			w.stage(pair)
			continue
		}

		centroid, ok, err := w.measure(ctx, pair.Imager)
		if err != nil {
			return nil, engine.Classify(err).
				WithDevice(pair.Imager.Name()).
				WithOperation("walk_measure")
		}
		if !ok {
			// No signal on this imager. Surface a checkpoint so the branch
			// selector can divert into recovery, and charge a walk against
			// the budget so a dead beam cannot spin forever.
			if err := w.chargeWalk(pair); err != nil {
				return nil, err
			}
			w.pending = append(w.pending, stream.Checkpoint())
			continue
		}

		errVal := pair.Goal - centroid
		if abs(errVal) <= w.params.Tolerance {
			w.advance()
			w.pending = append(w.pending, stream.Checkpoint())
			continue
		}

		if err := w.chargeWalk(pair); err != nil {
			return nil, err
		}

		target, err := w.correct(ctx, pair, centroid, errVal)
		if err != nil {
			return nil, err
		}
		w.pending = append(w.pending,
			stream.SetActuator(pair.Mirror.Name(), target, w.params.MoveTimeout),
			stream.ReadSensor(pair.Imager.Name()),
			stream.Checkpoint(),
		)
	}
}

// stage enqueues the imager staging commands for the current pair: insert its
// imager, retract every other pair's imager, then checkpoint.
func (w *walker) stage(pair Pair) {
	cmds := []stream.Command{
		stream.PrepImager(pair.Imager.Name(), true, stageTimeout),
	}
	for i, other := range w.pairs {
		if i == w.idx || other.Imager.Name() == pair.Imager.Name() {
			continue
		}
		cmds = append(cmds, stream.PrepImager(other.Imager.Name(), false, stageTimeout))
	}
	cmds = append(cmds, stream.Checkpoint())
	w.pending = append(w.pending, cmds...)
	w.staged = true
}

// measure averages the imager signal over the configured sample count. ok is
// false when no sample carried a signal.
func (w *walker) measure(ctx context.Context, im device.Imager) (float64, bool, error) {
	var sum float64
	var n int
	for i := 0; i < w.params.Averages; i++ {
		v, ok, err := im.Read(ctx)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

// correct computes the next mirror target from the centroid error using the
// measured slope, falling back to the configured gradient on the first
// iteration or when the measurement is degenerate.
func (w *walker) correct(ctx context.Context, pair Pair, centroid, errVal float64) (float64, error) {
	pos, err := pair.Mirror.Position(ctx)
	if err != nil {
		return 0, engine.Classify(err).
			WithDevice(pair.Mirror.Name()).
			WithOperation("walk_correct")
	}

	gradient := pair.Gradient
	if w.lastValid && pos != w.lastPos && centroid != w.lastCentroid {
		gradient = (centroid - w.lastCentroid) / (pos - w.lastPos)
	}
	if gradient == 0 {
		return 0, engine.NewPermanentError(
			fmt.Sprintf("no usable gradient for mirror %s", pair.Mirror.Name()), nil).
			WithCode(engine.ErrCodeValidation).
			WithDevice(pair.Mirror.Name()).
			WithOperation("walk_correct")
	}

	w.lastValid = true
	w.lastPos = pos
	w.lastCentroid = centroid
	return pos + errVal/gradient, nil
}

// chargeWalk spends one iteration of the pair's walk budget.
func (w *walker) chargeWalk(pair Pair) error {
	w.walks++
	if w.params.MaxWalks > 0 && w.walks > w.params.MaxWalks {
		return engine.NewPermanentError(
			fmt.Sprintf("no convergence within %d walks", w.params.MaxWalks), nil).
			WithCode(engine.ErrCodeConvergence).
			WithDevice(pair.Mirror.Name()).
			WithOperation("walk")
	}
	return nil
}

// advance moves on to the next pair and resets per-pair state.
func (w *walker) advance() {
	w.idx++
	w.staged = false
	w.walks = 0
	w.lastValid = false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
