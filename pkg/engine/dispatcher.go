package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/stream"
	"github.com/openbeamline/beamwalk/pkg/suspend"
	"github.com/openbeamline/beamwalk/pkg/telemetry"
)

// DefaultMoveTimeout bounds actuator moves whose command carries no timeout.
const DefaultMoveTimeout = 60 * time.Second

// StopTimeout bounds the stop issued to a cancelled move.
const StopTimeout = 5 * time.Second

// Options configures a Dispatcher.
type Options struct {
	// Gate applies suspend conditions to this session. Nil disables
	// suspension.
	Gate *suspend.Gate

	// Telemetry carries the logger, metrics, tracer, and event publisher.
	// Nil disables instrumentation.
	Telemetry *telemetry.Telemetry

	// DefaultMoveTimeout replaces DefaultMoveTimeout when positive.
	DefaultMoveTimeout time.Duration
}

// Dispatcher executes one session: it pulls commands from a plan one at a
// time and drives the registered devices. Dispatch is strictly sequential; a
// command completes or fails before the next is requested. A Dispatcher is
// single-use and not safe for concurrent use.
type Dispatcher struct {
	devices *Devices
	gate    *suspend.Gate
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
	timeout time.Duration

	session      *Session
	measurements []Measurement
	lastViolated []string
}

// NewDispatcher creates a dispatcher over the device registry.
func NewDispatcher(devices *Devices, opts Options) *Dispatcher {
	timeout := opts.DefaultMoveTimeout
	if timeout <= 0 {
		timeout = DefaultMoveTimeout
	}
	d := &Dispatcher{
		devices: devices,
		gate:    opts.Gate,
		tel:     opts.Telemetry,
		timeout: timeout,
	}
	if opts.Telemetry != nil {
		d.logger = opts.Telemetry.Logger.NewComponentLogger("engine")
	}
	if d.gate != nil {
		d.gate.OnSuspend = d.onSuspend
		d.gate.OnResume = d.onResume
	}
	return d
}

// Session returns the session record. It is valid once Run has started and
// reflects live progress while dispatch is underway.
func (d *Dispatcher) Session() *Session {
	return d.session
}

// Measurements returns the sensor readings recorded so far, in dispatch
// order.
func (d *Dispatcher) Measurements() []Measurement {
	return d.measurements
}

// RecordBranch counts a taken recovery branch in the session summary.
// Wire it to the branching engine's OnBranch hook.
func (d *Dispatcher) RecordBranch(index int) {
	if d.session != nil {
		d.session.Summary.Branches++
	}
	if d.tel != nil {
		d.tel.Metrics.RecordBranchTaken(strconv.Itoa(index))
		_ = d.tel.Events.PublishBranchTaken(d.sessionID(), index, "")
	}
	if d.logger != nil {
		d.logger.WithField("branch", index).Warn("Recovery branch taken")
	}
}

// RecordRecoveryFailure counts a failed recovery attempt. Wire it to the
// branching engine's OnBranchFailure hook; the session keeps running.
func (d *Dispatcher) RecordRecoveryFailure(index int, err error) {
	if d.session != nil {
		d.session.Summary.RecoveryFailures++
	}
	if d.tel != nil {
		d.tel.Metrics.RecordBranchFailure(strconv.Itoa(index))
		var ce *ControlError
		if errors.As(err, &ce) {
			d.tel.Metrics.RecordError(string(ce.Class), ce.Code)
			d.tel.Metrics.RecordRecoveryTimeout(ce.Device)
			_ = d.tel.Events.PublishRecoveryTimeout(d.sessionID(), ce.Device, ce.Message)
		}
	}
	if d.logger != nil {
		d.logger.WithField("branch", index).WithError(err).
			Error("Recovery branch failed, resuming primary plan")
	}
}

// Run executes the plan to exhaustion and returns the completed session
// record. The returned error is the terminal fault, nil on success.
func (d *Dispatcher) Run(ctx context.Context, plan stream.Plan, meta Metadata) (*Session, error) {
	d.session = &Session{
		ID:        uuid.New().String(),
		Status:    SessionStatusRunning,
		StartedAt: time.Now(),
		Metadata:  meta,
	}
	if d.tel != nil {
		ctx = telemetry.WithSessionContext(d.tel.WithContext(ctx), d.session.ID, meta.PlanName)
	}
	if d.logger != nil {
		d.logger = d.logger.WithSessionID(d.session.ID)
		d.logger.WithPlan(meta.PlanName).Info("Session started")
	}

	err := d.loop(ctx, plan)
	d.finish(ctx, err)
	return d.session, err
}

func (d *Dispatcher) loop(ctx context.Context, plan stream.Plan) error {
	for {
		if err := ctx.Err(); err != nil {
			return NewPermanentError("session cancelled", err).WithCode(ErrCodeCancelled)
		}

		cmd, err := plan.Next(ctx)
		if err != nil {
			return Classify(err)
		}
		if cmd == nil {
			return nil
		}

		d.session.Summary.Commands++
		if err := d.dispatch(ctx, cmd); err != nil {
			return err
		}
	}
}

// dispatch executes one command. Suspend conditions are checked before every
// physical command; the latch they trip is honored at the next checkpoint.
func (d *Dispatcher) dispatch(ctx context.Context, cmd *stream.Command) error {
	switch cmd.Kind {
	case stream.KindCheckpoint:
		d.session.Summary.Checkpoints++
		return d.waitAtCheckpoint(ctx)

	case stream.KindNull:
		return nil

	case stream.KindSetActuator:
		if err := d.precheck(ctx); err != nil {
			return err
		}
		d.session.Summary.Moves++
		return d.move(ctx, cmd)

	case stream.KindReadSensor:
		if err := d.precheck(ctx); err != nil {
			return err
		}
		d.session.Summary.Readings++
		return d.read(ctx, cmd)

	case stream.KindPrepImager:
		if err := d.precheck(ctx); err != nil {
			return err
		}
		return d.prep(ctx, cmd)

	default:
		return NewPermanentError("unknown command kind", nil).
			WithCode(ErrCodeValidation).
			WithOperation(string(cmd.Kind))
	}
}

// precheck evaluates suspend conditions without blocking. A violation here
// only latches the gate; dispatch continues to the next checkpoint.
func (d *Dispatcher) precheck(ctx context.Context) error {
	if d.gate == nil {
		return nil
	}
	if _, err := d.gate.Check(ctx); err != nil {
		return NewPermanentError("suspend condition check failed", err).
			WithCode(ErrCodeSuspendCheck)
	}
	return nil
}

func (d *Dispatcher) waitAtCheckpoint(ctx context.Context) error {
	if d.gate == nil {
		return nil
	}
	prev := d.session.Status
	paused, waited, err := d.gate.WaitAtCheckpoint(ctx)
	if waited {
		d.session.Summary.Suspensions++
		d.session.Summary.SuspendedFor += paused
	}
	d.session.Status = prev
	if err != nil {
		if ctx.Err() != nil {
			return NewPermanentError("session cancelled while suspended", err).
				WithCode(ErrCodeCancelled)
		}
		return NewPermanentError("suspend condition check failed", err).
			WithCode(ErrCodeSuspendCheck)
	}
	return nil
}

func (d *Dispatcher) onSuspend(violated []string) {
	d.lastViolated = violated
	if d.session != nil {
		d.session.Status = SessionStatusSuspended
	}
	if d.logger != nil {
		d.logger.WithField("conditions", violated).Warn("Session suspended at checkpoint")
	}
	if d.tel != nil {
		_ = d.tel.Events.PublishSuspended(d.sessionID(), violated)
	}
}

func (d *Dispatcher) onResume(paused time.Duration) {
	if d.session != nil {
		d.session.Status = SessionStatusRunning
	}
	if d.logger != nil {
		d.logger.WithField("paused", paused.String()).Info("Session resumed")
	}
	if d.tel != nil {
		for _, name := range d.lastViolated {
			d.tel.Metrics.RecordSuspension(name, paused)
		}
		_ = d.tel.Events.PublishResumed(d.sessionID(), paused)
	}
}

func (d *Dispatcher) move(ctx context.Context, cmd *stream.Command) error {
	act, err := d.devices.Actuator(cmd.Device)
	if err != nil {
		return err
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}

	err = telemetry.RecordCommandOperation(ctx, d.sessionID(), string(cmd.Kind), cmd.Device,
		func(ctx context.Context) error {
			return act.Move(ctx, cmd.Target, timeout)
		})
	if err == nil {
		return nil
	}

	// A cancelled stoppable move is halted rather than left in flight.
	if ctxExpired(err) && cmd.HasStop {
		if stopper, ok := act.(device.Stopper); ok {
			stopCtx, cancel := context.WithTimeout(context.Background(), StopTimeout)
			defer cancel()
			if stopErr := stopper.Stop(stopCtx); stopErr != nil && d.logger != nil {
				d.logger.WithDevice(cmd.Device).WithError(stopErr).
					Error("Failed to stop cancelled move")
			}
		}
		return NewPermanentError("session cancelled", err).
			WithCode(ErrCodeCancelled).
			WithDevice(cmd.Device)
	}
	if ctxExpired(err) {
		return NewPermanentError("session cancelled", err).
			WithCode(ErrCodeCancelled).
			WithDevice(cmd.Device)
	}
	return Classify(err).WithOperation("move")
}

func (d *Dispatcher) read(ctx context.Context, cmd *stream.Command) error {
	sensor, err := d.devices.Sensor(cmd.Device)
	if err != nil {
		return err
	}
	value, present, err := sensor.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return NewPermanentError("session cancelled", err).WithCode(ErrCodeCancelled)
		}
		// A failed read is not fatal; the reading is simply absent.
		if d.logger != nil {
			d.logger.WithDevice(cmd.Device).WithError(err).Warn("Sensor read failed")
		}
		present = false
		value = 0
	}
	d.measurements = append(d.measurements, Measurement{
		Device:  cmd.Device,
		Value:   value,
		Present: present,
		At:      time.Now(),
	})
	return nil
}

func (d *Dispatcher) prep(ctx context.Context, cmd *stream.Command) error {
	im, err := d.devices.Imager(cmd.Device)
	if err != nil {
		return err
	}
	err = telemetry.RecordCommandOperation(ctx, d.sessionID(), string(cmd.Kind), cmd.Device,
		func(ctx context.Context) error {
			if cmd.Insert {
				return im.Insert(ctx, cmd.Timeout)
			}
			return im.Remove(ctx, cmd.Timeout)
		})
	if err != nil {
		if ctx.Err() != nil {
			return NewPermanentError("session cancelled", err).WithCode(ErrCodeCancelled)
		}
		return Classify(err).WithDevice(cmd.Device).WithOperation("prep_imager")
	}
	return nil
}

func (d *Dispatcher) finish(ctx context.Context, err error) {
	now := time.Now()
	d.session.CompletedAt = &now
	d.session.Duration = now.Sub(d.session.StartedAt)

	switch {
	case err == nil:
		d.session.Status = SessionStatusSucceeded
	case isCancelled(err):
		d.session.Status = SessionStatusCancelled
		d.session.Cause = err.Error()
	default:
		d.session.Status = SessionStatusFailed
		d.session.Cause = err.Error()
	}

	if d.logger != nil {
		log := d.logger.WithField("status", string(d.session.Status)).
			WithField("duration", d.session.Duration.String()).
			WithField("commands", d.session.Summary.Commands)
		if err != nil {
			log.WithError(err).Error("Session finished")
		} else {
			log.Info("Session finished")
		}
	}
	if d.tel != nil {
		if err != nil {
			var ce *ControlError
			if errors.As(err, &ce) {
				d.tel.Metrics.RecordError(string(ce.Class), ce.Code)
			}
		}
		telemetry.EndSessionContext(ctx, d.session.ID, string(d.session.Status), err)
	}
}

func (d *Dispatcher) sessionID() string {
	if d.session == nil {
		return ""
	}
	return d.session.ID
}

func isCancelled(err error) bool {
	var ce *ControlError
	return errors.As(err, &ce) && ce.Code == ErrCodeCancelled
}

// ctxExpired matches both cancellation and deadline expiry; a timed-out
// session is treated as externally cancelled.
func ctxExpired(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
