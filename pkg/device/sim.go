package device

import (
	"context"
	"math"
	"sync"
	"time"
)

// SimActuator is an in-memory actuator for tests and dry runs. Moves are
// instantaneous unless a settle delay is configured. Limits and injected
// faults model the failure modes of real motors.
type SimActuator struct {
	name string

	mu       sync.Mutex
	position float64
	lowLim   float64
	highLim  float64
	settle   time.Duration
	nextErr  error
	stopped  bool
}

// NewSimActuator creates a simulated actuator at the given starting position
// with no travel limits.
func NewSimActuator(name string, position float64) *SimActuator {
	return &SimActuator{
		name:     name,
		position: position,
		lowLim:   math.Inf(-1),
		highLim:  math.Inf(1),
	}
}

// SetLimits configures the travel limits. Moves outside the limits fault.
func (a *SimActuator) SetLimits(low, high float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lowLim, a.highLim = low, high
}

// SetSettle configures a settle delay applied to every move.
func (a *SimActuator) SetSettle(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settle = d
}

// FailNext injects an error returned by the next Move call.
func (a *SimActuator) FailNext(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextErr = err
}

// Name implements Actuator.
func (a *SimActuator) Name() string { return a.name }

// Position implements Actuator.
func (a *SimActuator) Position(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position, nil
}

// Move implements Actuator.
func (a *SimActuator) Move(ctx context.Context, target float64, timeout time.Duration) error {
	a.mu.Lock()
	if a.nextErr != nil {
		err := a.nextErr
		a.nextErr = nil
		a.mu.Unlock()
		return err
	}
	if target < a.lowLim || target > a.highLim {
		a.mu.Unlock()
		return NewMotionFault(a.name, target, nil)
	}
	settle := a.settle
	a.stopped = false
	a.mu.Unlock()

	if settle > 0 {
		if timeout > 0 && settle > timeout {
			// The motion outlasts its budget.
			select {
			case <-time.After(timeout):
				return NewMotionTimeout(a.name, target, nil)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.position = target
	return nil
}

// Stop implements Stopper. A stopped move leaves the actuator at its prior
// position.
func (a *SimActuator) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	return nil
}

// SignalFunc computes an imager's feedback signal. ok=false models a read
// with no beam found.
type SignalFunc func() (value float64, ok bool)

// SimImager is an in-memory insertable imaging detector. Its signal is
// produced by a caller-supplied function, which typically derives the
// centroid from the positions of simulated actuators.
type SimImager struct {
	name string

	mu     sync.Mutex
	state  ImagerState
	signal SignalFunc
}

// NewSimImager creates a simulated imager, initially out of the beam.
func NewSimImager(name string, signal SignalFunc) *SimImager {
	return &SimImager{name: name, state: ImagerOut, signal: signal}
}

// SetSignal replaces the signal function.
func (im *SimImager) SetSignal(signal SignalFunc) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.signal = signal
}

// SetState forces the insertion state.
func (im *SimImager) SetState(state ImagerState) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.state = state
}

// Name implements Sensor.
func (im *SimImager) Name() string { return im.name }

// Read implements Sensor. An imager that is out of the beam reads no signal.
func (im *SimImager) Read(ctx context.Context) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.state != ImagerIn || im.signal == nil {
		return 0, false, nil
	}
	v, ok := im.signal()
	return v, ok, nil
}

// State implements Imager.
func (im *SimImager) State(ctx context.Context) (ImagerState, error) {
	if err := ctx.Err(); err != nil {
		return ImagerUnknown, err
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.state, nil
}

// Insert implements Imager.
func (im *SimImager) Insert(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	im.state = ImagerIn
	return nil
}

// Remove implements Imager.
func (im *SimImager) Remove(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	im.state = ImagerOut
	return nil
}

// SimPV is an in-memory process variable. Safe for concurrent reads and
// writes, matching the concurrency contract of suspend-condition evaluation.
type SimPV struct {
	name string

	mu       sync.RWMutex
	value    float64
	severity AlarmSeverity
}

// NewSimPV creates a simulated PV with the given initial value and no alarm.
func NewSimPV(name string, value float64) *SimPV {
	return &SimPV{name: name, value: value}
}

// Set updates the PV value.
func (p *SimPV) Set(value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = value
}

// SetSeverity updates the alarm severity.
func (p *SimPV) SetSeverity(sev AlarmSeverity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.severity = sev
}

// Name implements PV.
func (p *SimPV) Name() string { return p.name }

// Value implements PV.
func (p *SimPV) Value(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value, nil
}

// Severity implements PV.
func (p *SimPV) Severity(ctx context.Context) (AlarmSeverity, error) {
	if err := ctx.Err(); err != nil {
		return SeverityInvalid, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.severity, nil
}
