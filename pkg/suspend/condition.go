// Package suspend implements the global suspension layer: named safety
// conditions over live beam signals, a process-wide registry shared by all
// alignment sessions, and a per-session gate that pauses command dispatch at
// checkpoints until every condition clears.
package suspend

import (
	"context"
	"fmt"

	"github.com/openbeamline/beamwalk/pkg/device"
)

// Condition is a safety interlock evaluated before physical device
// interaction. Evaluate returns true when it is safe to proceed.
//
// Conditions are registered once at engine startup and evaluated read-only,
// possibly concurrently from multiple sessions; implementations must not
// mutate shared state during checks.
type Condition interface {
	Name() string
	Evaluate(ctx context.Context) (bool, error)
}

// Installer is implemented by conditions that need setup when registered,
// such as subscribing to a signal source.
type Installer interface {
	Install(r *Registry) error
}

// pvFloor suspends when a PV value drops below a floor.
type pvFloor struct {
	name  string
	pv    device.PV
	floor float64
}

// NewEnergyFloor returns a condition that is violated while the beam energy
// PV reads below floor.
func NewEnergyFloor(pv device.PV, floor float64) Condition {
	return &pvFloor{name: "beam_energy_floor", pv: pv, floor: floor}
}

// NewRateFloor returns a condition that is violated while the beam rate PV
// reads below floor.
func NewRateFloor(pv device.PV, floor float64) Condition {
	return &pvFloor{name: "beam_rate_floor", pv: pv, floor: floor}
}

// NewValueFloor returns a floor condition with a caller-chosen name, for
// signals beyond energy and rate.
func NewValueFloor(name string, pv device.PV, floor float64) Condition {
	return &pvFloor{name: name, pv: pv, floor: floor}
}

func (c *pvFloor) Name() string { return c.name }

func (c *pvFloor) Evaluate(ctx context.Context) (bool, error) {
	v, err := c.pv.Value(ctx)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", c.pv.Name(), err)
	}
	return v >= c.floor, nil
}

// pvAlarm suspends while a PV's alarm severity is at or above a threshold.
type pvAlarm struct {
	pv        device.PV
	threshold device.AlarmSeverity
}

// NewPVAlarm returns a condition that is violated while the named PV reports
// an alarm at or above the given severity.
func NewPVAlarm(pv device.PV, threshold device.AlarmSeverity) Condition {
	return &pvAlarm{pv: pv, threshold: threshold}
}

func (c *pvAlarm) Name() string {
	return fmt.Sprintf("pv_alarm:%s>=%s", c.pv.Name(), c.threshold)
}

func (c *pvAlarm) Evaluate(ctx context.Context) (bool, error) {
	sev, err := c.pv.Severity(ctx)
	if err != nil {
		return false, fmt.Errorf("read %s severity: %w", c.pv.Name(), err)
	}
	return sev < c.threshold, nil
}

// ConditionFunc adapts a function to the Condition interface.
type ConditionFunc struct {
	// ConditionName is the condition's registered name.
	ConditionName string

	// Fn is the evaluation function.
	Fn func(ctx context.Context) (bool, error)
}

// Name implements Condition.
func (c ConditionFunc) Name() string { return c.ConditionName }

// Evaluate implements Condition.
func (c ConditionFunc) Evaluate(ctx context.Context) (bool, error) {
	return c.Fn(ctx)
}
