// Package device defines the capability interfaces through which the control
// core reaches hardware: actuators, sensors, imagers, and process variables.
// Concrete drivers live outside this repository; simulated implementations
// are provided for tests and dry runs.
package device

import (
	"context"
	"time"
)

// Actuator is a positionable axis, typically a mirror pitch motor.
type Actuator interface {
	// Name returns the device name used in command streams and telemetry.
	Name() string

	// Position reads the current commanded position.
	Position(ctx context.Context) (float64, error)

	// Move drives the actuator to an absolute target and waits for the
	// motion to settle, bounded by timeout. Failures are reported as
	// MotionError values (timeout or hardware fault).
	Move(ctx context.Context, target float64, timeout time.Duration) error
}

// Stopper is implemented by actuators that support halting an in-flight
// move. The dispatcher stops a cancelled move only when the command that
// started it carries the has-stop flag.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Sensor reads a scalar feedback signal, typically a beam centroid on an
// imaging detector. ok is false when the device reports no signal (beam not
// found); that is not an error.
type Sensor interface {
	Name() string
	Read(ctx context.Context) (value float64, ok bool, err error)
}

// ImagerState is the insertion state of an imaging device.
type ImagerState string

const (
	// ImagerIn means the imager is inserted in the beam.
	ImagerIn ImagerState = "IN"

	// ImagerOut means the imager is retracted.
	ImagerOut ImagerState = "OUT"

	// ImagerUnknown means the insertion state cannot be determined.
	ImagerUnknown ImagerState = "UNKNOWN"
)

// Imager is an insertable imaging detector: a Sensor plus motion in and out
// of the beam.
type Imager interface {
	Sensor

	// State reports whether the imager is currently in the beam.
	State(ctx context.Context) (ImagerState, error)

	// Insert moves the imager into the beam, bounded by timeout.
	Insert(ctx context.Context, timeout time.Duration) error

	// Remove retracts the imager from the beam, bounded by timeout.
	Remove(ctx context.Context, timeout time.Duration) error
}

// AlarmSeverity is an EPICS-style alarm severity ladder.
type AlarmSeverity int

const (
	// SeverityNone means no alarm.
	SeverityNone AlarmSeverity = iota

	// SeverityMinor is a minor alarm.
	SeverityMinor

	// SeverityMajor is a major alarm.
	SeverityMajor

	// SeverityInvalid means the value cannot be trusted.
	SeverityInvalid
)

// String returns the conventional severity name.
func (s AlarmSeverity) String() string {
	switch s {
	case SeverityNone:
		return "NO_ALARM"
	case SeverityMinor:
		return "MINOR"
	case SeverityMajor:
		return "MAJOR"
	case SeverityInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity converts a severity name to an AlarmSeverity.
// Unrecognized names map to SeverityInvalid.
func ParseSeverity(name string) AlarmSeverity {
	switch name {
	case "NO_ALARM", "NONE", "":
		return SeverityNone
	case "MINOR":
		return SeverityMinor
	case "MAJOR":
		return SeverityMajor
	default:
		return SeverityInvalid
	}
}

// PV is a live process variable: a named scalar with an alarm state.
// Suspend conditions evaluate PVs concurrently from multiple sessions, so
// implementations must be safe for concurrent reads.
type PV interface {
	Name() string
	Value(ctx context.Context) (float64, error)
	Severity(ctx context.Context) (AlarmSeverity, error)
}
