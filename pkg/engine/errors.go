// Package engine provides the command dispatch core for beamline alignment
// sessions: classified errors, session state, and the single-threaded
// dispatcher that pulls commands from a plan and drives devices.
package engine

import (
	"errors"
	"fmt"

	"github.com/openbeamline/beamwalk/pkg/device"
)

// FaultClass classifies a control error for escalation decisions.
type FaultClass string

const (
	// FaultClassTransient indicates a temporary condition, such as a failed
	// sensor read, that the caller may simply retry or ignore.
	FaultClassTransient FaultClass = "transient"

	// FaultClassRecovery indicates a recovery attempt that failed without
	// endangering the session. Recovery faults are reported and the primary
	// plan resumes; they are never retried by the branching engine.
	FaultClassRecovery FaultClass = "recovery"

	// FaultClassMotion indicates an actuator hardware failure. Motion
	// faults are fatal to the session that commanded the move.
	FaultClassMotion FaultClass = "motion"

	// FaultClassPermanent indicates a non-recoverable error such as invalid
	// configuration or cancellation.
	FaultClassPermanent FaultClass = "permanent"
)

// ControlError is a classified error with device and operation context.
type ControlError struct {
	// Class is the fault classification.
	Class FaultClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Device is the device involved, if applicable.
	Device string `json:"device,omitempty"`

	// Operation is the operation in progress when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ControlError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Device != "" {
		msg += fmt.Sprintf(" (device=%s)", e.Device)
	}
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for chain inspection.
func (e *ControlError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is.
func (e *ControlError) Is(target error) bool {
	t, ok := target.(*ControlError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithDevice adds device context to the error.
func (e *ControlError) WithDevice(name string) *ControlError {
	e.Device = name
	return e
}

// WithOperation adds operation context to the error.
func (e *ControlError) WithOperation(op string) *ControlError {
	e.Operation = op
	return e
}

// WithCode adds an error code.
func (e *ControlError) WithCode(code string) *ControlError {
	e.Code = code
	return e
}

// NewTransientError creates a transient error.
func NewTransientError(message string, err error) *ControlError {
	return &ControlError{Class: FaultClassTransient, Message: message, Err: err}
}

// NewRecoveryError creates a recovery-class error.
func NewRecoveryError(message string, err error) *ControlError {
	return &ControlError{Class: FaultClassRecovery, Message: message, Err: err}
}

// NewMotionError creates a motion-class error.
func NewMotionError(message string, err error) *ControlError {
	return &ControlError{Class: FaultClassMotion, Message: message, Err: err}
}

// NewPermanentError creates a permanent error.
func NewPermanentError(message string, err error) *ControlError {
	return &ControlError{Class: FaultClassPermanent, Message: message, Err: err}
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool {
	var e *ControlError
	return errors.As(err, &e) && e.Class == FaultClassTransient
}

// IsRecovery reports whether err is a failed recovery attempt.
func IsRecovery(err error) bool {
	var e *ControlError
	return errors.As(err, &e) && e.Class == FaultClassRecovery
}

// IsMotion reports whether err is an actuator hardware failure.
func IsMotion(err error) bool {
	var e *ControlError
	return errors.As(err, &e) && e.Class == FaultClassMotion
}

// IsPermanent reports whether err is non-recoverable.
func IsPermanent(err error) bool {
	var e *ControlError
	return errors.As(err, &e) && e.Class == FaultClassPermanent
}

// Classify wraps an arbitrary error in a ControlError. Motion errors from
// the device layer keep their device context; already-classified errors pass
// through unchanged.
func Classify(err error) *ControlError {
	if err == nil {
		return nil
	}
	var ce *ControlError
	if errors.As(err, &ce) {
		return ce
	}
	var me *device.MotionError
	if errors.As(err, &me) {
		return NewMotionError("actuator move failed", err).
			WithDevice(me.Device).
			WithCode(string(me.Code))
	}
	return NewPermanentError("execution failed", err).WithCode(ErrCodeInternal)
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeRecoveryTimeout = "RECOVERY_TIMEOUT"
	ErrCodeConvergence     = "CONVERGENCE_FAILED"
	ErrCodeMotionTimeout   = "MOTION_TIMEOUT"
	ErrCodeMotionFault     = "MOTION_FAULT"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeSuspendCheck    = "SUSPEND_CHECK_FAILED"
	ErrCodeUnknownDevice   = "UNKNOWN_DEVICE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)
