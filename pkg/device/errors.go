package device

import (
	"errors"
	"fmt"
)

// MotionErrorCode distinguishes the two motion failure modes.
type MotionErrorCode string

const (
	// MotionTimeout means the move did not settle within its timeout.
	MotionTimeout MotionErrorCode = "MOTION_TIMEOUT"

	// MotionFault means the hardware reported a fault during the move.
	MotionFault MotionErrorCode = "MOTION_FAULT"
)

// MotionError reports a failed actuator move. Motion faults are fatal to the
// session that issued the move; the classification happens in pkg/engine.
type MotionError struct {
	// Code is the failure mode.
	Code MotionErrorCode

	// Device is the actuator that failed.
	Device string

	// Target is the commanded position.
	Target float64

	// Err is the underlying driver error, if any.
	Err error
}

// Error implements the error interface.
func (e *MotionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s -> %g: %v", e.Code, e.Device, e.Target, e.Err)
	}
	return fmt.Sprintf("[%s] %s -> %g", e.Code, e.Device, e.Target)
}

// Unwrap returns the underlying error.
func (e *MotionError) Unwrap() error {
	return e.Err
}

// NewMotionTimeout creates a motion timeout error for the given move.
func NewMotionTimeout(device string, target float64, err error) *MotionError {
	return &MotionError{Code: MotionTimeout, Device: device, Target: target, Err: err}
}

// NewMotionFault creates a motion fault error for the given move.
func NewMotionFault(device string, target float64, err error) *MotionError {
	return &MotionError{Code: MotionFault, Device: device, Target: target, Err: err}
}

// IsMotionTimeout reports whether err is a motion timeout.
func IsMotionTimeout(err error) bool {
	var e *MotionError
	return errors.As(err, &e) && e.Code == MotionTimeout
}

// IsMotionFault reports whether err is a hardware motion fault.
func IsMotionFault(err error) bool {
	var e *MotionError
	return errors.As(err, &e) && e.Code == MotionFault
}
