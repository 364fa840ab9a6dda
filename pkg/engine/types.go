package engine

import (
	"time"
)

// SessionStatus is the lifecycle state of an alignment session.
type SessionStatus string

const (
	// SessionStatusPending means the session has been created but not started.
	SessionStatusPending SessionStatus = "pending"

	// SessionStatusRunning means commands are being dispatched.
	SessionStatusRunning SessionStatus = "running"

	// SessionStatusSuspended means dispatch is paused at a checkpoint while
	// one or more suspend conditions are in violation.
	SessionStatusSuspended SessionStatus = "suspended"

	// SessionStatusSucceeded means the plan ran to exhaustion.
	SessionStatusSucceeded SessionStatus = "succeeded"

	// SessionStatusFailed means a terminal fault aborted the stream.
	SessionStatusFailed SessionStatus = "failed"

	// SessionStatusCancelled means the session was externally cancelled.
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusSucceeded, SessionStatusFailed, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the session is still consuming its plan.
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusRunning || s == SessionStatusSuspended
}

// Metadata is the descriptive record attached to a session for external
// observability collaborators.
type Metadata struct {
	// PlanName identifies the alignment procedure.
	PlanName string `json:"plan_name"`

	// Goals are the target values per detector field.
	Goals []float64 `json:"goals,omitempty"`

	// Detectors are the participating detector names.
	Detectors []string `json:"detectors,omitempty"`

	// Mirrors are the participating actuator names.
	Mirrors []string `json:"mirrors,omitempty"`

	// PlanArgs are the algorithm parameters (tolerances, averages, timeout,
	// step sizes, gradients).
	PlanArgs map[string]interface{} `json:"plan_args,omitempty"`

	// Extra carries caller-supplied metadata merged over the defaults.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Summary counts what a session dispatched.
type Summary struct {
	// Commands is the total number of commands dispatched.
	Commands int `json:"commands"`

	// Checkpoints is the number of checkpoint commands dispatched.
	Checkpoints int `json:"checkpoints"`

	// Moves is the number of actuator moves dispatched.
	Moves int `json:"moves"`

	// Readings is the number of sensor reads dispatched.
	Readings int `json:"readings"`

	// Branches is the number of recovery branches taken.
	Branches int `json:"branches"`

	// RecoveryFailures is the number of recovery attempts that timed out.
	RecoveryFailures int `json:"recovery_failures"`

	// Suspensions is the number of times dispatch paused on a condition.
	Suspensions int `json:"suspensions"`

	// SuspendedFor is the cumulative time spent paused.
	SuspendedFor time.Duration `json:"suspended_for"`
}

// Session is the externally visible handle for one alignment run.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// Status is the current lifecycle state.
	Status SessionStatus `json:"status"`

	// StartedAt is when dispatch began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the session reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the total wall-clock time of the session.
	Duration time.Duration `json:"duration"`

	// Metadata is the descriptive record for observability.
	Metadata Metadata `json:"metadata"`

	// Summary counts dispatched work.
	Summary Summary `json:"summary"`

	// Cause is the terminal fault description for failed sessions.
	Cause string `json:"cause,omitempty"`
}

// Measurement is one sensor reading observed by the dispatcher.
type Measurement struct {
	// Device is the sensor name.
	Device string `json:"device"`

	// Value is the reading; meaningful only when Present is true.
	Value float64 `json:"value"`

	// Present is false when the sensor reported no signal.
	Present bool `json:"present"`

	// At is when the reading was taken.
	At time.Time `json:"at"`
}
