// Package stream defines the command stream model for beamline automation
// sequences: atomic commands, lazily-evaluated plans that produce them, and
// combinators for composing plans.
package stream

import (
	"time"
)

// Kind identifies the type of an atomic command in a plan stream.
type Kind string

const (
	// KindCheckpoint marks a synchronization point. Checkpoints are the only
	// places where branching may occur and where suspension takes effect.
	KindCheckpoint Kind = "checkpoint"

	// KindSetActuator commands an actuator to move to an absolute target.
	KindSetActuator Kind = "set_actuator"

	// KindReadSensor requests a measurement from a sensor.
	KindReadSensor Kind = "read_sensor"

	// KindPrepImager inserts or removes an imaging device from the beam.
	KindPrepImager Kind = "prep_imager"

	// KindNull is a no-op command. It flows through the stream like any
	// other command but has no device effect.
	KindNull Kind = "null"
)

// Command is an atomic instruction produced by a Plan and consumed by the
// dispatch loop one at a time.
type Command struct {
	// Kind is the command tag.
	Kind Kind `json:"kind"`

	// Device names the device the command addresses, if any.
	Device string `json:"device,omitempty"`

	// Target is the absolute setpoint for set_actuator commands.
	Target float64 `json:"target,omitempty"`

	// Insert selects insert (true) or remove (false) for prep_imager
	// commands.
	Insert bool `json:"insert,omitempty"`

	// Timeout bounds the physical operation for commands that wait on
	// hardware. Zero means the dispatcher's default applies.
	Timeout time.Duration `json:"timeout,omitempty"`

	// HasStop indicates the in-flight operation may be explicitly stopped
	// on cancellation rather than allowed to complete.
	HasStop bool `json:"has_stop,omitempty"`
}

// Checkpoint returns a checkpoint command.
func Checkpoint() Command {
	return Command{Kind: KindCheckpoint}
}

// Null returns a no-op command.
func Null() Command {
	return Command{Kind: KindNull}
}

// SetActuator returns a move command for the named actuator.
func SetActuator(device string, target float64, timeout time.Duration) Command {
	return Command{Kind: KindSetActuator, Device: device, Target: target, Timeout: timeout}
}

// ReadSensor returns a measurement command for the named sensor.
func ReadSensor(device string) Command {
	return Command{Kind: KindReadSensor, Device: device}
}

// PrepImager returns an insert/remove command for the named imager.
func PrepImager(device string, insert bool, timeout time.Duration) Command {
	return Command{Kind: KindPrepImager, Device: device, Insert: insert, Timeout: timeout}
}
