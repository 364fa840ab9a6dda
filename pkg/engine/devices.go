package engine

import (
	"github.com/openbeamline/beamwalk/pkg/device"
)

// Devices is the name-to-handle registry the dispatcher resolves commands
// against. Imagers are registered as both sensors and imagers, so read
// commands and insertion commands address them by the same name.
type Devices struct {
	actuators map[string]device.Actuator
	sensors   map[string]device.Sensor
	imagers   map[string]device.Imager
}

// NewDevices creates an empty registry.
func NewDevices() *Devices {
	return &Devices{
		actuators: make(map[string]device.Actuator),
		sensors:   make(map[string]device.Sensor),
		imagers:   make(map[string]device.Imager),
	}
}

// AddActuator registers an actuator under its own name.
func (d *Devices) AddActuator(a device.Actuator) *Devices {
	d.actuators[a.Name()] = a
	return d
}

// AddSensor registers a sensor under its own name.
func (d *Devices) AddSensor(s device.Sensor) *Devices {
	d.sensors[s.Name()] = s
	return d
}

// AddImager registers an imager as both an imager and a sensor.
func (d *Devices) AddImager(im device.Imager) *Devices {
	d.imagers[im.Name()] = im
	d.sensors[im.Name()] = im
	return d
}

// Actuator resolves an actuator by name.
func (d *Devices) Actuator(name string) (device.Actuator, error) {
	a, ok := d.actuators[name]
	if !ok {
		return nil, NewPermanentError("actuator not registered", nil).
			WithCode(ErrCodeUnknownDevice).
			WithDevice(name)
	}
	return a, nil
}

// Sensor resolves a sensor by name.
func (d *Devices) Sensor(name string) (device.Sensor, error) {
	s, ok := d.sensors[name]
	if !ok {
		return nil, NewPermanentError("sensor not registered", nil).
			WithCode(ErrCodeUnknownDevice).
			WithDevice(name)
	}
	return s, nil
}

// Imager resolves an imager by name.
func (d *Devices) Imager(name string) (device.Imager, error) {
	im, ok := d.imagers[name]
	if !ok {
		return nil, NewPermanentError("imager not registered", nil).
			WithCode(ErrCodeUnknownDevice).
			WithDevice(name)
	}
	return im, nil
}

// ActuatorNames returns the registered actuator names.
func (d *Devices) ActuatorNames() []string {
	names := make([]string, 0, len(d.actuators))
	for name := range d.actuators {
		names = append(names, name)
	}
	return names
}

// ImagerNames returns the registered imager names.
func (d *Devices) ImagerNames() []string {
	names := make([]string, 0, len(d.imagers))
	for name := range d.imagers {
		names = append(names, name)
	}
	return names
}
