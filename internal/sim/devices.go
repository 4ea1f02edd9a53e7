package sim

import (
	"github.com/sweeney/ferment-controller/internal/actuator"
	"github.com/sweeney/ferment-controller/internal/sensor"
	"github.com/sweeney/ferment-controller/internal/temp"
)

// Sensor reads one probe of a model.
type Sensor struct {
	m     *Model
	probe Probe
}

var _ sensor.Sensor = (*Sensor)(nil)

// Sensor returns a controller input reading probe.
func (m *Model) Sensor(probe Probe) *Sensor {
	return &Sensor{m: m, probe: probe}
}

// Read samples the probe with noise, or returns temp.Invalid while it is
// disconnected.
func (s *Sensor) Read() temp.Temp {
	return s.m.read(s.probe)
}

// IsConnected reports whether the probe is plugged in.
func (s *Sensor) IsConnected() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return !s.m.disconnected[s.probe]
}

// Output drives the model's heater or cooler.
type Output struct {
	m      *Model
	heater bool
}

var _ actuator.Actuator = (*Output)(nil)

// HeaterOutput returns the actuator switching the heating element.
func (m *Model) HeaterOutput() *Output {
	return &Output{m: m, heater: true}
}

// CoolerOutput returns the actuator switching the compressor.
func (m *Model) CoolerOutput() *Output {
	return &Output{m: m}
}

// SetActive switches the output.
func (o *Output) SetActive(active bool) {
	o.m.setOutput(o.heater, active)
}

// IsActive reports the output state.
func (o *Output) IsActive() bool {
	if o.heater {
		return o.m.Heater()
	}
	return o.m.Cooler()
}
