// Package sensor defines the temperature and switch inputs the controller
// reads each tick, plus the in-process implementations.
package sensor

import (
	"sync"

	"github.com/sweeney/ferment-controller/internal/temp"
)

// Sensor is a temperature input. Read must not block; a disconnected
// sensor returns temp.Invalid.
type Sensor interface {
	Read() temp.Temp
	IsConnected() bool
}

// Switch is a binary input such as a door contact. Sense reports true
// when the switch is active (door open).
type Switch interface {
	Sense() bool
}

// External holds a value pushed from outside the controller, for
// example by the host.
type External struct {
	mu        sync.Mutex
	value     temp.Temp
	connected bool
}

// NewExternal returns a disconnected external sensor.
func NewExternal() *External {
	return &External{value: temp.Invalid}
}

// Set stores a reading. An invalid value disconnects the sensor.
func (e *External) Set(v temp.Temp) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = v
	e.connected = v.Valid()
}

// Read returns the last value set.
func (e *External) Read() temp.Temp {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.connected {
		return temp.Invalid
	}
	return e.value
}

// IsConnected reports whether a valid value has been set.
func (e *External) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Mock is a sensor that drifts up while heating, down while cooling and
// holds otherwise. It stands in for hardware on a bench.
type Mock struct {
	mu        sync.Mutex
	value     temp.Temp
	step      temp.Diff
	heating   func() bool
	cooling   func() bool
	connected bool
}

// NewMock returns a connected mock starting at initial that moves by step
// on every Read in the direction reported by heating and cooling.
// Either func may be nil.
func NewMock(initial temp.Temp, step temp.Diff, heating, cooling func() bool) *Mock {
	return &Mock{
		value:     initial,
		step:      step,
		heating:   heating,
		cooling:   cooling,
		connected: true,
	}
}

// SetConnected simulates plugging or unplugging the sensor.
func (m *Mock) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// Read advances the drift and returns the new value.
func (m *Mock) Read() temp.Temp {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return temp.Invalid
	}
	if m.heating != nil && m.heating() {
		m.value = m.value.Add(m.step)
	}
	if m.cooling != nil && m.cooling() {
		m.value = m.value.Add(-m.step)
	}
	return m.value
}

// IsConnected reports the simulated connection state.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}
