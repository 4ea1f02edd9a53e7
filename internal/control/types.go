// Package control contains the fermentation temperature controller: its
// settings and constants, and the state machine that drives the heater and
// cooler from filtered sensor readings.
//
// This package does no I/O and never reads the wall clock. Time comes from
// an injected ticks.Source advanced by the caller once per tick, and every
// external effect goes through the sensor and actuator interfaces.
package control

import (
	"github.com/sweeney/ferment-controller/internal/actuator"
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// State is the controller's operating state.
type State string

const (
	StateIdle          State = "IDLE"
	StateOff           State = "OFF"
	StateDoorOpen      State = "DOOR_OPEN"
	StateHeating       State = "HEATING"
	StateCooling       State = "COOLING"
	StateWaitingToCool State = "WAITING_TO_COOL"
	StateWaitingToHeat State = "WAITING_TO_HEAT"
)

// Heating reports whether the heater is driven in s.
func (s State) Heating() bool {
	return s == StateHeating || s == StateWaitingToHeat
}

// Cooling reports whether the cooler is driven in s.
func (s State) Cooling() bool {
	return s == StateCooling || s == StateWaitingToCool
}

// Mode selects which temperature is controlled.
type Mode string

const (
	// ModeBeerConstant holds the beer at BeerSetting.
	ModeBeerConstant Mode = "b"
	// ModeFridgeConstant holds the fridge air at FridgeSetting.
	ModeFridgeConstant Mode = "f"
	// ModeOff keeps all outputs off.
	ModeOff Mode = "o"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeBeerConstant, ModeFridgeConstant, ModeOff:
		return true
	}
	return false
}

// SensorRole names a temperature input.
type SensorRole int

const (
	SensorBeer SensorRole = iota
	SensorFridge
	SensorRoom
	numSensorRoles
)

func (r SensorRole) String() string {
	switch r {
	case SensorBeer:
		return "beer"
	case SensorFridge:
		return "fridge"
	case SensorRoom:
		return "room"
	}
	return "unknown"
}

// ActuatorRole names an output.
type ActuatorRole int

const (
	ActuatorHeater ActuatorRole = iota
	ActuatorCooler
	ActuatorFan
	ActuatorLight
	numActuatorRoles
)

func (r ActuatorRole) String() string {
	switch r {
	case ActuatorHeater:
		return "heater"
	case ActuatorCooler:
		return "cooler"
	case ActuatorFan:
		return "fan"
	case ActuatorLight:
		return "light"
	}
	return "unknown"
}

// Event is a state transition.
type Event struct {
	At     ticks.Seconds
	From   State
	To     State
	Reason string
}

// Faults counts sensor and storage problems.
type Faults struct {
	// Invalid control readings since start.
	InvalidReadings uint32
	// Invalid control readings since the last valid one.
	ConsecutiveInvalid uint32
	// Set when ConsecutiveInvalid exceeded the threshold. Cleared by resume.
	SensorFault bool
	// Failed settings writes since start.
	StorageFailures uint32
	// Set while the last settings write failed.
	StorageFault bool
}

// Cycles counts completed actuator runs since start.
type Cycles struct {
	Heat int
	Cool int
}

// Variables are the informational control quantities, all fixed point.
type Variables struct {
	BeerDiff       temp.Diff
	DiffIntegral   temp.Long
	BeerSlope      temp.Diff
	P              temp.Diff
	I              temp.Diff
	D              temp.Diff
	FridgeEstimate temp.Temp
}

// Reading is the filtered view of one sensor.
type Reading struct {
	Attached  bool
	Connected bool
	Raw       temp.Temp
	Fast      temp.Temp
	Slow      temp.Temp
	Slope     temp.Diff
}

// Outputs is the state of every actuator.
type Outputs struct {
	Heater bool
	Cooler bool
	Fan    bool
	Light  bool
}

// Snapshot is a consistent copy of the controller taken at the end of a
// tick. It is safe to use from any goroutine.
type Snapshot struct {
	Now            ticks.Seconds
	State          State
	Settings       Settings
	Constants      Constants
	Beer           Reading
	Fridge         Reading
	Room           Reading
	DoorAttached   bool
	DoorOpen       bool
	Outputs        Outputs
	HeaterTimer    actuator.Timer
	CoolerTimer    actuator.Timer
	LastTransition ticks.Seconds
	// WaitTime is the remaining minimum-run time in a WAITING_TO_* state.
	WaitTime  ticks.Seconds
	Variables Variables
	Faults    Faults
	Cycles    Cycles
}

// Setpoint returns the target for the active mode, or temp.Invalid when off.
func (s Snapshot) Setpoint() temp.Temp {
	switch s.Settings.Mode {
	case ModeBeerConstant:
		return s.Settings.BeerSetting
	case ModeFridgeConstant:
		return s.Settings.FridgeSetting
	}
	return temp.Invalid
}

// ProcessValue returns the filtered temperature being controlled.
func (s Snapshot) ProcessValue() temp.Temp {
	if s.Settings.Mode == ModeFridgeConstant {
		return s.Fridge.Slow
	}
	return s.Beer.Slow
}

// Result describes what happened during one tick.
type Result struct {
	Now    ticks.Seconds
	State  State
	Events []Event
	// SettingsChanged is set when settings or constants changed and should
	// be persisted.
	SettingsChanged bool
	// SensorErr is ErrSensorInvalid or ErrSensorPersistentFault when the
	// control reading was unusable this tick.
	SensorErr error
	// Rejected holds queued commands that failed validation when applied.
	Rejected []error
}

// Device describes one attached input or output.
type Device struct {
	Function  string `json:"function"`
	Kind      string `json:"kind"`
	Connected bool   `json:"connected"`
	Value     string `json:"value"`
}
