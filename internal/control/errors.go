package control

import "errors"

var (
	// ErrConfigOutOfRange is returned for a setting or constant outside its
	// valid range. The controller state is left unchanged.
	ErrConfigOutOfRange = errors.New("config out of range")

	// ErrSensorInvalid reports an invalid reading from the control sensor
	// on this tick. The state machine holds its state.
	ErrSensorInvalid = errors.New("control sensor reading invalid")

	// ErrSensorPersistentFault reports that invalid readings exceeded the
	// fault threshold and the controller forced itself OFF.
	ErrSensorPersistentFault = errors.New("control sensor persistently invalid")

	// ErrStorageWrite reports that persisting settings failed. Control
	// continues with the in-memory values.
	ErrStorageWrite = errors.New("settings storage write failed")

	// ErrUnknownCommand is returned for a command the controller does not
	// understand.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("controller closed")
)
