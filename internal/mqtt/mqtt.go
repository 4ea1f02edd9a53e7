// Package mqtt publishes controller telemetry, with an abstraction for
// testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "ferment/controller"

// EventsTopic returns the topic for state transitions under prefix.
func EventsTopic(prefix string) string {
	return topicPrefix(prefix) + "/events"
}

// SystemTopic returns the topic for lifecycle and fault events under prefix.
func SystemTopic(prefix string) string {
	return topicPrefix(prefix) + "/system"
}

func topicPrefix(prefix string) string {
	if prefix == "" {
		return DefaultTopicPrefix
	}
	return prefix
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a state transition. Failures are returned, never fatal.
	Publish(event Event) error

	// PublishSystem sends a lifecycle or fault event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is a controller state transition with the readings that caused it.
type Event struct {
	Timestamp  time.Time
	Transition control.Event
	Mode       control.Mode
	Control    temp.Temp
	Setpoint   temp.Temp
	Heater     bool
	Cooler     bool
}

// NewEvent pairs a transition with the snapshot taken at the end of its
// tick.
func NewEvent(at time.Time, e control.Event, snap control.Snapshot) Event {
	return Event{
		Timestamp:  at,
		Transition: e,
		Mode:       snap.Settings.Mode,
		Control:    snap.ProcessValue(),
		Setpoint:   snap.Setpoint(),
		Heater:     snap.Outputs.Heater,
		Cooler:     snap.Outputs.Cooler,
	}
}

// SystemEvent is a lifecycle event such as STARTUP, SHUTDOWN, HEARTBEAT or
// STORAGE_FAULT.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // pre-formatted JSON returned as is by FormatSystemPayload
	Retained   bool
}

// Payload is the MQTT message for a state transition.
type Payload struct {
	Controller ControllerPayload `json:"controller"`
}

// ControllerPayload contains the transition details.
type ControllerPayload struct {
	Timestamp   string  `json:"timestamp"`
	Event       string  `json:"event"`
	From        string  `json:"from"`
	Reason      string  `json:"reason,omitempty"`
	Tick        uint32  `json:"tick"`
	Mode        string  `json:"mode"`
	Temperature *string `json:"temperature"`
	Setpoint    *string `json:"setpoint"`
	Heater      bool    `json:"heater"`
	Cooler      bool    `json:"cooler"`
}

func formatTemp(t temp.Temp) *string {
	if !t.Valid() {
		return nil
	}
	s := t.Format(2)
	return &s
}

// FormatPayload creates the JSON payload for a transition.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Controller: ControllerPayload{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
			Event:       string(event.Transition.To),
			From:        string(event.Transition.From),
			Reason:      event.Transition.Reason,
			Tick:        uint32(event.Transition.At),
			Mode:        string(event.Mode),
			Temperature: formatTemp(event.Control),
			Setpoint:    formatTemp(event.Setpoint),
			Heater:      event.Heater,
			Cooler:      event.Cooler,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the message for events that carry no status snapshot,
// such as the LWT and RECONNECTED.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// A set RawPayload is returned unchanged.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
