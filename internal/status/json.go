package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Mode          string       `json:"mode"`
	Ready         bool         `json:"ready"`
	Colour        string       `json:"colour"`
	Deviation     string       `json:"deviation_colour"`
	Beer          ProbeJSON    `json:"beer"`
	Fridge        ProbeJSON    `json:"fridge"`
	Room          ProbeJSON    `json:"room"`
	Outputs       OutputsJSON  `json:"outputs"`
	Door          DoorJSON     `json:"door"`
	WaitSeconds   uint32       `json:"wait_seconds"`
	Faults        FaultsJSON   `json:"faults"`
	Cycles        CyclesJSON   `json:"cycles"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ProbeJSON is one temperature channel. Temperatures are strings with two
// decimals, null when the probe has no valid reading.
type ProbeJSON struct {
	Connected bool    `json:"connected"`
	Temp      *string `json:"temp"`
	Setpoint  *string `json:"setpoint,omitempty"`
	Slope     string  `json:"slope"`
}

// OutputsJSON reports every actuator.
type OutputsJSON struct {
	Heater bool `json:"heater"`
	Cooler bool `json:"cooler"`
	Fan    bool `json:"fan"`
	Light  bool `json:"light"`
}

// DoorJSON reports the door switch.
type DoorJSON struct {
	Attached bool `json:"attached"`
	Open     bool `json:"open"`
}

// FaultsJSON reports sensor and storage faults.
type FaultsJSON struct {
	InvalidReadings    uint32 `json:"invalid_readings"`
	ConsecutiveInvalid uint32 `json:"consecutive_invalid"`
	SensorFault        bool   `json:"sensor_fault"`
	StorageFailures    uint32 `json:"storage_failures"`
	StorageFault       bool   `json:"storage_fault"`
}

// CyclesJSON counts completed actuator runs.
type CyclesJSON struct {
	Heat int `json:"heat"`
	Cool int `json:"cool"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	SerialPort  string `json:"serial_port,omitempty"`
	Simulate    bool   `json:"simulate"`
}

// FormatTemp renders t with two decimals, or nil when invalid.
func FormatTemp(t temp.Temp) *string {
	if !t.Valid() {
		return nil
	}
	s := t.Format(2)
	return &s
}

func probe(r control.Reading, setpoint temp.Temp) ProbeJSON {
	return ProbeJSON{
		Connected: r.Connected,
		Temp:      FormatTemp(r.Slow),
		Setpoint:  FormatTemp(setpoint),
		Slope:     r.Slope.String(),
	}
}

// Inner returns the status details for snap.
func Inner(snap Snapshot) StatusInner {
	c := snap.Control
	state := string(c.State)
	if !snap.Ready || state == "" {
		state = "UNKNOWN"
	}

	beerSet, fridgeSet := temp.Invalid, temp.Invalid
	switch c.Settings.Mode {
	case control.ModeBeerConstant:
		beerSet = c.Settings.BeerSetting
		fridgeSet = c.Variables.FridgeEstimate
	case control.ModeFridgeConstant:
		fridgeSet = c.Settings.FridgeSetting
	}

	inner := StatusInner{
		State:         state,
		Mode:          string(c.Settings.Mode),
		Ready:         snap.Ready,
		Colour:        StateColour(c.State).Hex(),
		Deviation:     deviation(c).Hex(),
		Beer:          probe(c.Beer, beerSet),
		Fridge:        probe(c.Fridge, fridgeSet),
		Room:          probe(c.Room, temp.Invalid),
		Outputs:       OutputsJSON(c.Outputs),
		Door:          DoorJSON{Attached: c.DoorAttached, Open: c.DoorOpen},
		WaitSeconds:   uint32(c.WaitTime),
		Faults:        FaultsJSON(c.Faults),
		Cycles:        CyclesJSON(c.Cycles),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			SerialPort:  snap.Config.SerialPort,
			Simulate:    snap.Config.Simulate,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Inner(snap)}, "", "  ")
	return data
}

// FormatCompact returns the status on a single line, for the SSE stream.
func FormatCompact(snap Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{Status: Inner(snap)})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := Inner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
