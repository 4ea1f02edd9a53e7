package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
)

func coolingSnapshot() control.Snapshot {
	return control.Snapshot{
		Now:       120,
		State:     control.StateCooling,
		Settings:  control.DefaultSettings(),
		Constants: control.DefaultConstants(),
		Beer: control.Reading{
			Attached:  true,
			Connected: true,
			Raw:       temp.FromCelsius(20.6),
			Fast:      temp.FromCelsius(20.6),
			Slow:      temp.FromCelsius(20.6),
			Slope:     temp.DiffFromCelsius(-0.25),
		},
		Fridge: control.Reading{
			Attached:  true,
			Connected: true,
			Raw:       temp.FromCelsius(12),
			Fast:      temp.FromCelsius(12),
			Slow:      temp.FromCelsius(12),
		},
		Room:      control.Reading{Raw: temp.Invalid, Fast: temp.Invalid, Slow: temp.Invalid},
		Outputs:   control.Outputs{Cooler: true, Fan: true},
		Faults:    control.Faults{InvalidReadings: 2},
		Cycles:    control.Cycles{Heat: 1, Cool: 3},
		Variables: control.Variables{FridgeEstimate: temp.FromCelsius(15)},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 1000, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TickMs != 1000 {
		t.Errorf("Config.TickMs: got %d, want 1000", snap.Config.TickMs)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.Ready {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Update(coolingSnapshot())
	tr.Update(coolingSnapshot())

	snap := tr.Snapshot()
	if snap.Control.State != control.StateCooling {
		t.Errorf("State: got %q, want COOLING", snap.Control.State)
	}
	if !snap.Ready {
		t.Error("expected Ready=true")
	}
	if snap.Ticks != 2 {
		t.Errorf("Ticks: got %d, want 2", snap.Ticks)
	}
	if snap.Control.Cycles.Cool != 3 {
		t.Errorf("Cycles.Cool: got %d, want 3", snap.Control.Cycles.Cool)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})
	got := tr.Snapshot().Network
	if got == nil || got.IP != "192.168.1.42" {
		t.Errorf("Network: got %+v", got)
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Now().Add(-10 * time.Second)
	tr := NewTracker(start, Config{})

	if up := tr.Snapshot().Uptime(); up < 10*time.Second {
		t.Errorf("Uptime: got %v, want >= 10s", up)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Control:       coolingSnapshot(),
		Ready:         true,
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{TickMs: 1000, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPAddr: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.State != "COOLING" {
		t.Errorf("State: got %q, want COOLING", s.State)
	}
	if s.Mode != "b" {
		t.Errorf("Mode: got %q, want b", s.Mode)
	}
	if s.Beer.Temp == nil || *s.Beer.Temp != "20.60" {
		t.Errorf("Beer.Temp: got %v, want 20.60", s.Beer.Temp)
	}
	if s.Beer.Setpoint == nil || *s.Beer.Setpoint != "20.00" {
		t.Errorf("Beer.Setpoint: got %v, want 20.00", s.Beer.Setpoint)
	}
	if s.Fridge.Setpoint == nil || *s.Fridge.Setpoint != "15.00" {
		t.Errorf("Fridge.Setpoint: got %v, want 15.00", s.Fridge.Setpoint)
	}
	if s.Beer.Slope != "-0.25" {
		t.Errorf("Beer.Slope: got %q, want -0.25", s.Beer.Slope)
	}
	if s.Room.Temp != nil {
		t.Errorf("Room.Temp: got %v, want null", *s.Room.Temp)
	}
	if !s.Outputs.Cooler || !s.Outputs.Fan || s.Outputs.Heater {
		t.Errorf("Outputs: got %+v", s.Outputs)
	}
	if s.Colour != colourCool.Hex() {
		t.Errorf("Colour: got %s, want %s", s.Colour, colourCool.Hex())
	}
	if s.Faults.InvalidReadings != 2 {
		t.Errorf("Faults.InvalidReadings: got %d, want 2", s.Faults.InvalidReadings)
	}
	if s.Cycles.Cool != 3 || s.Cycles.Heat != 1 {
		t.Errorf("Cycles: got %+v", s.Cycles)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
	if s.Network != nil {
		t.Error("expected network omitted when nil")
	}
}

func TestFormatJSONNotReady(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.State != "UNKNOWN" {
		t.Errorf("State: got %q, want UNKNOWN", parsed.Status.State)
	}
}

func TestFormatCompactIsOneLine(t *testing.T) {
	snap := Snapshot{Control: coolingSnapshot(), Ready: true}
	data := FormatCompact(snap)
	if strings.Contains(string(data), "\n") {
		t.Errorf("compact status contains a newline: %s", data)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Control:   coolingSnapshot(),
		Ready:     true,
		StartTime: start,
		Now:       start.Add(time.Hour),
		Network:   &NetworkInfo{Type: "wifi", IP: "10.0.0.2", SSID: "Brewery"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.Network == nil || parsed.Status.Network.SSID != "Brewery" {
		t.Errorf("Network: got %+v", parsed.Status.Network)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(Snapshot{Ready: true}, "STARTUP", "")
	if strings.Contains(string(data), `"reason"`) {
		t.Errorf("expected reason omitted: %s", data)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(coolingSnapshot())
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = FormatJSON(tr.Snapshot())
		}
	}()

	wg.Wait()
}
