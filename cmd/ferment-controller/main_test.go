package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/ferment-controller/internal/config"
	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/mqtt"
	"github.com/sweeney/ferment-controller/internal/sim"
	"github.com/sweeney/ferment-controller/internal/status"
	"github.com/sweeney/ferment-controller/internal/telemetry"
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "Brewhouse")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "Brewhouse",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want connected", info.Status)
	}
	if info.Type != "" {
		t.Errorf("Type: got %q, want empty", info.Type)
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only runLoop's goroutine calls it.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// newDaemon wires a controller to a quiet thermal model with the beer at
// beer °C, publishing transitions to a fake publisher.
func newDaemon(t *testing.T, beer float32) (*daemon, *mqtt.FakePublisher, *sim.Model) {
	t.Helper()
	clock := ticks.NewCounter()
	ctrl, err := control.New(clock, control.DefaultSettings(), control.DefaultConstants())
	if err != nil {
		t.Fatalf("control.New: %v", err)
	}
	t.Cleanup(ctrl.Close)

	p := sim.DefaultParams()
	p.SensorNoise = 0
	p.BeerStart = beer
	model := sim.New(p)
	sim.Attach(ctrl, model)

	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(t0, status.Config{TickMs: 1000, Simulate: true})
	pipeline := telemetry.New(telemetry.DefaultSize)
	pipeline.Add("mqtt", telemetry.Events(pub))
	pipeline.Start()

	d := &daemon{
		ctrl:       ctrl,
		clock:      clock,
		plant:      model,
		timeScale:  1,
		publisher:  pub,
		mqttStatus: pub,
		tracker:    tracker,
		pipeline:   pipeline,
	}
	return d, pub, model
}

// runRunLoop sends nTicks ticks then signal, and waits for runLoop to
// return. The telemetry pipeline is drained before returning.
func runRunLoop(t *testing.T, d *daemon, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(d, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	err := <-errCh
	d.pipeline.Close()
	return err
}

func TestRunLoopShutdown(t *testing.T) {
	d, pub, _ := newDaemon(t, 20)
	clock := fakeClock(t0, time.Second)

	if err := runRunLoop(t, d, clock, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	system := pub.System()
	if len(system) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(system))
	}
	e := system[0]
	if e.Event != "SHUTDOWN" || e.Reason != "SIGTERM" || !e.Retained {
		t.Errorf("unexpected shutdown event: %+v", e)
	}
	var doc status.StatusJSON
	if err := json.Unmarshal(e.RawPayload, &doc); err != nil {
		t.Fatalf("shutdown payload: %v", err)
	}
	if doc.Status.State != "IDLE" {
		t.Errorf("State: got %q, want IDLE", doc.Status.State)
	}
	if !doc.Status.MQTT.Connected {
		t.Error("expected MQTT connected in shutdown payload")
	}
	if len(pub.Published()) != 0 {
		t.Errorf("expected no transitions at setpoint, got %d", len(pub.Published()))
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	d, pub, _ := newDaemon(t, 20)

	if err := runRunLoop(t, d, fakeClock(t0, time.Second), 0, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if names := pub.SystemNames(); len(names) != 1 || pub.System()[0].Reason != "SIGINT" {
		t.Errorf("unexpected system events: %v", pub.System())
	}
}

func TestRunLoopPublishesTransitions(t *testing.T) {
	d, pub, model := newDaemon(t, 21)

	if err := runRunLoop(t, d, fakeClock(t0, time.Second), 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := pub.Published()
	if len(events) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(events))
	}
	e := events[0]
	if e.Transition.From != control.StateIdle || e.Transition.To != control.StateCooling {
		t.Errorf("unexpected transition: %+v", e.Transition)
	}
	if !e.Cooler || e.Heater {
		t.Errorf("outputs: heater=%v cooler=%v", e.Heater, e.Cooler)
	}
	if e.Timestamp != t0.Add(time.Second) {
		t.Errorf("Timestamp: got %v, want %v", e.Timestamp, t0.Add(time.Second))
	}
	if !model.Cooler() {
		t.Error("expected the model's cooler to be on")
	}
}

func TestRunLoopAdvancesClockAndPlant(t *testing.T) {
	d, _, model := newDaemon(t, 20)
	d.timeScale = 60

	if err := runRunLoop(t, d, fakeClock(t0, time.Second), 10, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if got := d.clock.Seconds(); got != 600 {
		t.Errorf("clock: got %d s, want 600", got)
	}
	if got := model.Elapsed(); got != 10*time.Minute {
		t.Errorf("model elapsed: got %v, want 10m", got)
	}
}

func TestRunLoopUpdatesTracker(t *testing.T) {
	d, _, _ := newDaemon(t, 20)

	if err := runRunLoop(t, d, fakeClock(t0, time.Second), 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := d.tracker.Snapshot()
	if !snap.Ready {
		t.Error("expected tracker ready after ticks")
	}
	if snap.Ticks != 4 {
		t.Errorf("Ticks: got %d, want 4", snap.Ticks)
	}
	if snap.Control.Now != 4 {
		t.Errorf("Control.Now: got %d, want 4", snap.Control.Now)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTT connected")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: start, then +5m, +10m, +15m, +20m for the ticks. The
	// 15 minute heartbeat fires once, at +15m.
	d, pub, _ := newDaemon(t, 20)
	d.heartbeat = 15 * time.Minute

	if err := runRunLoop(t, d, fakeClock(t0, 5*time.Minute), 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	names := pub.SystemNames()
	if len(names) != 2 || names[0] != "HEARTBEAT" || names[1] != "SHUTDOWN" {
		t.Fatalf("system events: got %v, want [HEARTBEAT SHUTDOWN]", names)
	}
	hb := pub.System()[0]
	if hb.Timestamp != t0.Add(15*time.Minute) {
		t.Errorf("heartbeat timestamp: got %v", hb.Timestamp)
	}
	var doc status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &doc); err != nil {
		t.Fatalf("heartbeat payload: %v", err)
	}
	if doc.Status.Event != "HEARTBEAT" || !doc.Status.Ready {
		t.Errorf("unexpected heartbeat status: %+v", doc.Status)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	d, pub, _ := newDaemon(t, 20)

	if err := runRunLoop(t, d, fakeClock(t0, time.Hour), 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if names := pub.SystemNames(); len(names) != 1 || names[0] != "SHUTDOWN" {
		t.Errorf("system events: got %v, want [SHUTDOWN]", names)
	}
}

func TestRunLoopPublishErrorsAreNotFatal(t *testing.T) {
	d, pub, _ := newDaemon(t, 21)
	pub.PublishError = os.ErrDeadlineExceeded
	pub.PublishSystemError = os.ErrDeadlineExceeded

	if err := runRunLoop(t, d, fakeClock(t0, time.Second), 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if d.ctrl.Snapshot().State != control.StateCooling {
		t.Errorf("State: got %s, want COOLING", d.ctrl.Snapshot().State)
	}
}

func TestSimParams(t *testing.T) {
	c := config.Default().Simulator
	c.AmbientSwing = 2
	p := simParams(c)
	if p.Seed != c.Seed || p.Ambient != c.Ambient || p.AmbientSwing != 2 ||
		p.BeerCapacity != c.BeerCapacity || p.CoolerPower != c.CoolerPower || p.SensorNoise != c.SensorNoise {
		t.Errorf("simParams: got %+v from %+v", p, c)
	}
}

func TestCelsius(t *testing.T) {
	if got := celsius(temp.FromCelsius(19.75)); got != "19.75 °C" {
		t.Errorf("got %q", got)
	}
	if got := celsius(temp.Invalid); got != "n/a" {
		t.Errorf("got %q", got)
	}
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, []control.Device{
		{Function: "beer", Kind: "sim.Sensor", Connected: true, Value: "20.00"},
		{Function: "cooler", Kind: "sim.Output", Connected: true, Value: "false"},
	})
	want := "beer (sim.Sensor): 20.00\ncooler (sim.Output): false\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestOfflinePublisher(t *testing.T) {
	var p offline
	if err := p.Publish(mqtt.Event{}); err != nil {
		t.Error(err)
	}
	if err := p.PublishSystem(mqtt.SystemEvent{Event: "STARTUP"}); err != nil {
		t.Error(err)
	}
	if p.IsConnected() {
		t.Error("offline publisher reports connected")
	}
	if !strings.Contains(stateString(true), "ON") || stateString(false) != "OFF" {
		t.Error("stateString")
	}
}
