// Command ferment-controller holds a fermentation chamber at its setpoint,
// switching a heater and a cooler from one-wire temperature probes, and
// reports its state over a serial link, MQTT and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/ferment-controller/internal/actuator"
	"github.com/sweeney/ferment-controller/internal/config"
	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/gpio"
	"github.com/sweeney/ferment-controller/internal/mqtt"
	"github.com/sweeney/ferment-controller/internal/protocol"
	"github.com/sweeney/ferment-controller/internal/recorder"
	"github.com/sweeney/ferment-controller/internal/sensor"
	"github.com/sweeney/ferment-controller/internal/serial"
	"github.com/sweeney/ferment-controller/internal/settings"
	"github.com/sweeney/ferment-controller/internal/sim"
	"github.com/sweeney/ferment-controller/internal/status"
	"github.com/sweeney/ferment-controller/internal/telemetry"
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
	"github.com/sweeney/ferment-controller/internal/web"
)

// Set with -ldflags "-X main.version=... -X main.revision=...".
var (
	version  = "dev"
	revision = "unknown"
)

const (
	serialMaxWait   = 30 * time.Second
	pruneInterval   = time.Hour
	w1PollInterval  = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "/etc/ferment-controller/config.yaml", "Configuration file")
	simulate := flag.Bool("simulate", false, "Run against the thermal model instead of hardware")
	printState := flag.Bool("print-state", false, "Print probe and relay state and exit")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	serialPort := flag.String("serial", "", "Host serial port (overrides config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "serial":
			cfg.Serial.Port = *serialPort
		}
	})

	if err := run(cfg, *simulate, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, simulate, printState bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Settings survive restarts; the simulator starts fresh every run.
	var store settings.Store = settings.NewFileStore(cfg.Control.SettingsFile)
	if simulate {
		store = settings.NewMemoryStore()
	}
	saved, savedConstants, err := store.Load()
	if err != nil {
		log.Printf("settings: %v, using defaults", err)
	}

	clock := ticks.NewCounter()
	ctrl, err := control.New(clock, saved, savedConstants)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}
	defer ctrl.Close()

	// Attach the process: the thermal model, or probes and relays.
	var (
		plant   *sim.Model
		outputs []actuator.Actuator
	)
	if simulate {
		plant = sim.New(simParams(cfg.Simulator))
		sim.Attach(ctrl, plant)
		log.Printf("simulation: seed=%d ambient=%.1f time-scale=%.0fx", cfg.Simulator.Seed, cfg.Simulator.Ambient, cfg.Simulator.TimeScale)
	} else {
		hw, err := attachHardware(ctx, ctrl, cfg.Hardware)
		if err != nil {
			return err
		}
		defer hw.bank.Close()
		outputs = hw.relays

		if printState {
			printHardware(os.Stdout, hw)
			return nil
		}
	}
	if printState {
		ctrl.Tick()
		printDevices(os.Stdout, ctrl.Devices())
		return nil
	}
	defer func() {
		for _, a := range outputs {
			actuator.ForceOff(a)
		}
	}()

	// Initialize MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = offline{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			log.Printf("mqtt: %v, continuing and retrying in the background", err)
		}
		if p != nil {
			publisher = p
		}
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      cfg.Control.TickPeriod.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		SerialPort:  cfg.Serial.Port,
		Simulate:    simulate,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Flight recorder
	var history web.History
	var rec *recorder.Recorder
	if cfg.Recorder.Path != "" {
		rec, err = recorder.Open(cfg.Recorder.Path, cfg.Recorder.Interval)
		if err != nil {
			return fmt.Errorf("init recorder: %w", err)
		}
		defer rec.Close()
		history = rec
		go prune(ctx, rec, cfg.Recorder.Retention)
		log.Printf("recording to %s every %v", cfg.Recorder.Path, cfg.Recorder.Interval)
	}

	// Start HTTP status server
	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, tracker, history)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			srv.Shutdown(sctx)
		}()
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	// Telemetry consumers run off the control loop.
	pipeline := telemetry.New(telemetry.DefaultSize)
	pipeline.Add("mqtt", telemetry.Events(publisher))
	if srv != nil {
		pipeline.Add("stream", telemetry.Stream(srv, tracker))
	}
	if rec != nil {
		pipeline.Add("recorder", telemetry.Record(rec))
	}
	pipeline.Add("settings", telemetry.NewPersister(store, ctrl, publisher, tracker, saved, savedConstants))
	pipeline.Start()
	defer func() {
		pipeline.Close()
		if n := pipeline.Dropped(); n > 0 {
			log.Printf("telemetry: %d reports dropped", n)
		}
	}()

	// Host link
	if cfg.Serial.Port != "" {
		board := "rpi"
		if simulate {
			board = "sim"
		}
		proc := protocol.NewProcessor(ctrl, protocol.Version{
			Release:  version,
			Revision: revision,
			Board:    board,
			Simulate: simulate,
		})
		open := func() (io.ReadWriteCloser, error) {
			return serial.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
		}
		// The link must stop before the deferred ctrl.Close.
		serialCtx, stopSerial := context.WithCancel(ctx)
		serialDone := make(chan struct{})
		go func() {
			defer close(serialDone)
			serial.Serve(serialCtx, open, proc, serialMaxWait)
		}()
		defer func() {
			stopSerial()
			<-serialDone
		}()
		log.Printf("serial link on %s at %d baud", cfg.Serial.Port, cfg.Serial.BaudRate)
	}

	log.Printf("started: tick=%v mode=%s broker=%s heartbeat=%v", cfg.Control.TickPeriod, saved.Mode, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	ticker := time.NewTicker(cfg.Control.TickPeriod)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loop := &daemon{
		ctrl:       ctrl,
		clock:      clock,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		pipeline:   pipeline,
		heartbeat:  cfg.MQTT.Heartbeat,
		timeScale:  1,
	}
	if plant != nil {
		loop.plant = plant
		loop.timeScale = cfg.Simulator.TimeScale
	}
	ctrl.SetSamplePeriod(time.Duration(float64(cfg.Control.TickPeriod) * loop.timeScale))
	return runLoop(loop, time.Now, ticker.C, sigCh)
}

// plant is a simulated process advanced alongside the tick counter.
type plant interface {
	Step(d time.Duration)
}

// daemon is what the control loop drives each tick.
type daemon struct {
	ctrl       *control.Controller
	clock      *ticks.Counter
	plant      plant
	timeScale  float64
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	pipeline   *telemetry.Pipeline
	heartbeat  time.Duration
}

func runLoop(d *daemon, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	lastHeartbeat := startTime
	var sensorErr error

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if d.tracker != nil {
				if d.mqttStatus != nil {
					d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
				}
				snap := d.tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			elapsed := time.Duration(float64(t.Sub(startTime)) * d.timeScale)
			if d.plant != nil {
				if step := elapsed - d.clock.Duration(); step > 0 {
					d.plant.Step(step)
				}
			}
			d.clock.AdvanceTo(elapsed)

			res := d.ctrl.Tick()
			for _, e := range res.Events {
				log.Printf("event: %s -> %s (%s)", e.From, e.To, e.Reason)
			}
			for _, err := range res.Rejected {
				log.Printf("command rejected: %v", err)
			}
			if (res.SensorErr == nil) != (sensorErr == nil) {
				if res.SensorErr != nil {
					log.Printf("control probe: %v", res.SensorErr)
				} else {
					log.Printf("control probe: reading valid again")
				}
			}
			sensorErr = res.SensorErr

			snap := d.ctrl.Snapshot()
			if d.tracker != nil {
				d.tracker.Update(snap)
				if d.mqttStatus != nil {
					d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
				}
			}
			if d.pipeline != nil {
				d.pipeline.Push(telemetry.Report{Time: t, Result: res, Snapshot: snap})
			}

			if d.heartbeat > 0 && t.Sub(lastHeartbeat) >= d.heartbeat {
				lastHeartbeat = t
				log.Printf("heartbeat: uptime=%v state=%s beer=%s fridge=%s cycles=%d/%d",
					t.Sub(startTime).Truncate(time.Second), snap.State, snap.Beer.Slow, snap.Fridge.Slow,
					snap.Cycles.Heat, snap.Cycles.Cool)

				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if d.tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						d.tracker.SetNetwork(net)
					}
					hbEvent.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := d.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// hardware holds what attachHardware requested.
type hardware struct {
	bank    gpio.Bank
	relays  []actuator.Actuator
	names   []string
	door    *gpio.Door
	probes  []*sensor.W1
	purpose []string
}

// attachHardware requests the configured relays and door pin and starts
// polling the one-wire probes.
func attachHardware(ctx context.Context, ctrl *control.Controller, hw config.HardwareConfig) (*hardware, error) {
	bank, err := gpio.NewRealBank(hw.Chip)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	h := &hardware{bank: bank}

	relays := []struct {
		role control.ActuatorRole
		cfg  config.RelayConfig
	}{
		{control.ActuatorHeater, hw.Heater},
		{control.ActuatorCooler, hw.Cooler},
		{control.ActuatorFan, hw.Fan},
		{control.ActuatorLight, hw.Light},
	}
	for _, r := range relays {
		if r.cfg.Pin < 0 {
			continue
		}
		relay, err := gpio.NewRelay(bank, r.role.String(), r.cfg.Pin, r.cfg.Invert)
		if err != nil {
			bank.Close()
			return nil, err
		}
		ctrl.AttachActuator(r.role, relay)
		h.relays = append(h.relays, relay)
		h.names = append(h.names, r.role.String())
	}

	if hw.DoorPin >= 0 {
		door, err := gpio.NewDoor(bank, hw.DoorPin, false)
		if err != nil {
			bank.Close()
			return nil, err
		}
		ctrl.AttachDoor(door)
		h.door = door
	}

	probes := []struct {
		role control.SensorRole
		id   string
	}{
		{control.SensorBeer, hw.BeerID},
		{control.SensorFridge, hw.FridgeID},
		{control.SensorRoom, hw.RoomID},
	}
	for _, p := range probes {
		if p.id == "" {
			continue
		}
		w := sensor.NewW1(hw.W1Dir, p.id, 0)
		if err := w.Poll(); err != nil {
			log.Printf("w1: %s probe %s: %v", p.role, p.id, err)
		}
		go w.Run(ctx, w1PollInterval)
		ctrl.AttachSensor(p.role, w)
		h.probes = append(h.probes, w)
		h.purpose = append(h.purpose, p.role.String())
	}
	if len(h.probes) == 0 {
		if ids, err := sensor.ListW1Devices(hw.W1Dir); err == nil && len(ids) > 0 {
			log.Printf("w1: no probes configured; found %v", ids)
		}
	}
	return h, nil
}

func printHardware(w io.Writer, h *hardware) {
	for i, p := range h.probes {
		fmt.Fprintf(w, "%s (%s): %s\n", h.purpose[i], p.ID(), celsius(p.Read()))
	}
	for i, r := range h.relays {
		fmt.Fprintf(w, "%s: %s\n", h.names[i], stateString(r.IsActive()))
	}
	if h.door != nil {
		door := "closed"
		if h.door.Sense() {
			door = "open"
		}
		fmt.Fprintf(w, "door: %s\n", door)
	}
}

func printDevices(w io.Writer, devices []control.Device) {
	for _, d := range devices {
		fmt.Fprintf(w, "%s (%s): %s\n", d.Function, d.Kind, d.Value)
	}
}

func celsius(t temp.Temp) string {
	if !t.Valid() {
		return "n/a"
	}
	return t.Format(2) + " °C"
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func simParams(c config.SimulatorConfig) sim.Params {
	return sim.Params{
		Seed:         c.Seed,
		Ambient:      c.Ambient,
		AmbientSwing: c.AmbientSwing,
		BeerStart:    c.BeerStart,
		FridgeStart:  c.FridgeStart,
		BeerCapacity: c.BeerCapacity,
		AirCapacity:  c.AirCapacity,
		BeerTransfer: c.BeerTransfer,
		WallTransfer: c.WallTransfer,
		HeaterPower:  c.HeaterPower,
		CoolerPower:  c.CoolerPower,
		SensorNoise:  c.SensorNoise,
	}
}

// prune drops recorded data older than retention once an hour.
func prune(ctx context.Context, rec *recorder.Recorder, retention time.Duration) {
	if retention <= 0 {
		return
	}
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		n, err := rec.Prune(time.Now().Add(-retention))
		switch {
		case err != nil:
			log.Printf("recorder: %v", err)
		case n > 0:
			log.Printf("recorder: pruned %d rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// offline stands in for MQTT when no broker is configured.
type offline struct{}

func (offline) Publish(mqtt.Event) error             { return nil }
func (offline) PublishSystem(mqtt.SystemEvent) error { return nil }
func (offline) Close() error                         { return nil }
func (offline) IsConnected() bool                    { return false }

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
