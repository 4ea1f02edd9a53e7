package control

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eapache/channels"

	"github.com/sweeney/ferment-controller/internal/actuator"
	"github.com/sweeney/ferment-controller/internal/filter"
	"github.com/sweeney/ferment-controller/internal/sensor"
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// Controller owns the sensors, filters, actuators and state machine.
//
// Tick must be called from a single goroutine. Submit, Snapshot, Devices
// and ReportStorage may be called from any goroutine.
type Controller struct {
	mu    sync.Mutex
	clock ticks.Source
	queue *channels.InfiniteChannel

	cfg config
	// pending is cfg with every queued command applied. Submit and
	// Preview work against it so commands in one tick build on each other.
	pending config
	closed  bool

	sensors  [numSensorRoles]sensor.Sensor
	filters  [numSensorRoles]*filter.Filter
	raw      [numSensorRoles]temp.Temp
	door     sensor.Switch
	doorOpen bool

	outputs [numActuatorRoles]actuator.Actuator
	// timers are indexed by ActuatorHeater and ActuatorCooler.
	timers [2]actuator.Timer

	state          State
	lastTransition ticks.Seconds
	faults         Faults
	cycles         Cycles
	vars           Variables
	lastIntegrate  ticks.Seconds

	snap Snapshot
}

// New creates a controller with no sensors or actuators attached.
// It fails with ErrConfigOutOfRange if settings or constants are invalid.
func New(clock ticks.Source, settings Settings, constants Constants) (*Controller, error) {
	cfg := config{settings: settings, constants: constants, resumeMode: ModeBeerConstant}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		clock: clock,
		queue: channels.NewInfiniteChannel(),
		cfg:     cfg,
		pending: cfg,
		state:   StateIdle,
	}
	if settings.Mode == ModeOff {
		c.state = StateOff
	}
	c.filters[SensorBeer] = filter.New(constants.BeerFilter)
	c.filters[SensorFridge] = filter.New(constants.FridgeFilter)
	c.filters[SensorRoom] = filter.New(constants.FridgeFilter)
	for i := range c.raw {
		c.raw[i] = temp.Invalid
	}
	c.vars.FridgeEstimate = temp.Invalid
	c.snap = c.snapshot(clock.Seconds())
	return c, nil
}

// Close stops the command queue. Later submissions fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.queue.Close()
}

// SetSamplePeriod tells the filters how far apart ticks are, in controller
// time, so slopes come out in degrees per hour.
func (c *Controller) SetSamplePeriod(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.filters {
		f.SetSamplePeriod(d)
	}
}

// AttachSensor installs s in role, replacing any previous sensor and
// resetting its filter. A nil s detaches the role.
func (c *Controller) AttachSensor(role SensorRole, s sensor.Sensor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sensors[role] = s
	c.filters[role].Reset()
	c.raw[role] = temp.Invalid
	c.snap = c.snapshot(c.clock.Seconds())
}

// AttachDoor installs a door switch. A nil sw detaches it.
func (c *Controller) AttachDoor(sw sensor.Switch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.door = sw
	if sw == nil {
		c.doorOpen = false
	}
	c.snap = c.snapshot(c.clock.Seconds())
}

// AttachActuator installs a in role. The previous actuator is switched
// off. Heater and cooler are wrapped in a guard that enforces the minimum
// idle times; the guard's timer survives replacement. A nil a detaches.
func (c *Controller) AttachActuator(role ActuatorRole, a actuator.Actuator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old := c.outputs[role]; old != nil {
		actuator.ForceOff(old)
	}
	if a != nil && (role == ActuatorHeater || role == ActuatorCooler) {
		a = actuator.NewGuarded(a, c.clock, &c.timers[role], c.limits(role))
	}
	c.outputs[role] = a
	c.snap = c.snapshot(c.clock.Seconds())
}

func (c *Controller) limits(role ActuatorRole) func() actuator.Limits {
	return func() actuator.Limits {
		k := c.cfg.constants
		if role == ActuatorHeater {
			return actuator.Limits{MinOn: k.MinHeatOnTime, MinOff: k.MinHeatOffTime}
		}
		return actuator.Limits{MinOn: k.MinCoolOnTime, MinOff: k.MinCoolOffTime}
	}
}

// Submit validates cmd against the configuration the queued commands will
// leave behind and queues it for the next tick. An invalid command returns
// ErrConfigOutOfRange and is not queued.
func (c *Controller) Submit(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	trial, err := c.preview(cmd)
	if err != nil {
		return err
	}
	c.pending = trial
	c.queue.In() <- cmd
	return nil
}

// Preview returns the settings and constants cmd would produce if applied
// after every queued command, without queueing it.
func (c *Controller) Preview(cmd Command) (Settings, Constants, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	trial, err := c.preview(cmd)
	if err != nil {
		return Settings{}, Constants{}, err
	}
	return trial.settings, trial.constants, nil
}

func (c *Controller) preview(cmd Command) (config, error) {
	if cmd == nil {
		return config{}, ErrUnknownCommand
	}
	trial := c.pending
	trial.resume = false
	if err := cmd.applyTo(&trial); err != nil {
		return config{}, err
	}
	if err := trial.validate(); err != nil {
		return config{}, err
	}
	trial.resume = false
	return trial, nil
}

// Pending returns the number of queued commands.
func (c *Controller) Pending() int {
	return c.queue.Len()
}

// Snapshot returns the state as of the last tick.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// ReportStorage records the outcome of persisting settings. A failure
// sets StorageFault until the next successful write.
func (c *Controller) ReportStorage(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.faults.StorageFailures++
		c.faults.StorageFault = true
	} else {
		c.faults.StorageFault = false
	}
	c.snap.Faults = c.faults
}

// Tick runs one control cycle: apply queued commands, read inputs,
// evaluate the state machine and drive the outputs.
func (c *Controller) Tick() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Seconds()
	res := Result{Now: now}

	c.drain(&res)
	c.readInputs()
	c.evaluate(now, &res)
	c.driveOutputs(now, &res)
	c.updateVariables(now)

	c.snap = c.snapshot(now)
	res.State = c.state
	return res
}

func (c *Controller) drain(res *Result) {
	n := c.queue.Len()
	for i := 0; i < n; i++ {
		v, ok := <-c.queue.Out()
		if !ok {
			return
		}
		cmd := v.(Command)
		next := c.cfg
		next.resume = false
		err := cmd.applyTo(&next)
		if err == nil {
			err = next.validate()
		}
		if err != nil {
			res.Rejected = append(res.Rejected, err)
			continue
		}
		if next.resume {
			c.faults.SensorFault = false
			c.faults.ConsecutiveInvalid = 0
			next.resume = false
		}
		if next.settings != c.cfg.settings || next.constants != c.cfg.constants {
			res.SettingsChanged = true
		}
		if next.constants != c.cfg.constants {
			c.filters[SensorBeer].SetCoefficients(next.constants.BeerFilter)
			c.filters[SensorFridge].SetCoefficients(next.constants.FridgeFilter)
			c.filters[SensorRoom].SetCoefficients(next.constants.FridgeFilter)
		}
		c.cfg = next
	}
	c.pending = c.cfg
}

func (c *Controller) readInputs() {
	for role, s := range c.sensors {
		if s == nil {
			c.raw[role] = temp.Invalid
			continue
		}
		v := s.Read()
		c.raw[role] = v
		c.filters[role].Add(v)
	}
	c.doorOpen = c.door != nil && c.door.Sense()
}

func (c *Controller) controlRole() SensorRole {
	if c.cfg.settings.Mode == ModeFridgeConstant {
		return SensorFridge
	}
	return SensorBeer
}

func (c *Controller) setpoint() temp.Temp {
	if c.cfg.settings.Mode == ModeFridgeConstant {
		return c.cfg.settings.FridgeSetting
	}
	return c.cfg.settings.BeerSetting
}

// controlValue returns the filtered control temperature, or temp.Invalid
// when this tick's raw reading was unusable.
func (c *Controller) controlValue() temp.Temp {
	role := c.controlRole()
	if !c.raw[role].Valid() {
		return temp.Invalid
	}
	return c.filters[role].Read()
}

func (c *Controller) transition(to State, now ticks.Seconds, reason string, res *Result) {
	if c.state == to {
		return
	}
	res.Events = append(res.Events, Event{At: now, From: c.state, To: to, Reason: reason})
	c.state = to
	c.lastTransition = now
}

func (c *Controller) guard(role ActuatorRole) *actuator.Guarded {
	g, _ := c.outputs[role].(*actuator.Guarded)
	return g
}

func (c *Controller) active(role ActuatorRole) bool {
	a := c.outputs[role]
	return a != nil && a.IsActive()
}

// driveOutputs makes the actuators match the state. Outputs are switched
// off before any is switched on so heater and cooler never overlap.
func (c *Controller) driveOutputs(now ticks.Seconds, res *Result) {
	heat, cool := c.state.Heating(), c.state.Cooling()

	if !heat && c.active(ActuatorHeater) {
		actuator.ForceOff(c.outputs[ActuatorHeater])
		c.cycles.Heat++
	}
	if !cool && c.active(ActuatorCooler) {
		actuator.ForceOff(c.outputs[ActuatorCooler])
		c.cycles.Cool++
	}
	if heat && !c.switchOn(ActuatorHeater) {
		c.transition(StateIdle, now, "heater unavailable", res)
		heat = false
	}
	if cool && !c.switchOn(ActuatorCooler) {
		c.transition(StateIdle, now, "cooler unavailable", res)
		cool = false
	}
	if fan := c.outputs[ActuatorFan]; fan != nil {
		fan.SetActive(heat || cool)
	}
	if light := c.outputs[ActuatorLight]; light != nil {
		light.SetActive(c.doorOpen)
	}
}

func (c *Controller) switchOn(role ActuatorRole) bool {
	a := c.outputs[role]
	if a == nil {
		return false
	}
	if !a.IsActive() {
		a.SetActive(true)
	}
	return a.IsActive()
}

func (c *Controller) waitTime(now ticks.Seconds) ticks.Seconds {
	var timer actuator.Timer
	var minOn ticks.Seconds
	switch c.state {
	case StateWaitingToCool:
		timer, minOn = c.timers[ActuatorCooler], c.cfg.constants.MinCoolOnTime
	case StateWaitingToHeat:
		timer, minOn = c.timers[ActuatorHeater], c.cfg.constants.MinHeatOnTime
	default:
		return 0
	}
	on := timer.OnFor(now)
	if on >= minOn {
		return 0
	}
	return minOn - on
}

func (c *Controller) reading(role SensorRole) Reading {
	f := c.filters[role]
	r := Reading{
		Attached: c.sensors[role] != nil,
		Raw:      c.raw[role],
		Fast:     f.ReadFast(),
		Slow:     f.Read(),
		Slope:    f.ReadSlope(),
	}
	r.Connected = r.Attached && r.Raw.Valid()
	return r
}

func (c *Controller) snapshot(now ticks.Seconds) Snapshot {
	return Snapshot{
		Now:          now,
		State:        c.state,
		Settings:     c.cfg.settings,
		Constants:    c.cfg.constants,
		Beer:         c.reading(SensorBeer),
		Fridge:       c.reading(SensorFridge),
		Room:         c.reading(SensorRoom),
		DoorAttached: c.door != nil,
		DoorOpen:     c.doorOpen,
		Outputs: Outputs{
			Heater: c.active(ActuatorHeater),
			Cooler: c.active(ActuatorCooler),
			Fan:    c.active(ActuatorFan),
			Light:  c.active(ActuatorLight),
		},
		HeaterTimer:    c.timers[ActuatorHeater],
		CoolerTimer:    c.timers[ActuatorCooler],
		LastTransition: c.lastTransition,
		WaitTime:       c.waitTime(now),
		Variables:      c.vars,
		Faults:         c.faults,
		Cycles:         c.cycles,
	}
}

// Devices lists every attached input and output.
func (c *Controller) Devices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Device
	for role, s := range c.sensors {
		if s == nil {
			continue
		}
		out = append(out, Device{
			Function:  SensorRole(role).String(),
			Kind:      kind(s),
			Connected: s.IsConnected(),
			Value:     c.raw[role].Format(2),
		})
	}
	if c.door != nil {
		out = append(out, Device{
			Function:  "door",
			Kind:      kind(c.door),
			Connected: true,
			Value:     fmt.Sprint(c.doorOpen),
		})
	}
	for role, a := range c.outputs {
		if a == nil {
			continue
		}
		if g, ok := a.(*actuator.Guarded); ok {
			a = g.Inner()
		}
		out = append(out, Device{
			Function:  ActuatorRole(role).String(),
			Kind:      kind(a),
			Connected: true,
			Value:     fmt.Sprint(a.IsActive()),
		})
	}
	return out
}

func kind(v any) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}
