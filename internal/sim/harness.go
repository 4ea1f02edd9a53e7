package sim

import (
	"fmt"
	"time"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// Sample is the closed-loop state after one tick.
type Sample struct {
	At       ticks.Seconds
	State    control.State
	Beer     float32 // true temperature
	Fridge   float32
	Filtered temp.Temp // the controller's view of the control probe
	Heater   bool
	Cooler   bool
}

// Harness runs a controller against a model on a simulated clock.
type Harness struct {
	Clock *ticks.Counter
	Model *Model
	Ctrl  *control.Controller

	trace []Sample
}

// NewHarness wires a controller to a new model with beer, fridge and room
// probes and the heater and cooler attached.
func NewHarness(p Params, s control.Settings, k control.Constants) (*Harness, error) {
	clock := ticks.NewCounter()
	ctrl, err := control.New(clock, s, k)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	m := New(p)
	Attach(ctrl, m)
	return &Harness{Clock: clock, Model: m, Ctrl: ctrl}, nil
}

// Attach connects every model probe and output to ctrl.
func Attach(ctrl *control.Controller, m *Model) {
	ctrl.AttachSensor(control.SensorBeer, m.Sensor(ProbeBeer))
	ctrl.AttachSensor(control.SensorFridge, m.Sensor(ProbeFridge))
	ctrl.AttachSensor(control.SensorRoom, m.Sensor(ProbeRoom))
	ctrl.AttachActuator(control.ActuatorHeater, m.HeaterOutput())
	ctrl.AttachActuator(control.ActuatorCooler, m.CoolerOutput())
}

// Tick advances the model and clock by period and runs one control cycle.
func (h *Harness) Tick(period time.Duration) control.Result {
	h.Model.Step(period)
	h.Clock.Advance(period)
	res := h.Ctrl.Tick()

	snap := h.Ctrl.Snapshot()
	h.trace = append(h.trace, Sample{
		At:       res.Now,
		State:    res.State,
		Beer:     h.Model.Temperature(ProbeBeer),
		Fridge:   h.Model.Temperature(ProbeFridge),
		Filtered: snap.ProcessValue(),
		Heater:   h.Model.Heater(),
		Cooler:   h.Model.Cooler(),
	})
	return res
}

// Run ticks every period until d has elapsed and returns the events raised.
func (h *Harness) Run(d, period time.Duration) []control.Event {
	var events []control.Event
	for elapsed := time.Duration(0); elapsed < d; elapsed += period {
		events = append(events, h.Tick(period).Events...)
	}
	return events
}

// Trace returns every sample recorded so far.
func (h *Harness) Trace() []Sample {
	return h.trace
}

// Close releases the controller.
func (h *Harness) Close() {
	h.Ctrl.Close()
}

// Span is a period during which an output stayed in one state.
type Span struct {
	Active   bool
	From, To ticks.Seconds
}

// Spans splits the trace into periods of constant heater (or cooler)
// state. The first span starts with the trace; the final one is still open
// and not included.
func Spans(trace []Sample, heater bool) []Span {
	var spans []Span
	if len(trace) == 0 {
		return nil
	}
	output := func(s Sample) bool {
		if heater {
			return s.Heater
		}
		return s.Cooler
	}
	cur := Span{Active: output(trace[0]), From: trace[0].At}
	for _, s := range trace[1:] {
		if output(s) == cur.Active {
			continue
		}
		cur.To = s.At
		spans = append(spans, cur)
		cur = Span{Active: output(s), From: s.At}
	}
	return spans
}
