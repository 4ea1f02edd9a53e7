package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/mqtt"
	"github.com/sweeney/ferment-controller/internal/settings"
	"github.com/sweeney/ferment-controller/internal/status"
	"github.com/sweeney/ferment-controller/internal/temp"
)

var t0 = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func coolingReport(tick int) Report {
	snap := control.Snapshot{
		Now:       60,
		State:     control.StateCooling,
		Settings:  control.DefaultSettings(),
		Constants: control.DefaultConstants(),
		Beer:      control.Reading{Attached: true, Connected: true, Slow: temp.FromCelsius(20.6)},
		Fridge:    control.Reading{Slow: temp.Invalid},
		Room:      control.Reading{Slow: temp.Invalid},
		Outputs:   control.Outputs{Cooler: true},
		Variables: control.Variables{FridgeEstimate: temp.Invalid},
	}
	return Report{
		Time:     t0.Add(time.Duration(tick) * time.Second),
		Snapshot: snap,
		Result: control.Result{
			Now:    snap.Now,
			State:  control.StateCooling,
			Events: []control.Event{{At: 60, From: control.StateIdle, To: control.StateCooling, Reason: "above setpoint"}},
		},
	}
}

type collector struct {
	mu   sync.Mutex
	got  []Report
	gate chan struct{}
	seen chan struct{}
}

func (c *collector) Consume(r Report) error {
	if c.seen != nil {
		c.seen <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, r)
	return nil
}

func (c *collector) reports() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Report(nil), c.got...)
}

func TestPipelineDeliversInOrder(t *testing.T) {
	p := New(16)
	a, b := &collector{}, &collector{}
	p.Add("a", a)
	p.Add("b", b)
	p.Start()

	for i := 0; i < 10; i++ {
		p.Push(coolingReport(i))
	}
	p.Close()

	for _, c := range []*collector{a, b} {
		got := c.reports()
		require.Len(t, got, 10)
		for i, r := range got {
			assert.Equal(t, t0.Add(time.Duration(i)*time.Second), r.Time)
		}
	}
	assert.Equal(t, uint64(10), p.Delivered())
	assert.Equal(t, uint64(0), p.Dropped())
}

func TestPipelineDropsOldestWhenBehind(t *testing.T) {
	p := New(2)
	c := &collector{gate: make(chan struct{}), seen: make(chan struct{}, 16)}
	p.Add("slow", c)
	p.Start()

	p.Push(coolingReport(0))
	<-c.seen
	for i := 1; i <= 5; i++ {
		p.Push(coolingReport(i))
	}
	close(c.gate)
	p.Close()

	got := c.reports()
	require.Len(t, got, 3)
	assert.Equal(t, t0, got[0].Time)
	assert.Equal(t, t0.Add(4*time.Second), got[1].Time)
	assert.Equal(t, t0.Add(5*time.Second), got[2].Time)
	assert.Equal(t, uint64(3), p.Dropped())
}

func TestPipelineCloseDrainsWithoutStart(t *testing.T) {
	p := New(8)
	c := &collector{}
	p.Add("c", c)
	p.Push(coolingReport(0))
	p.Push(coolingReport(1))
	p.Close()

	assert.Len(t, c.reports(), 2)

	p.Push(coolingReport(2))
	p.Close()
	assert.Len(t, c.reports(), 2)
}

func TestPipelineKeepsGoingAfterSinkError(t *testing.T) {
	p := New(8)
	calls := 0
	p.Add("broken", SinkFunc(func(Report) error {
		calls++
		return errors.New("boom")
	}))
	c := &collector{}
	p.Add("ok", c)
	p.Start()

	p.Push(coolingReport(0))
	p.Push(coolingReport(1))
	p.Close()

	assert.Equal(t, 2, calls)
	assert.Len(t, c.reports(), 2)
}

func TestEventsSink(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	require.NoError(t, Events(pub).Consume(coolingReport(0)))

	events := pub.Published()
	require.Len(t, events, 1)
	assert.Equal(t, control.StateCooling, events[0].Transition.To)
	assert.Equal(t, temp.FromCelsius(20.6), events[0].Control)
	assert.True(t, events[0].Cooler)

	pub.PublishError = errors.New("broker down")
	assert.ErrorContains(t, Events(pub).Consume(coolingReport(1)), "broker down")
}

type fakeStream struct {
	got []status.Snapshot
}

func (f *fakeStream) Publish(s status.Snapshot) {
	f.got = append(f.got, s)
}

func TestStreamSink(t *testing.T) {
	tracker := status.NewTracker(t0, status.Config{Broker: "tcp://broker:1883"})
	stream := &fakeStream{}

	require.NoError(t, Stream(stream, tracker).Consume(coolingReport(0)))

	require.Len(t, stream.got, 1)
	assert.Equal(t, control.StateCooling, stream.got[0].Control.State)
	assert.Equal(t, "tcp://broker:1883", stream.got[0].Config.Broker)
}

type fakeSampler struct {
	events int
	err    error
}

func (f *fakeSampler) Sample(_ time.Time, _ control.Snapshot, events []control.Event) error {
	f.events += len(events)
	return f.err
}

func TestRecordSink(t *testing.T) {
	s := &fakeSampler{}
	require.NoError(t, Record(s).Consume(coolingReport(0)))
	assert.Equal(t, 1, s.events)

	s.err = errors.New("disk full")
	assert.Error(t, Record(s).Consume(coolingReport(1)))
}

type fakeReporter struct {
	errs []error
}

func (f *fakeReporter) ReportStorage(err error) {
	f.errs = append(f.errs, err)
}

func TestPersisterWritesOnlyChanges(t *testing.T) {
	store := settings.NewMemoryStore()
	rep := &fakeReporter{}
	p := NewPersister(store, rep, nil, nil, control.DefaultSettings(), control.DefaultConstants())

	r := coolingReport(0)
	require.NoError(t, p.Consume(r))
	assert.Equal(t, 0, store.Writes())

	r.Snapshot.Settings.BeerSetting = temp.FromCelsius(18)
	require.NoError(t, p.Consume(r))
	require.NoError(t, p.Consume(r))
	assert.Equal(t, 1, store.Writes())
	require.Len(t, rep.errs, 1)
	assert.NoError(t, rep.errs[0])

	s, _, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, temp.FromCelsius(18), s.BeerSetting)
}

func TestPersisterReportsFailureOnce(t *testing.T) {
	store := settings.NewMemoryStore()
	store.FailWith(errors.New("read-only file system"))
	rep := &fakeReporter{}
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(t0, status.Config{})
	p := NewPersister(store, rep, pub, tracker, control.DefaultSettings(), control.DefaultConstants())

	r := coolingReport(0)
	r.Snapshot.Settings.Mode = control.ModeFridgeConstant
	r.Snapshot.Settings.FridgeSetting = temp.FromCelsius(4)
	err := p.Consume(r)
	assert.ErrorIs(t, err, control.ErrStorageWrite)
	assert.ErrorContains(t, err, "read-only file system")
	assert.NoError(t, p.Consume(r))
	assert.Equal(t, 1, store.Writes())
	require.Len(t, rep.errs, 1)
	assert.Error(t, rep.errs[0])

	system := pub.System()
	require.Len(t, system, 1)
	assert.Equal(t, "STORAGE_FAULT", system[0].Event)
	assert.Equal(t, "read-only file system", system[0].Reason)

	var doc status.StatusJSON
	require.NoError(t, json.Unmarshal(system[0].RawPayload, &doc))
	assert.Equal(t, "STORAGE_FAULT", doc.Status.Event)
	assert.True(t, doc.Status.Faults.StorageFault)

	// A later change is attempted again and clears the fault.
	store.FailWith(nil)
	r.Snapshot.Settings.FridgeSetting = temp.FromCelsius(5)
	assert.NoError(t, p.Consume(r))
	require.Len(t, rep.errs, 2)
	assert.NoError(t, rep.errs[1])
}
