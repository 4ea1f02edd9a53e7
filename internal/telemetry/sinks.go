package telemetry

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/mqtt"
	"github.com/sweeney/ferment-controller/internal/settings"
	"github.com/sweeney/ferment-controller/internal/status"
)

// Events publishes every state transition to MQTT.
func Events(pub mqtt.Publisher) Sink {
	return SinkFunc(func(r Report) error {
		var errs []error
		for _, e := range r.Result.Events {
			if err := pub.Publish(mqtt.NewEvent(r.Time, e, r.Snapshot)); err != nil {
				errs = append(errs, fmt.Errorf("publish %s: %w", e.To, err))
			}
		}
		return errors.Join(errs...)
	})
}

// StatusPublisher receives a status snapshot per tick, such as the web
// event stream.
type StatusPublisher interface {
	Publish(status.Snapshot)
}

// Stream sends each tick's status to pub. The tracker supplies the daemon
// fields; the control state comes from the report.
func Stream(pub StatusPublisher, tracker *status.Tracker) Sink {
	return SinkFunc(func(r Report) error {
		snap := tracker.Snapshot()
		snap.Control = r.Snapshot
		pub.Publish(snap)
		return nil
	})
}

// Sampler stores data points and transitions.
type Sampler interface {
	Sample(at time.Time, snap control.Snapshot, events []control.Event) error
}

// Record hands every report to the flight recorder.
func Record(s Sampler) Sink {
	return SinkFunc(func(r Report) error {
		return s.Sample(r.Time, r.Snapshot, r.Result.Events)
	})
}

// StorageReporter is told the outcome of each settings write.
type StorageReporter interface {
	ReportStorage(error)
}

// Persister writes settings and constants to a store when they change.
type Persister struct {
	store    settings.Store
	reporter StorageReporter
	pub      mqtt.Publisher
	tracker  *status.Tracker

	settings  control.Settings
	constants control.Constants
}

// NewPersister returns a sink saving to store. The values already in the
// store are taken as saved. pub and tracker may be nil; when set, a failed
// write is announced as a STORAGE_FAULT system event.
func NewPersister(store settings.Store, reporter StorageReporter, pub mqtt.Publisher, tracker *status.Tracker, saved control.Settings, savedConstants control.Constants) *Persister {
	return &Persister{
		store:     store,
		reporter:  reporter,
		pub:       pub,
		tracker:   tracker,
		settings:  saved,
		constants: savedConstants,
	}
}

// Consume writes the snapshot's settings when they differ from the last
// attempted write. A failed write is not retried until the values change
// again.
func (p *Persister) Consume(r Report) error {
	s, k := r.Snapshot.Settings, r.Snapshot.Constants
	if s == p.settings && k == p.constants {
		return nil
	}
	p.settings, p.constants = s, k

	err := p.store.Store(s, k)
	p.reporter.ReportStorage(err)
	if err == nil {
		log.Printf("settings saved: mode=%s beer=%s fridge=%s", s.Mode, s.BeerSetting, s.FridgeSetting)
		return nil
	}
	if p.pub != nil {
		event := mqtt.SystemEvent{
			Timestamp: r.Time,
			Event:     "STORAGE_FAULT",
			Reason:    err.Error(),
		}
		if p.tracker != nil {
			snap := p.tracker.Snapshot()
			snap.Control = r.Snapshot
			snap.Control.Faults.StorageFault = true
			event.RawPayload = status.FormatStatusEvent(snap, event.Event, event.Reason)
		}
		if perr := p.pub.PublishSystem(event); perr != nil {
			log.Printf("failed to publish storage fault: %v", perr)
		}
	}
	return fmt.Errorf("%w: %w", control.ErrStorageWrite, err)
}
