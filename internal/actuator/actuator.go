// Package actuator defines the binary outputs the controller drives and
// the guard that enforces minimum run and idle times on them.
package actuator

import (
	"sync"

	"github.com/sweeney/ferment-controller/internal/ticks"
)

// Actuator is a binary output such as a heater relay.
type Actuator interface {
	SetActive(active bool)
	IsActive() bool
}

// Forcer is implemented by actuators that can be switched off immediately,
// bypassing a minimum-run guard.
type Forcer interface {
	ForceOff()
}

// ForceOff switches a off, bypassing any minimum-run guard.
func ForceOff(a Actuator) {
	if f, ok := a.(Forcer); ok {
		f.ForceOff()
		return
	}
	a.SetActive(false)
}

// Value is an in-memory actuator with no side effects.
type Value struct {
	mu     sync.Mutex
	active bool
}

// SetActive stores the state.
func (v *Value) SetActive(active bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = active
}

// IsActive returns the stored state.
func (v *Value) IsActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Change is one recorded state change of a Fake.
type Change struct {
	At     ticks.Seconds
	Active bool
}

// Fake records every state change against a clock.
type Fake struct {
	mu      sync.Mutex
	clock   ticks.Source
	active  bool
	changes []Change
	calls   int
}

// NewFake returns a fake that timestamps changes with clock.
func NewFake(clock ticks.Source) *Fake {
	return &Fake{clock: clock}
}

// SetActive records a change if the state differs.
func (f *Fake) SetActive(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if active == f.active {
		return
	}
	f.active = active
	var at ticks.Seconds
	if f.clock != nil {
		at = f.clock.Seconds()
	}
	f.changes = append(f.changes, Change{At: at, Active: active})
}

// IsActive returns the current state.
func (f *Fake) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Changes returns a copy of the recorded changes.
func (f *Fake) Changes() []Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Change(nil), f.changes...)
}

// Calls returns the number of SetActive calls.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
