package actuator

import "github.com/sweeney/ferment-controller/internal/ticks"

// Timer records when an output last switched. It outlives the device it
// guards so a replaced relay inherits the protection of the old one.
type Timer struct {
	LastOn     ticks.Seconds
	LastOff    ticks.Seconds
	HasRun     bool
	HasStopped bool
}

// OnFor returns how long the output has been on since LastOn.
func (t Timer) OnFor(now ticks.Seconds) ticks.Seconds {
	return ticks.Since(now, t.LastOn)
}

// OffFor returns how long the output has been off since LastOff.
// An output that has never stopped counts as off forever.
func (t Timer) OffFor(now ticks.Seconds) (ticks.Seconds, bool) {
	if !t.HasStopped {
		return 0, false
	}
	return ticks.Since(now, t.LastOff), true
}

// Limits are the minimum on and off durations.
type Limits struct {
	MinOn  ticks.Seconds
	MinOff ticks.Seconds
}

// Guarded wraps an actuator and refuses switches that would violate its
// limits. Activation requires MinOff since the last stop; deactivation
// requires MinOn since the last start. ForceOff ignores MinOn.
type Guarded struct {
	inner  Actuator
	clock  ticks.Source
	timer  *Timer
	limits func() Limits
}

// NewGuarded guards inner. timer is updated on every switch; limits is
// consulted each time so changes take effect immediately.
func NewGuarded(inner Actuator, clock ticks.Source, timer *Timer, limits func() Limits) *Guarded {
	if timer == nil {
		timer = &Timer{}
	}
	return &Guarded{inner: inner, clock: clock, timer: timer, limits: limits}
}

// Inner returns the wrapped actuator.
func (g *Guarded) Inner() Actuator { return g.inner }

// CanActivate reports whether the minimum idle time has elapsed.
func (g *Guarded) CanActivate() bool {
	if g.inner.IsActive() {
		return true
	}
	off, stopped := g.timer.OffFor(g.clock.Seconds())
	return !stopped || off >= g.limits().MinOff
}

// CanDeactivate reports whether the minimum run time has elapsed.
func (g *Guarded) CanDeactivate() bool {
	if !g.inner.IsActive() {
		return true
	}
	return g.timer.OnFor(g.clock.Seconds()) >= g.limits().MinOn
}

// SetActive switches the output if the limits allow it.
func (g *Guarded) SetActive(active bool) {
	if active == g.inner.IsActive() {
		return
	}
	if active {
		if !g.CanActivate() {
			return
		}
		g.inner.SetActive(true)
		if g.inner.IsActive() {
			g.timer.LastOn = g.clock.Seconds()
			g.timer.HasRun = true
		}
		return
	}
	if !g.CanDeactivate() {
		return
	}
	g.off()
}

// ForceOff switches the output off regardless of MinOn.
func (g *Guarded) ForceOff() {
	if !g.inner.IsActive() {
		return
	}
	g.off()
}

func (g *Guarded) off() {
	g.inner.SetActive(false)
	if !g.inner.IsActive() {
		g.timer.LastOff = g.clock.Seconds()
		g.timer.HasStopped = true
	}
}

// IsActive reports the wrapped actuator's state.
func (g *Guarded) IsActive() bool { return g.inner.IsActive() }
