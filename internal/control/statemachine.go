package control

import (
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// evaluate advances the state machine by one tick.
func (c *Controller) evaluate(now ticks.Seconds, res *Result) {
	switch {
	case c.faults.SensorFault:
		c.transition(StateOff, now, "sensor fault", res)
		return
	case c.cfg.settings.Mode == ModeOff:
		c.transition(StateOff, now, "mode off", res)
		return
	}

	pv := c.controlValue()
	if !pv.Valid() {
		// Hold the current state and outputs until the fault threshold.
		c.faults.InvalidReadings++
		c.faults.ConsecutiveInvalid++
		res.SensorErr = ErrSensorInvalid
		if c.faults.ConsecutiveInvalid > c.cfg.constants.FaultThreshold {
			c.faults.SensorFault = true
			res.SensorErr = ErrSensorPersistentFault
			c.transition(StateOff, now, "sensor fault", res)
		}
		return
	}
	c.faults.ConsecutiveInvalid = 0

	if c.state == StateOff {
		c.transition(StateIdle, now, "resume", res)
	}

	sp := c.setpoint()
	switch c.state {
	case StateIdle, StateDoorOpen:
		c.evaluateIdle(now, pv, sp, res)
	case StateCooling, StateWaitingToCool:
		c.evaluateCooling(now, pv, sp, res)
	case StateHeating, StateWaitingToHeat:
		c.evaluateHeating(now, pv, sp, res)
	}
}

func (c *Controller) coolDemand(pv, sp temp.Temp) bool {
	return pv > sp.Add(c.cfg.constants.HysteresisHigh)
}

func (c *Controller) heatDemand(pv, sp temp.Temp) bool {
	return pv < sp.Add(-c.cfg.constants.HysteresisLow)
}

func (c *Controller) evaluateIdle(now ticks.Seconds, pv, sp temp.Temp, res *Result) {
	if c.doorOpen {
		c.transition(StateDoorOpen, now, "door open", res)
		return
	}
	if c.state == StateDoorOpen {
		c.transition(StateIdle, now, "door closed", res)
	}

	switch {
	case c.coolDemand(pv, sp):
		if c.canStart(ActuatorCooler, ActuatorHeater, now) {
			c.transition(StateCooling, now, "above setpoint", res)
		}
	case c.heatDemand(pv, sp):
		if c.canStart(ActuatorHeater, ActuatorCooler, now) {
			c.transition(StateHeating, now, "below setpoint", res)
		}
	}
}

func (c *Controller) evaluateCooling(now ticks.Seconds, pv, sp temp.Temp, res *Result) {
	ran := c.minRunElapsed(ActuatorCooler)
	switch c.state {
	case StateCooling:
		if pv > sp {
			return
		}
		if ran {
			c.transition(StateIdle, now, "setpoint reached", res)
		} else {
			c.transition(StateWaitingToCool, now, "setpoint reached before minimum run", res)
		}
	case StateWaitingToCool:
		if c.coolDemand(pv, sp) {
			c.transition(StateCooling, now, "above setpoint", res)
		} else if ran {
			c.transition(StateIdle, now, "minimum run elapsed", res)
		}
	}
}

func (c *Controller) evaluateHeating(now ticks.Seconds, pv, sp temp.Temp, res *Result) {
	ran := c.minRunElapsed(ActuatorHeater)
	switch c.state {
	case StateHeating:
		if pv < sp {
			return
		}
		if ran {
			c.transition(StateIdle, now, "setpoint reached", res)
		} else {
			c.transition(StateWaitingToHeat, now, "setpoint reached before minimum run", res)
		}
	case StateWaitingToHeat:
		if c.heatDemand(pv, sp) {
			c.transition(StateHeating, now, "below setpoint", res)
		} else if ran {
			c.transition(StateIdle, now, "minimum run elapsed", res)
		}
	}
}

// canStart reports whether role may be switched on now: its idle guard
// has elapsed, the opposite actuator is off, and MinSwitchTime has passed
// since the opposite actuator stopped.
func (c *Controller) canStart(role, opposite ActuatorRole, now ticks.Seconds) bool {
	g := c.guard(role)
	if g == nil || !g.CanActivate() {
		return false
	}
	if c.active(opposite) {
		return false
	}
	if off, stopped := c.timers[opposite].OffFor(now); stopped && off < c.cfg.constants.MinSwitchTime {
		return false
	}
	return true
}

func (c *Controller) minRunElapsed(role ActuatorRole) bool {
	g := c.guard(role)
	return g == nil || g.CanDeactivate()
}
