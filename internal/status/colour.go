package status

import (
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
)

var (
	colourIdle = colorful.Color{R: 0.18, G: 0.80, B: 0.44}
	colourHeat = colorful.Color{R: 0.91, G: 0.30, B: 0.24}
	colourCool = colorful.Color{R: 0.20, G: 0.60, B: 0.86}
	colourDoor = colorful.Color{R: 0.95, G: 0.77, B: 0.06}
	colourOff  = colorful.Color{R: 0.50, G: 0.55, B: 0.55}
)

// StateColour returns the display colour for s. Waiting states sit halfway
// between the active colour and idle.
func StateColour(s control.State) colorful.Color {
	switch s {
	case control.StateIdle:
		return colourIdle
	case control.StateHeating:
		return colourHeat
	case control.StateCooling:
		return colourCool
	case control.StateWaitingToHeat:
		return colourHeat.BlendLab(colourIdle, 0.5).Clamped()
	case control.StateWaitingToCool:
		return colourCool.BlendLab(colourIdle, 0.5).Clamped()
	case control.StateDoorOpen:
		return colourDoor
	}
	return colourOff
}

// DeviationColour shades the distance of pv from sp: idle at the setpoint,
// fading to the heat colour at span above it and the cool colour at span
// below. Invalid inputs give the off colour.
func DeviationColour(pv, sp temp.Temp, span temp.Diff) colorful.Color {
	if !pv.Valid() || !sp.Valid() || span <= 0 {
		return colourOff
	}
	f := pv.Sub(sp).Celsius() / span.Celsius()
	switch {
	case f > 1:
		f = 1
	case f < -1:
		f = -1
	}
	if f < 0 {
		return colourIdle.BlendRgb(colourCool, -f)
	}
	return colourIdle.BlendRgb(colourHeat, f)
}

// deviation picks the hysteresis band on the side pv is on.
func deviation(s control.Snapshot) colorful.Color {
	pv, sp := s.ProcessValue(), s.Setpoint()
	span := s.Constants.HysteresisLow
	if pv.Valid() && sp.Valid() && pv > sp {
		span = s.Constants.HysteresisHigh
	}
	return DeviationColour(pv, sp, span)
}
