package status

import (
	"testing"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
)

func TestStateColour(t *testing.T) {
	tests := []struct {
		state control.State
		want  string
	}{
		{control.StateIdle, colourIdle.Hex()},
		{control.StateHeating, colourHeat.Hex()},
		{control.StateCooling, colourCool.Hex()},
		{control.StateDoorOpen, colourDoor.Hex()},
		{control.StateOff, colourOff.Hex()},
		{"", colourOff.Hex()},
	}
	for _, tt := range tests {
		if got := StateColour(tt.state).Hex(); got != tt.want {
			t.Errorf("StateColour(%q): got %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestWaitingColourSitsBetween(t *testing.T) {
	w := StateColour(control.StateWaitingToCool)
	if w.Hex() == colourCool.Hex() || w.Hex() == colourIdle.Hex() {
		t.Errorf("waiting colour %s should differ from cool and idle", w.Hex())
	}
}

func TestDeviationColour(t *testing.T) {
	sp := temp.FromCelsius(20)
	span := temp.DiffFromCelsius(0.5)

	tests := []struct {
		name string
		pv   temp.Temp
		want string
	}{
		{"at setpoint", sp, colourIdle.Hex()},
		{"full band above", temp.FromCelsius(20.5), colourHeat.Hex()},
		{"beyond band above", temp.FromCelsius(25), colourHeat.Hex()},
		{"full band below", temp.FromCelsius(19.5), colourCool.Hex()},
		{"invalid", temp.Invalid, colourOff.Hex()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeviationColour(tt.pv, sp, span).Hex(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	half := DeviationColour(temp.FromCelsius(20.25), sp, span)
	if half.Hex() == colourIdle.Hex() || half.Hex() == colourHeat.Hex() {
		t.Errorf("half band colour %s should be a blend", half.Hex())
	}
}
