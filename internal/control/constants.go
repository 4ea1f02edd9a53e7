package control

import (
	"fmt"

	"github.com/sweeney/ferment-controller/internal/filter"
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// Settings are the values a brewer changes day to day.
type Settings struct {
	Mode          Mode
	BeerSetting   temp.Temp
	FridgeSetting temp.Temp
}

// Constants tune the controller. They change rarely.
type Constants struct {
	TempSettingMin temp.Temp
	TempSettingMax temp.Temp

	// Cooling starts above setpoint+HysteresisHigh, heating below
	// setpoint−HysteresisLow. Both stop at the setpoint.
	HysteresisHigh temp.Diff
	HysteresisLow  temp.Diff

	MinCoolOnTime  ticks.Seconds
	MinCoolOffTime ticks.Seconds
	MinHeatOnTime  ticks.Seconds
	MinHeatOffTime ticks.Seconds
	// MinSwitchTime separates the end of one actuator's run from the start
	// of the opposite actuator.
	MinSwitchTime ticks.Seconds

	// FaultThreshold is the number of consecutive invalid control readings
	// tolerated before the controller forces itself OFF.
	FaultThreshold uint32

	Kp        temp.Diff
	Ki        temp.Diff
	Kd        temp.Diff
	IMaxError temp.Diff
	PidMax    temp.Diff

	BeerFilter   filter.Coefficients
	FridgeFilter filter.Coefficients
}

// Limits for timer and threshold constants.
const (
	MaxTimerSeconds   ticks.Seconds = 7200
	MaxFaultThreshold uint32        = 3600
)

var (
	minHysteresis = temp.Diff(1)
	maxHysteresis = temp.DiffFromCelsius(10)
	maxPidMax     = temp.DiffFromCelsius(30)
)

// DefaultConstants returns the factory tuning.
func DefaultConstants() Constants {
	return Constants{
		TempSettingMin: temp.FromCelsius(1),
		TempSettingMax: temp.FromCelsius(30),
		HysteresisHigh: temp.DiffFromCelsius(0.5),
		HysteresisLow:  temp.DiffFromCelsius(0.5),
		MinCoolOnTime:  180,
		MinCoolOffTime: 300,
		MinHeatOnTime:  180,
		MinHeatOffTime: 300,
		MinSwitchTime:  600,
		FaultThreshold: 60,
		Kp:             temp.DiffFromCelsius(5),
		Ki:             temp.DiffFromCelsius(0.25),
		Kd:             temp.DiffFromCelsius(-1.5),
		IMaxError:      temp.DiffFromCelsius(0.5),
		PidMax:         temp.DiffFromCelsius(10),
		BeerFilter:     filter.Coefficients{Fast: 3, Slow: 4, Slope: 4},
		FridgeFilter:   filter.Coefficients{Fast: 1, Slow: 4, Slope: 3},
	}
}

// DefaultSettings returns the factory settings: beer mode at 20 °C.
func DefaultSettings() Settings {
	return Settings{
		Mode:          ModeBeerConstant,
		BeerSetting:   temp.FromCelsius(20),
		FridgeSetting: temp.FromCelsius(20),
	}
}

func outOfRange(field string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrConfigOutOfRange, field, fmt.Sprintf(format, args...))
}

// Validate checks every constant is within its range.
func (c Constants) Validate() error {
	if !c.TempSettingMin.Valid() || !c.TempSettingMax.Valid() {
		return outOfRange("tempSetMin/tempSetMax", "invalid temperature")
	}
	if c.TempSettingMin >= c.TempSettingMax {
		return outOfRange("tempSetMin", "%v must be below tempSetMax %v", c.TempSettingMin, c.TempSettingMax)
	}
	for _, h := range []struct {
		name string
		v    temp.Diff
	}{{"hystHigh", c.HysteresisHigh}, {"hystLow", c.HysteresisLow}} {
		if h.v < minHysteresis || h.v > maxHysteresis {
			return outOfRange(h.name, "%v not in (0, %v]", h.v, maxHysteresis)
		}
	}
	for _, tm := range []struct {
		name string
		v    ticks.Seconds
	}{
		{"minCoolOn", c.MinCoolOnTime},
		{"minCoolOff", c.MinCoolOffTime},
		{"minHeatOn", c.MinHeatOnTime},
		{"minHeatOff", c.MinHeatOffTime},
		{"minSwitch", c.MinSwitchTime},
	} {
		if tm.v > MaxTimerSeconds {
			return outOfRange(tm.name, "%d s exceeds %d s", tm.v, MaxTimerSeconds)
		}
	}
	if c.FaultThreshold < 1 || c.FaultThreshold > MaxFaultThreshold {
		return outOfRange("faultTicks", "%d not in [1, %d]", c.FaultThreshold, MaxFaultThreshold)
	}
	if c.IMaxError < 0 {
		return outOfRange("iMaxErr", "%v is negative", c.IMaxError)
	}
	if c.PidMax <= 0 || c.PidMax > maxPidMax {
		return outOfRange("pidMax", "%v not in (0, %v]", c.PidMax, maxPidMax)
	}
	if err := c.BeerFilter.Validate(); err != nil {
		return outOfRange("beerFilter", "%v", err)
	}
	if err := c.FridgeFilter.Validate(); err != nil {
		return outOfRange("fridgeFilter", "%v", err)
	}
	return nil
}

// Validate checks s against the setpoint range in c.
func (s Settings) Validate(c Constants) error {
	if !s.Mode.Valid() {
		return outOfRange("mode", "unknown mode %q", s.Mode)
	}
	if err := checkSetpoint("beerSet", s.BeerSetting, c); err != nil {
		return err
	}
	return checkSetpoint("fridgeSet", s.FridgeSetting, c)
}

func checkSetpoint(field string, v temp.Temp, c Constants) error {
	if !v.Valid() || v < c.TempSettingMin || v > c.TempSettingMax {
		return outOfRange(field, "%v not in [%v, %v]", v, c.TempSettingMin, c.TempSettingMax)
	}
	return nil
}
