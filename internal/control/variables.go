package control

import (
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// integratorPeriod is how often the beer difference is added to the
// integral.
const integratorPeriod ticks.Seconds = 60

// updateVariables recomputes the PID terms and the fridge setting they
// imply. They are reported to the host but do not drive the outputs.
func (c *Controller) updateVariables(now ticks.Seconds) {
	st := c.cfg.settings
	k := c.cfg.constants
	if st.Mode != ModeBeerConstant {
		c.vars = Variables{FridgeEstimate: st.FridgeSetting}
		if st.Mode == ModeOff {
			c.vars.FridgeEstimate = temp.Invalid
		}
		return
	}
	// A bad beer reading holds the last terms, integral included.
	if !c.raw[SensorBeer].Valid() {
		return
	}

	beer := c.filters[SensorBeer]
	sp := st.BeerSetting
	v := &c.vars
	v.BeerDiff = sp.Sub(beer.Read())
	v.BeerSlope = beer.ReadSlope()

	if ticks.Since(now, c.lastIntegrate) >= integratorPeriod {
		c.lastIntegrate = now
		c.integrate(sp)
	}

	v.P = temp.Mul(k.Kp, v.BeerDiff)
	v.I = temp.MulLong(k.Ki, v.DiffIntegral)
	v.D = temp.Mul(k.Kd, v.BeerSlope)

	lo, hi := c.estimateRange(sp)
	out := temp.SaturateDiff(int64(v.P) + int64(v.I) + int64(v.D))
	v.FridgeEstimate = sp.Add(out).Clamp(lo, hi)
}

// integrate adds the beer difference to the integral while the error is
// small, and stops winding up once the estimate sits at a limit.
func (c *Controller) integrate(sp temp.Temp) {
	v := &c.vars
	k := c.cfg.constants
	diff := v.BeerDiff
	if diff > k.IMaxError || diff < -k.IMaxError {
		return
	}
	lo, hi := c.estimateRange(sp)
	if (v.FridgeEstimate >= hi && diff > 0) || (v.FridgeEstimate <= lo && diff < 0) {
		return
	}
	v.DiffIntegral = temp.SaturateLong(int64(v.DiffIntegral) + int64(diff))
}

func (c *Controller) estimateRange(sp temp.Temp) (lo, hi temp.Temp) {
	k := c.cfg.constants
	lo = sp.Add(-k.PidMax)
	hi = sp.Add(k.PidMax)
	if lo < k.TempSettingMin {
		lo = k.TempSettingMin
	}
	if hi > k.TempSettingMax {
		hi = k.TempSettingMax
	}
	return lo, hi
}
