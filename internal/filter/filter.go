// Package filter implements the fixed-point low-pass filters that smooth raw
// sensor readings before the controller acts on them.
//
// Each sensor channel owns a Filter with three cascades: a fast one for
// display, a slow one for control decisions and a slope filter that turns
// the slow output into a rate of change.
package filter

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/ferment-controller/internal/temp"
)

// ErrCoefficient is returned for a coefficient outside
// [MinCoefficient, MaxCoefficient].
var ErrCoefficient = errors.New("filter: coefficient out of range")

// Coefficients selects the b value of each cascade.
type Coefficients struct {
	Fast  uint8
	Slow  uint8
	Slope uint8
}

// Validate checks every coefficient is in range.
func (c Coefficients) Validate() error {
	for _, v := range []struct {
		name string
		b    uint8
	}{{"fast", c.Fast}, {"slow", c.Slow}, {"slope", c.Slope}} {
		if     v.b < MinCoefficient || v.b > MaxCoefficient {
			return fmt.Errorf("%w: %s=%d", ErrCoefficient, v.name, v.b)
		}
	}
	return nil
}

// Slope sampling. The slope is the change of the slow output across
// slopeHistory updates taken every slopeInterval samples, scaled to a rate
// per hour using the sample period.
const (
	slopeInterval = 3
	slopeHistory  = 4

	// DefaultSamplePeriod is the period assumed until SetSamplePeriod.
	DefaultSamplePeriod = time.Second
)

// Filter smooths one temperature channel.
type Filter struct {
	coeff       Coefficients
	periodMs    int64
	fast        Cascaded
	slow        Cascaded
	slope       Cascaded
	initialized bool

	samples    uint32
	history    [slopeHistory]temp.Precise
	historyLen int
	historyPos int
	slopeReady bool
}

// New returns an uninitialised filter. The first Add seeds it.
func New(c Coefficients) *Filter {
	f := &Filter{periodMs: DefaultSamplePeriod.Milliseconds()}
	f.SetCoefficients(c)
	return f
}

// SetSamplePeriod sets the time between calls to Add, which scales the
// slope to degrees per hour. Periods under a millisecond are ignored.
func (f *Filter) SetSamplePeriod(d time.Duration) {
	if ms := d.Milliseconds(); ms > 0 {
		f.periodMs = ms
	}
}

// SetCoefficients changes the cascades' coefficients without clearing
// their state.
func (f *Filter) SetCoefficients(c Coefficients) {
	f.coeff = c
	f.fast.SetCoefficient(c.Fast)
	f.slow.SetCoefficient(c.Slow)
	f.slope.SetCoefficient(c.Slope)
}

// Coefficients returns the current coefficients.
func (f *Filter) Coefficients() Coefficients { return f.coeff }

// Initialized reports whether the filter has seen a sample since Reset.
func (f *Filter) Initialized() bool { return f.initialized }

// Reset discards all state. The next Add seeds the filter again.
func (f *Filter) Reset() {
	coeff, period := f.coeff, f.periodMs
	*f = Filter{periodMs: period}
	f.SetCoefficients(coeff)
}

// Init seeds every cascade with v.
func (f *Filter) Init(v temp.Temp) {
	p := v.Precise()
	f.fast.Init(p)
	f.slow.Init(p)
	f.slope.Init(0)
	f.history = [slopeHistory]temp.Precise{}
	f.historyLen, f.historyPos = 0, 0
	f.samples = 0
	f.slopeReady = false
	f.initialized = true
}

// Add feeds a raw reading. Invalid readings are ignored.
func (f *Filter) Add(v temp.Temp) {
	if !v.Valid() {
		return
	}
	if !f.initialized {
		f.Init(v)
	}
	p := v.Precise()
	f.fast.Add(p)
	slow := f.slow.Add(p)

	f.samples++
	if f.samples%slopeInterval != 0 {
		return
	}
	f.addSlope(slow)
}

func (f *Filter) addSlope(slow temp.Precise) {
	if f.historyLen < slopeHistory {
		f.history[f.historyPos] = slow
		f.historyPos = (f.historyPos + 1) % slopeHistory
		f.historyLen++
		return
	}
	oldest := f.history[f.historyPos]
	f.history[f.historyPos] = slow
	f.historyPos = (f.historyPos + 1) % slopeHistory

	const msPerHour = int64(time.Hour / time.Millisecond)
	delta := int64(slow) - int64(oldest)
	rate := temp.SaturatePrecise(delta * msPerHour / (slopeInterval * slopeHistory * f.periodMs))
	if !f.slopeReady {
		f.slope.Init(rate)
		f.slopeReady = true
		return
	}
	f.slope.Add(rate)
}

// Read returns the slow output used for control, or temp.Invalid before
// the first sample.
func (f *Filter) Read() temp.Temp {
	if !f.initialized {
		return temp.Invalid
	}
	return f.slow.Output().Temp()
}

// ReadFast returns the fast output, or temp.Invalid before the first sample.
func (f *Filter) ReadFast() temp.Temp {
	if !f.initialized {
		return temp.Invalid
	}
	return f.fast.Output().Temp()
}

// ReadSlope returns the rate of change in degrees per hour. It is zero
// until enough samples have been seen.
func (f *Filter) ReadSlope() temp.Diff {
	if !f.slopeReady {
		return 0
	}
	return f.slope.Output().Diff()
}

// PosPeak reports a local maximum of the slow output.
func (f *Filter) PosPeak() (temp.Temp, bool) {
	p, ok := f.slow.PosPeak()
	return p.Temp(), ok
}

// NegPeak reports a local minimum of the slow output.
func (f *Filter) NegPeak() (temp.Temp, bool) {
	p, ok := f.slow.NegPeak()
	return p.Temp(), ok
}
