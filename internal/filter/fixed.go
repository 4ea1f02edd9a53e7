package filter

import "github.com/sweeney/ferment-controller/internal/temp"

// Coefficient bounds. A section with coefficient b has a delay of roughly
// 3.75·2^b samples.
const (
	MinCoefficient = 1
	MaxCoefficient = 6
)

// Section is a second-order low-pass IIR filter implemented with shifts.
// The input shift a is derived from b as 2b+4, which places both poles at
// 1−2^−(b+1): critically damped, so a step never overshoots.
type Section struct {
	a, b uint8
	xv   [3]int64
	yv   [3]int64
}

// SetCoefficient changes b, keeping the filter state.
func (s *Section) SetCoefficient(b uint8) {
	s.b = b
	s.a = 2*b + 4
}

// Coefficient returns b.
func (s *Section) Coefficient() uint8 { return s.b }

// Init sets the whole history to v, as if v had been applied forever.
func (s *Section) Init(v temp.Precise) {
	for i := range s.xv {
		s.xv[i] = int64(v)
		s.yv[i] = int64(v)
	}
}

// Add feeds one sample and returns the new output.
func (s *Section) Add(v temp.Precise) temp.Precise {
	s.xv[2], s.xv[1], s.xv[0] = s.xv[1], s.xv[0], int64(v)
	s.yv[2], s.yv[1] = s.yv[1], s.yv[0]

	a, b := s.a, s.b
	x0, x1, x2 := s.xv[0], s.xv[1], s.xv[2]
	y1, y2 := s.yv[1], s.yv[2]

	// y0 = 2·y1 − y2 − (y1−y2)/2^b + (x0 + 2·x1 + x2 − 4·y2)/2^a
	// DC gain is one for any a.
	y0 := ((y1 - y2) + y1) - (y1 >> b) + (y2 >> b) +
		(x0 >> a) + (x1 >> (a - 1)) + (x2 >> a) - (y2 >> (a - 2))

	s.yv[0] = int64(temp.SaturatePrecise(y0))
	return temp.Precise(s.yv[0])
}

// Output returns the latest output.
func (s *Section) Output() temp.Precise { return temp.Precise(s.yv[0]) }

// PosPeak reports a local maximum at the previous output.
func (s *Section) PosPeak() (temp.Precise, bool) {
	if s.yv[0] < s.yv[1] && s.yv[1] >= s.yv[2] {
		return temp.Precise(s.yv[1]), true
	}
	return 0, false
}

// NegPeak reports a local minimum at the previous output.
func (s *Section) NegPeak() (temp.Precise, bool) {
	if s.yv[0] > s.yv[1] && s.yv[1] <= s.yv[2] {
		return temp.Precise(s.yv[1]), true
	}
	return 0, false
}

// Sections is the number of sections in a Cascaded filter.
const Sections = 3

// Cascaded chains Sections identical sections for a steeper roll-off.
type Cascaded struct {
	sections [Sections]Section
}

// NewCascaded returns a cascade with coefficient b.
func NewCascaded(b uint8) *Cascaded {
	c := &Cascaded{}
	c.SetCoefficient(b)
	return c
}

// SetCoefficient changes b on every section, keeping state.
func (c *Cascaded) SetCoefficient(b uint8) {
	for i := range c.sections {
		c.sections[i].SetCoefficient(b)
	}
}

// Coefficient returns b.
func (c *Cascaded) Coefficient() uint8 { return c.sections[0].Coefficient() }

// Init sets every section's history to v.
func (c *Cascaded) Init(v temp.Precise) {
	for i := range c.sections {
		c.sections[i].Init(v)
	}
}

// Add feeds v through the chain and returns the last section's output.
func (c *Cascaded) Add(v temp.Precise) temp.Precise {
	for i := range c.sections {
		v = c.sections[i].Add(v)
	}
	return v
}

// Output returns the last section's output.
func (c *Cascaded) Output() temp.Precise {
	return c.sections[Sections-1].Output()
}

// PosPeak reports a maximum in the final output.
func (c *Cascaded) PosPeak() (temp.Precise, bool) {
	return c.sections[Sections-1].PosPeak()
}

// NegPeak reports a minimum in the final output.
func (c *Cascaded) NegPeak() (temp.Precise, bool) {
	return c.sections[Sections-1].NegPeak()
}

// DelaySamples is the approximate number of samples a cascade with
// coefficient b takes to cover half of a step.
func DelaySamples(b uint8) int {
	return Sections * (15 << b) / 4
}
