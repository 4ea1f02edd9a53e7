// Package temp implements the fixed-point temperature format shared by the
// filters, the controller and the host protocol.
//
// A Temp has 9 fraction bits (1/512 °C per step) stored in an int16 with a
// −48 °C offset, giving a range of roughly −16 °C to +112 °C. A Diff is a
// temperature difference on the same scale without the offset. Precise adds
// 16 extra fraction bits and is used inside the filters.
//
// All arithmetic saturates at the representable range; nothing wraps.
package temp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Temp is an absolute temperature in 7.9 fixed point with a −48 °C offset.
type Temp int16

// Diff is a temperature difference in 7.9 fixed point.
type Diff int16

// Long is a wide temperature difference used for accumulators.
type Long int32

// Precise is a temperature with 16 extra fraction bits (7.25 fixed point).
type Precise int32

const (
	// FractionBits is the number of fraction bits in Temp and Diff.
	FractionBits = 9
	// Scale is the number of steps per degree.
	Scale = 1 << FractionBits
	// Offset is the raw value of 0 °C.
	Offset = -48 * Scale
	// PreciseBits is the number of extra fraction bits in Precise.
	PreciseBits = 16

	// Invalid marks a missing or failed reading.
	Invalid Temp = math.MinInt16
	// Max is the largest representable temperature.
	Max Temp = math.MaxInt16
	// Min is the smallest valid temperature.
	Min Temp = math.MinInt16 + 1

	MaxDiff Diff = math.MaxInt16
	MinDiff Diff = math.MinInt16 + 1

	MaxPrecise Precise = math.MaxInt32
	MinPrecise Precise = math.MinInt32 + 1
)

// ErrSyntax is returned when a temperature string cannot be parsed.
var ErrSyntax = errors.New("temp: invalid syntax")

// Valid reports whether t holds a reading.
func (t Temp) Valid() bool { return t != Invalid }

// FromCelsius converts degrees Celsius, saturating at Min/Max.
func FromCelsius(c float64) Temp {
	if math.IsNaN(c) {
		return Invalid
	}
	v := math.Round(c*Scale) + Offset
	if v >= float64(Max) {
		return Max
	}
	if v <= float64(Min) {
		return Min
	}
	return Temp(v)
}

// Celsius returns t in degrees Celsius. Invalid returns NaN.
func (t Temp) Celsius() float64 {
	if !t.Valid() {
		return math.NaN()
	}
	return float64(int32(t)-Offset) / Scale
}

// DiffFromCelsius converts a difference in degrees, saturating.
func DiffFromCelsius(c float64) Diff {
	if math.IsNaN(c) {
		return 0
	}
	v := math.Round(c * Scale)
	if v >= float64(MaxDiff) {
		return MaxDiff
	}
	if v <= float64(MinDiff) {
		return MinDiff
	}
	return Diff(v)
}

// Celsius returns d in degrees.
func (d Diff) Celsius() float64 { return float64(d) / Scale }

// Saturate clamps v into [Min, Max].
func Saturate(v int64) Temp {
	switch {
	case v > int64(Max):
		return Max
	case v < int64(Min):
		return Min
	}
	return Temp(v)
}

// SaturateDiff clamps v into [MinDiff, MaxDiff].
func SaturateDiff(v int64) Diff {
	switch {
	case v > int64(MaxDiff):
		return MaxDiff
	case v < int64(MinDiff):
		return MinDiff
	}
	return Diff(v)
}

// SaturateLong clamps v into the int32 range.
func SaturateLong(v int64) Long {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32+1:
		return math.MinInt32 + 1
	}
	return Long(v)
}

// SaturatePrecise clamps v into [MinPrecise, MaxPrecise].
func SaturatePrecise(v int64) Precise {
	switch {
	case v > int64(MaxPrecise):
		return MaxPrecise
	case v < int64(MinPrecise):
		return MinPrecise
	}
	return Precise(v)
}

// Add returns t+d. Invalid stays Invalid.
func (t Temp) Add(d Diff) Temp {
	if !t.Valid() {
		return Invalid
	}
	return Saturate(int64(t) + int64(d))
}

// Sub returns t−o as a difference.
func (t Temp) Sub(o Temp) Diff {
	return SaturateDiff(int64(t) - int64(o))
}

// Clamp limits t to [lo, hi].
func (t Temp) Clamp(lo, hi Temp) Temp {
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}

// Within reports whether a and b differ by at most tol.
func Within(a, b Temp, tol Diff) bool {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	return d <= int64(tol)
}

// Precise widens t to the filter format.
func (t Temp) Precise() Precise {
	return Precise(int32(t) << PreciseBits)
}

// Temp narrows p to a Temp, rounding to the nearest step.
func (p Precise) Temp() Temp {
	return Saturate((int64(p) + 1<<(PreciseBits-1)) >> PreciseBits)
}

// Diff narrows p to a Diff, rounding to the nearest step.
func (p Precise) Diff() Diff {
	return SaturateDiff((int64(p) + 1<<(PreciseBits-1)) >> PreciseBits)
}

// Mul multiplies a fixed-point factor by a difference.
func Mul(factor, d Diff) Diff {
	return SaturateDiff((int64(factor) * int64(d)) >> FractionBits)
}

// MulLong multiplies a fixed-point factor by a wide difference.
func MulLong(factor Diff, l Long) Diff {
	return SaturateDiff((int64(factor) * int64(l)) >> FractionBits)
}

// String formats t with the shortest decimal that parses back to t.
func (t Temp) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return strconv.FormatFloat(t.Celsius(), 'f', -1, 64)
}

// String formats d with the shortest decimal that parses back to d.
func (d Diff) String() string {
	return strconv.FormatFloat(d.Celsius(), 'f', -1, 64)
}

// Format renders t with a fixed number of decimals.
func (t Temp) Format(decimals int) string {
	if !t.Valid() {
		return "invalid"
	}
	return strconv.FormatFloat(t.Celsius(), 'f', decimals, 64)
}

// Parse reads a decimal temperature in degrees Celsius.
func Parse(s string) (Temp, error) {
	c, err := parseFloat(s)
	if err != nil {
		return Invalid, err
	}
	return FromCelsius(c), nil
}

// ParseDiff reads a decimal temperature difference in degrees.
func ParseDiff(s string) (Diff, error) {
	c, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	return DiffFromCelsius(c), nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	c, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return c, nil
}
