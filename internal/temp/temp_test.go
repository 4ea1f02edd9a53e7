package temp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCelsius(t *testing.T) {
	tests := []struct {
		name string
		c    float64
		want Temp
	}{
		{"zero", 0, Offset},
		{"twenty", 20, 20*Scale + Offset},
		{"half step rounds", 20 + 1.0/1024, 20*Scale + Offset + 1},
		{"negative", -10, -10*Scale + Offset},
		{"above range", 200, Max},
		{"below range", -100, Min},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromCelsius(tt.c))
		})
	}
}

func TestCelsiusRoundTrip(t *testing.T) {
	for _, c := range []float64{-15.5, 0, 4.25, 18.5, 20, 20.6, 35.125, 100} {
		got := FromCelsius(c).Celsius()
		assert.InDelta(t, c, got, 1.0/Scale, "value %v", c)
	}
	assert.True(t, FromCelsius(20).Valid())
	assert.False(t, Invalid.Valid())
}

func TestAddSaturates(t *testing.T) {
	assert.Equal(t, Max, Max.Add(100))
	assert.Equal(t, Min, Min.Add(-100))
	assert.Equal(t, Max, FromCelsius(100).Add(DiffFromCelsius(50)))
	assert.Equal(t, Invalid, Invalid.Add(1))
	assert.Equal(t, FromCelsius(20.5), FromCelsius(20).Add(DiffFromCelsius(0.5)))
}

func TestSubSaturates(t *testing.T) {
	assert.Equal(t, MaxDiff, Max.Sub(Min))
	assert.Equal(t, MinDiff, Min.Sub(Max))
	assert.Equal(t, DiffFromCelsius(-1.5), FromCelsius(18.5).Sub(FromCelsius(20)))
}

func TestStringParseRoundTrip(t *testing.T) {
	for _, raw := range []int16{int16(Min), -20000, -14336, -14335, 0, 1, 12345, int16(Max)} {
		v := Temp(raw)
		got, err := Parse(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got, "raw %d formatted %q", raw, v.String())
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"", "abc", "NaN", "Inf", "20,5"} {
		_, err := Parse(s)
		assert.True(t, errors.Is(err, ErrSyntax), "input %q", s)
	}
	d, err := ParseDiff(" 0.5 ")
	require.NoError(t, err)
	assert.Equal(t, Diff(256), d)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "20.50", FromCelsius(20.5).Format(2))
	assert.Equal(t, "invalid", Invalid.Format(2))
	assert.Equal(t, "invalid", Invalid.String())
}

func TestPrecise(t *testing.T) {
	v := FromCelsius(21.3)
	assert.Equal(t, v, v.Precise().Temp())
	assert.Equal(t, Max, MaxPrecise.Temp())
	assert.Equal(t, Diff(3), Precise(3<<PreciseBits).Diff())
	assert.Equal(t, MaxPrecise, SaturatePrecise(1<<40))
}

func TestMul(t *testing.T) {
	assert.Equal(t, DiffFromCelsius(2.5), Mul(DiffFromCelsius(5), DiffFromCelsius(0.5)))
	assert.Equal(t, MaxDiff, Mul(DiffFromCelsius(60), DiffFromCelsius(60)))
	assert.Equal(t, DiffFromCelsius(-1), MulLong(DiffFromCelsius(-0.5), Long(DiffFromCelsius(2))))
}

func TestWithinAndClamp(t *testing.T) {
	assert.True(t, Within(FromCelsius(20), FromCelsius(20.05), DiffFromCelsius(0.0625)))
	assert.False(t, Within(FromCelsius(20), FromCelsius(20.1), DiffFromCelsius(0.0625)))
	lo, hi := FromCelsius(1), FromCelsius(30)
	assert.Equal(t, hi, FromCelsius(40).Clamp(lo, hi))
	assert.Equal(t, lo, FromCelsius(-5).Clamp(lo, hi))
}
