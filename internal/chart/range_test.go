package chart

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateRangeAuto(t *testing.T) {
	tests := []struct {
		name     string
		channels [][]float64
		want     DisplayRange
	}{
		{"constant signal", [][]float64{{1, 1, 1}}, DisplayRange{Min: 1 - 0.1, Max: 1 + 0.1}},
		{"empty", [][]float64{{}}, DisplayRange{Min: -1, Max: 1}},
		{"no channels", nil, DisplayRange{Min: -1, Max: 1}},
		{"all non-finite", [][]float64{{math.NaN(), math.Inf(1)}, {math.Inf(-1)}}, DisplayRange{Min: -1, Max: 1}},
		{"ten percent pad", [][]float64{{0, 10}}, DisplayRange{Min: -1, Max: 11}},
		{"across channels", [][]float64{{0, 2}, {8}, {10}}, DisplayRange{Min: -1, Max: 11}},
		{"non-finite ignored", [][]float64{{0, math.NaN(), 10, math.Inf(1)}}, DisplayRange{Min: -1, Max: 11}},
		{"constant zero", [][]float64{{0, 0}}, DisplayRange{Min: -0.1, Max: 0.1}},
		{"constant large", [][]float64{{-50}}, DisplayRange{Min: -55, Max: -45}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateRange(tt.channels, Auto, 0)
			assert.InDelta(t, tt.want.Min, got.Min, 1e-12)
			assert.InDelta(t, tt.want.Max, got.Max, 1e-12)
			assert.Less(t, got.Min, got.Max)
		})
	}
}

func TestEstimateRangeConstantIsExact(t *testing.T) {
	got := EstimateRange([][]float64{{1, 1, 1}}, Auto, 0)
	assert.Equal(t, DisplayRange{Min: 1 - 0.1, Max: 1 + 0.1}, got)
}

func TestEstimateRangeManualIgnoresData(t *testing.T) {
	got := EstimateRange([][]float64{{-1000, 1000}}, Manual, 16)
	assert.Equal(t, DisplayRange{Min: -16, Max: 16}, got)
}

func TestEstimateRangeIsIdempotent(t *testing.T) {
	data := [][]float64{{0.3, -2.5, 7.1}, {1, 2, 3}}
	assert.Equal(t, EstimateRange(data, Auto, 0), EstimateRange(data, Auto, 0))
}

func TestEstimateRangeNeverInfinite(t *testing.T) {
	got := EstimateRange([][]float64{{-math.MaxFloat64, math.MaxFloat64}}, Auto, 0)
	assert.False(t, math.IsInf(got.Min, 0))
	assert.False(t, math.IsInf(got.Max, 0))
	assert.Less(t, got.Min, got.Max)

	for _, v := range []float64{1.7e308, math.MaxFloat64, -math.MaxFloat64} {
		got := EstimateRange([][]float64{{v, v, v}}, Auto, 0)
		assert.False(t, math.IsInf(got.Min, 0), "min for %g", v)
		assert.False(t, math.IsInf(got.Max, 0), "max for %g", v)
		assert.Less(t, got.Min, got.Max, "range for %g", v)
	}
}

func TestParseScale(t *testing.T) {
	v, err := ParseScale(" 16 ")
	require.NoError(t, err)
	assert.Equal(t, 16.0, v)

	for _, in := range []string{"", "abc", "NaN", "Inf", "-4", "0"} {
		_, err := ParseScale(in)
		var scaleErr *InvalidScaleError
		assert.True(t, errors.As(err, &scaleErr), "input %q", in)
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ef4444")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xef), c.R)
	assert.Equal(t, uint8(0x44), c.G)
	assert.Equal(t, uint8(0x44), c.B)
	assert.Equal(t, uint8(0xff), c.A)

	c, err = ParseColor("#fff")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xff), c.B)

	_, err = ParseColor("red")
	assert.Error(t, err)
}
