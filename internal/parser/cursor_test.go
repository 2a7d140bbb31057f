package parser

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		in      string
		base    int
		want    int64
		advance int
	}{
		{"42", 10, 42, 2},
		{"  -17 rest", 10, -17, 5},
		{"+8", 10, 8, 2},
		{"1f", 16, 0x1f, 2},
		{" 0x1F", 16, 0x1f, 5},
		{"0xg", 16, 0, 1},
		{"FFz", 16, 0xff, 2},
		{"12abc", 10, 12, 2},
		{"abc", 10, 0, 0},
		{"", 10, 0, 0},
		{"   ", 10, 0, 0},
		{"-", 10, 0, 0},
		{"99999999999999999999", 10, math.MaxInt64, 20},
		{"-99999999999999999999", 10, math.MinInt64, 21},
		{"-9223372036854775808", 10, math.MinInt64, 20},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, n := ParseInt(tt.in, tt.base)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.advance, n)
		})
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in      string
		want    float32
		advance int
	}{
		{"1.5", 1.5, 3},
		{" -2.25,", -2.25, 6},
		{".5", 0.5, 2},
		{"5.", 5, 2},
		{"1e3x", 1000, 3},
		{"1e", 1, 1},
		{"1e+", 1, 1},
		{"2E-1", 0.2, 4},
		{"0x1.8p1", 3, 7},
		{"0x10", 16, 4},
		{"-inf", float32(math.Inf(-1)), 4},
		{"Infinity", float32(math.Inf(1)), 8},
		{"1e50", float32(math.Inf(1)), 4},
		{"x", 0, 0},
		{".", 0, 0},
		{"", 0, 0},
		{"-", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, n := ParseFloat(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.advance, n)
		})
	}

	t.Run("nan", func(t *testing.T) {
		got, n := ParseFloat("nan(123)z")
		assert.True(t, math.IsNaN(float64(got)))
		assert.Equal(t, 8, n)

		got, n = ParseFloat("-NaN")
		assert.True(t, math.IsNaN(float64(got)))
		assert.Equal(t, 4, n)
	})
}

func TestCursor(t *testing.T) {
	c := NewCursor("a 12 3.5 ff tail")

	// A failed parse yields zero and does not advance.
	assert.Equal(t, int64(0), c.Int(10))
	assert.Equal(t, 0, c.Offset())

	c = NewCursor(" 12 3.5 ff tail")
	assert.Equal(t, int64(12), c.Int(10))
	assert.Equal(t, float32(3.5), c.Float())
	assert.Equal(t, int64(0xff), c.Int(16))
	assert.Equal(t, " tail", c.Rest())
	assert.Equal(t, float32(0), c.Float())
	assert.Equal(t, " tail", c.Rest())

	assert.Equal(t, []float32{1, 2, 0}, NewCursor("1 2").Floats(3))
}
