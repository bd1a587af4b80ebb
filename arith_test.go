package ember

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int64
		expected int64
	}{
		{"positive/positive", 7, 2, 3},
		{"negative/positive rounds toward -inf", -7, 2, -4},
		{"positive/negative rounds toward -inf", 7, -2, -4},
		{"negative/negative", -7, -2, 3},
		{"exact division", 8, 2, 4},
		{"divide by -1", 8, -1, -8},
		{"MinInt64 divided by -1 does not overflow", math.MinInt64, -1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, err := floorDiv(tc.a, tc.b)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, q)
		})
	}

	_, err := floorDiv(1, 0)
	assert.Error(t, err)
}

func TestFloorMod(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int64
		expected int64
	}{
		{"positive/positive", 7, 2, 1},
		{"negative/positive", -7, 2, 1},
		{"positive/negative", 7, -2, -1},
		{"negative/negative", -7, -2, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := floorMod(tc.a, tc.b)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, m)
		})
	}

	_, err := floorMod(1, 0)
	assert.Error(t, err)
}

func TestFloatFloorMod(t *testing.T) {
	assert.InDelta(t, 1.0, floatFloorMod(7.0, 2.0), 1e-9)
	assert.InDelta(t, 1.0, floatFloorMod(-7.0, 2.0), 1e-9)
}

func TestToInt64Bitwise(t *testing.T) {
	i, ok := toInt64Bitwise(IntValue(5))
	assert.True(t, ok)
	assert.Equal(t, int64(5), i)

	i, ok = toInt64Bitwise(FloatValue(5.0))
	assert.True(t, ok)
	assert.Equal(t, int64(5), i)

	_, ok = toInt64Bitwise(FloatValue(5.5))
	assert.False(t, ok)

	_, ok = toInt64Bitwise(FloatValue(math.NaN()))
	assert.False(t, ok)
}

func TestArith_IntegerFastPath(t *testing.T) {
	th := &Thread{}
	v, err := arith(th, opAdd, IntValue(2), IntValue(3))
	assert.NoError(t, err)
	assert.Equal(t, int64(5), v.AsInt())

	v, err = arith(th, opMul, IntValue(4), FloatValue(2.5))
	assert.NoError(t, err)
	assert.True(t, v.IsFloat())
	assert.InDelta(t, 10.0, v.AsFloat(), 1e-9)
}

func TestArith_DivideByZeroError(t *testing.T) {
	th := &Thread{}
	_, err := arith(th, opIDiv, IntValue(1), IntValue(0))
	assert.Error(t, err)
}
