package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_RawEqual(t *testing.T) {
	tests := []struct {
		name     string
		a        Value
		b        Value
		expected bool
	}{
		{"same int", IntValue(3), IntValue(3), true},
		{"different int", IntValue(3), IntValue(4), false},
		{"int equals integral float", IntValue(3), FloatValue(3.0), true},
		{"int does not equal fractional float", IntValue(3), FloatValue(3.5), false},
		{"nil equals nil", NilValue, NilValue, true},
		{"nil does not equal false", NilValue, FalseValue, false},
		{"bool equality", TrueValue, TrueValue, true},
		{"bool inequality", TrueValue, FalseValue, false},
		{"different kinds", IntValue(1), TrueValue, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, RawEqual(tc.a, tc.b))
			assert.Equal(t, tc.expected, RawEqual(tc.b, tc.a))
		})
	}
}

func TestValue_Canonicalize(t *testing.T) {
	v := FloatValue(4.0).Canonicalize()
	assert.True(t, v.IsInt())
	assert.Equal(t, int64(4), v.AsInt())

	v = FloatValue(4.5).Canonicalize()
	assert.True(t, v.IsFloat())
}

func TestValue_ToStringValue(t *testing.T) {
	assert.Equal(t, "nil", NilValue.ToStringValue())
	assert.Equal(t, "true", TrueValue.ToStringValue())
	assert.Equal(t, "false", FalseValue.ToStringValue())
	assert.Equal(t, "42", IntValue(42).ToStringValue())
	assert.Equal(t, "1.5", FloatValue(1.5).ToStringValue())
	assert.Equal(t, "3.0", FloatValue(3.0).ToStringValue())
}

func TestValue_ToNumber(t *testing.T) {
	g := newGlobalState(NewConfig(), defaultHashSeed())

	v, ok := ToNumber(IntValue(5))
	assert.True(t, ok)
	assert.Equal(t, IntValue(5), v)

	v, ok = ToNumber(StringValue(g.NewString("  42  ")))
	assert.True(t, ok)
	assert.True(t, v.IsInt())
	assert.Equal(t, int64(42), v.AsInt())

	v, ok = ToNumber(StringValue(g.NewString("3.5")))
	assert.True(t, ok)
	assert.True(t, v.IsFloat())
	assert.InDelta(t, 3.5, v.AsFloat(), 1e-9)

	_, ok = ToNumber(StringValue(g.NewString("not a number")))
	assert.False(t, ok)

	_, ok = ToNumber(NilValue)
	assert.False(t, ok)
}

func TestValue_FloatIsInteger(t *testing.T) {
	i, ok := FloatIsInteger(4.0)
	assert.True(t, ok)
	assert.Equal(t, int64(4), i)

	_, ok = FloatIsInteger(4.2)
	assert.False(t, ok)

	_, ok = FloatIsInteger(float64ofNaN())
	assert.False(t, ok)
}

func float64ofNaN() float64 {
	var z float64
	return z / z
}
