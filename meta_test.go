package ember

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumLess(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Value
		expected bool
	}{
		{"int/int", IntValue(1), IntValue(2), true},
		{"float/float", FloatValue(1.5), FloatValue(2.5), true},
		{"small int vs float, exact compare", IntValue(3), FloatValue(3.5), true},
		{"small int vs float, equal", IntValue(3), FloatValue(3.0), false},
		{"large int beyond 2^53 vs huge float", IntValue(math.MaxInt64 - 1), FloatValue(1e19), true},
		{"large int beyond 2^53 vs tiny float", IntValue(math.MaxInt64 - 1), FloatValue(-1e19), false},
		{"MinInt64 vs float below range", IntValue(math.MinInt64), FloatValue(-1e19), false},
		{"float below MinInt64 vs huge int", FloatValue(-1e19), IntValue(math.MaxInt64), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, numLess(tc.a, tc.b))
		})
	}
}

func TestIntFitsFloat(t *testing.T) {
	assert.True(t, intFitsFloat(1<<53))
	assert.True(t, intFitsFloat(-(1 << 53)))
	assert.False(t, intFitsFloat((1<<53)+1))
	assert.False(t, intFitsFloat(math.MaxInt64))
}
