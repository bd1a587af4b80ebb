package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestGlobalState() *globalState {
	return newGlobalState(NewConfig(), defaultHashSeed())
}

func TestTable_ArrayPartGetSet(t *testing.T) {
	g := newTestGlobalState()
	tb := newTable(g, 0, 0)

	tb.rawSet(g, IntValue(1), StringValue(g.NewString("a")))
	tb.rawSet(g, IntValue(2), StringValue(g.NewString("b")))
	tb.rawSet(g, IntValue(3), StringValue(g.NewString("c")))

	assert.Equal(t, "a", tb.rawGet(IntValue(1)).ToStringValue())
	assert.Equal(t, "b", tb.rawGet(IntValue(2)).ToStringValue())
	assert.Equal(t, "c", tb.rawGet(IntValue(3)).ToStringValue())
	assert.Equal(t, int64(3), tb.Len())
}

func TestTable_HashPartGetSet(t *testing.T) {
	g := newTestGlobalState()
	tb := newTable(g, 0, 0)

	tb.rawSet(g, StringValue(g.NewString("x")), IntValue(10))
	tb.rawSet(g, StringValue(g.NewString("y")), IntValue(20))

	assert.Equal(t, int64(10), tb.rawGet(StringValue(g.NewString("x"))).AsInt())
	assert.Equal(t, int64(20), tb.rawGet(StringValue(g.NewString("y"))).AsInt())
	assert.True(t, tb.rawGet(StringValue(g.NewString("z"))).IsNil())
}

func TestTable_SetNilRemovesKey(t *testing.T) {
	g := newTestGlobalState()
	tb := newTable(g, 0, 0)

	tb.rawSet(g, StringValue(g.NewString("k")), IntValue(1))
	assert.False(t, tb.rawGet(StringValue(g.NewString("k"))).IsNil())

	tb.rawSet(g, StringValue(g.NewString("k")), NilValue)
	assert.True(t, tb.rawGet(StringValue(g.NewString("k"))).IsNil())
}

func TestTable_IntFloatKeysCanonicalize(t *testing.T) {
	g := newTestGlobalState()
	tb := newTable(g, 0, 0)

	tb.rawSet(g, IntValue(5), StringValue(g.NewString("five")))
	assert.Equal(t, "five", tb.rawGet(FloatValue(5.0)).ToStringValue())
}

func TestTable_RehashGrowsPastInitialSize(t *testing.T) {
	g := newTestGlobalState()
	tb := newTable(g, 0, 0)

	for i := 0; i < 200; i++ {
		tb.rawSet(g, IntValue(int64(i+1)), IntValue(int64(i*2)))
	}
	for i := 0; i < 200; i++ {
		v := tb.rawGet(IntValue(int64(i + 1)))
		assert.Equal(t, int64(i*2), v.AsInt())
	}
	assert.Equal(t, int64(200), tb.Len())
}

func TestTable_NextIteratesAllEntries(t *testing.T) {
	g := newTestGlobalState()
	tb := newTable(g, 0, 0)
	tb.rawSet(g, IntValue(1), IntValue(100))
	tb.rawSet(g, IntValue(2), IntValue(200))
	tb.rawSet(g, StringValue(g.NewString("k")), IntValue(300))

	seen := map[string]int64{}
	k := NilValue
	for {
		nk, nv, ok := tb.Next(k)
		assert.True(t, ok)
		if nk.IsNil() {
			break
		}
		seen[nk.ToStringValue()] = nv.AsInt()
		k = nk
	}
	assert.Equal(t, int64(100), seen["1"])
	assert.Equal(t, int64(200), seen["2"])
	assert.Equal(t, int64(300), seen["k"])
	assert.Len(t, seen, 3)
}

func TestTable_CollidingKeysSurviveRemoval(t *testing.T) {
	g := newTestGlobalState()
	tb := newTable(g, 0, 2)

	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for i, k := range keys {
		tb.rawSet(g, StringValue(g.NewString(k)), IntValue(int64(i)))
	}
	tb.rawSet(g, StringValue(g.NewString("beta")), NilValue)

	for i, k := range keys {
		v := tb.rawGet(StringValue(g.NewString(k)))
		if k == "beta" {
			assert.True(t, v.IsNil())
			continue
		}
		assert.Equal(t, int64(i), v.AsInt())
	}
}
