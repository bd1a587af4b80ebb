package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	s := NewState(NewConfig())
	s.OpenLibraries()
	return s
}

func TestState_ArithmeticExpression(t *testing.T) {
	s := newTestState(t)
	err := s.DoString("return 1 + 2 * 3", "=test")
	assert.NoError(t, err)
	assert.Equal(t, int64(7), s.ToInt(-1))
}

func TestState_StringLibrary(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`return string.upper("abc")`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, "ABC", s.ToString(-1))
}

func TestState_TableConstructorAndLength(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`local t = {1, 2, 3} return #t`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), s.ToInt(-1))
}

func TestState_ForLoopAccumulates(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`
local sum = 0
for i = 1, 5 do
  sum = sum + i
end
return sum
`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, int64(15), s.ToInt(-1))
}

func TestState_ClosureUpvalueCounter(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`
local function makeCounter()
  local n = 0
  return function()
    n = n + 1
    return n
  end
end
local c = makeCounter()
c()
c()
return c()
`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), s.ToInt(-1))
}

func TestState_PCallCatchesError(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`
local ok, msg = pcall(function() error("boom") end)
return ok, msg
`, "=test")
	assert.NoError(t, err)
	assert.False(t, s.ToBool(-2))
}

func TestState_TableLibraryInsertAndConcat(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`
local t = {}
table.insert(t, "a")
table.insert(t, "b")
table.insert(t, "c")
return table.concat(t, ",")
`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, "a,b,c", s.ToString(-1))
}

func TestState_MathLibrary(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`return math.floor(3.7), math.sqrt(16)`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), s.ToInt(-2))
	assert.InDelta(t, 4.0, s.ToFloat(-1), 1e-9)
}

func TestState_CoroutineResumeYield(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`
local co = coroutine.create(function(a)
  local b = coroutine.yield(a + 1)
  return b + 1
end)
local ok1, v1 = coroutine.resume(co, 10)
local ok2, v2 = coroutine.resume(co, 100)
return ok1, v1, ok2, v2
`, "=test")
	assert.NoError(t, err)
	assert.True(t, s.ToBool(-4))
	assert.Equal(t, int64(11), s.at(-3).AsInt())
	assert.True(t, s.at(-2).IsTruthy())
	assert.Equal(t, int64(101), s.at(-1).AsInt())
}

func TestState_HostEmbeddingPushCall(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`function add(a, b) return a + b end`, "=test")
	assert.NoError(t, err)

	err = s.GetGlobal("add")
	assert.NoError(t, err)
	s.PushInt(4)
	s.PushInt(5)
	err = s.Call(2, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(9), s.ToInt(-1))
}

func TestState_CollectGarbageCount(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`local t = {} for i=1,100 do t[i] = i end`, "=test")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, s.CollectGarbage("count"), 0)
	s.CollectGarbage("collect")
}
