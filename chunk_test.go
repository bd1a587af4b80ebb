package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk_DumpLoadRoundTrip(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`function add(a, b) return a + b end`, "=test")
	assert.NoError(t, err)

	err = s.GetGlobal("add")
	assert.NoError(t, err)
	bin, err := s.DumpTop()
	assert.NoError(t, err)
	assert.NotEmpty(t, bin)
	s.Pop(1)

	p, err := Load(s.Global(), bin, "=reloaded")
	assert.NoError(t, err)
	assert.NotNil(t, p)

	cl := newScriptClosure(s.Global(), p)
	if len(p.Upvalues) > 0 {
		cl.Upvalues[0] = &upvalue{closed: true, value: TableValue(s.Thread().globals())}
	}
	res, err := call(s.Thread(), ClosureValue(cl), []Value{IntValue(3), IntValue(4)}, -1)
	assert.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Equal(t, int64(7), res[0].AsInt())
}
