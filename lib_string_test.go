package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringLibrary_SubAndRep(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`return string.sub("hello world", 1, 5), string.rep("ab", 3)`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, "ababab", s.ToString(-1))
	assert.Equal(t, "hello", s.at(-2).ToStringValue())
}

func TestStringLibrary_NegativeIndices(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`return string.sub("hello", -3, -1)`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, "llo", s.ToString(-1))
}

func TestStringLibrary_ByteAndChar(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`return string.byte("A"), string.char(65, 66)`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, int64(65), s.at(-2).AsInt())
	assert.Equal(t, "AB", s.ToString(-1))
}

func TestStringLibrary_Format(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`return string.format("%s=%d", "x", 42)`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, "x=42", s.ToString(-1))
}

func TestStringLibrary_FindPlainSubstring(t *testing.T) {
	s := newTestState(t)
	err := s.DoString(`return string.find("hello world", "world")`, "=test")
	assert.NoError(t, err)
	assert.Equal(t, int64(7), s.at(-2).AsInt())
	assert.Equal(t, int64(11), s.at(-1).AsInt())
}
