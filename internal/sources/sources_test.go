package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddSourceAssignsSequentialIDs(t *testing.T) {
	s := New()
	a := s.AddSource("(+ 1 2)", "a.scm")
	b := s.AddSource("(+ 3 4)", "b.scm")
	assert.Equal(t, ID(0), a)
	assert.Equal(t, ID(1), b)
}

func TestGetAndGetPath(t *testing.T) {
	s := New()
	id := s.AddSource("(define x 1)", "x.scm")

	text, ok := s.Get(id)
	assert.True(t, ok)
	assert.Equal(t, "(define x 1)", text)

	path, ok := s.GetPath(id)
	assert.True(t, ok)
	assert.Equal(t, "x.scm", path)
}

func TestGetUnknownID(t *testing.T) {
	s := New()
	_, ok := s.Get(42)
	assert.False(t, ok)
}

func TestLen(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.Len())
	s.AddSource("1", "a")
	assert.Equal(t, 1, s.Len())
}
