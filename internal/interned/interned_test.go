package interned

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternIsIdempotent(t *testing.T) {
	tbl := NewTable()
	a := tbl.Intern("foo")
	b := tbl.Intern("foo")
	assert.Equal(t, a, b)
	assert.Equal(t, 1, tbl.Len())
}

func TestInternAssignsDistinctIDs(t *testing.T) {
	tbl := NewTable()
	a := tbl.Intern("foo")
	b := tbl.Intern("bar")
	assert.NotEqual(t, a, b)
}

func TestLookupRoundTrips(t *testing.T) {
	tbl := NewTable()
	id := tbl.Intern("baz")
	s, ok := tbl.Lookup(id)
	assert.True(t, ok)
	assert.Equal(t, "baz", s)
}

func TestLookupUnknownID(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Lookup(99)
	assert.False(t, ok)
}

func TestInternConcurrentUse(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tbl.Intern("shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, tbl.Len())
}
