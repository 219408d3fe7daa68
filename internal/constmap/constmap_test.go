package constmap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOrGetIsIdempotent(t *testing.T) {
	m := New()
	a := m.AddOrGet(Int(42))
	b := m.AddOrGet(Int(42))
	assert.Equal(t, a, b)
	assert.Equal(t, 1, m.Len())
}

func TestAddOrGetDistinguishesKinds(t *testing.T) {
	m := New()
	a := m.AddOrGet(Int(0))
	b := m.AddOrGet(Bool(false))
	assert.NotEqual(t, a, b)
}

func TestIndicesAreStable(t *testing.T) {
	m := New()
	first := m.AddOrGet(Str("hello"))
	m.AddOrGet(Str("world"))
	again := m.AddOrGet(Str("hello"))
	assert.Equal(t, first, again)
}

func TestGetRoundTrips(t *testing.T) {
	m := New()
	idx := m.AddOrGet(Real(3.14))
	v, ok := m.Get(idx)
	require.True(t, ok)
	assert.Equal(t, 3.14, v.Real)
}

func TestGetOutOfRange(t *testing.T) {
	m := New()
	_, ok := m.Get(0)
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	m := New()
	m.AddOrGet(Int(1))
	m.AddOrGet(Str("x"))
	m.AddOrGet(List([]Value{Int(1), Int(2)}))

	data, err := json.Marshal(m)
	require.NoError(t, err)

	m2 := New()
	require.NoError(t, json.Unmarshal(data, m2))
	assert.Equal(t, m.Len(), m2.Len())
	assert.Equal(t, m.Values(), m2.Values())
}
