package builtinreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(&Module{Name: "racket/base", Bindings: map[string]Binding{
		"displayln": {Name: "displayln", Value: nil},
	}})

	m, ok := r.Lookup("racket/base")
	assert.True(t, ok)
	assert.Equal(t, "racket/base", m.Name)
}

func TestExportsKnownBinding(t *testing.T) {
	r := NewRegistry()
	r.Register(&Module{Name: "m", Bindings: map[string]Binding{"x": {Name: "x"}}})
	assert.True(t, r.Exports("m", "x"))
}

func TestExportsUnknownBindingOrModule(t *testing.T) {
	r := NewRegistry()
	r.Register(&Module{Name: "m", Bindings: map[string]Binding{"x": {Name: "x"}}})
	assert.False(t, r.Exports("m", "y"))
	assert.False(t, r.Exports("nope", "x"))
}
