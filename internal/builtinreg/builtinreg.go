// Package builtinreg is the BuiltInModule registry interface (spec section
// 6): the standard-library/built-in lookup surface the compiler treats as
// an opaque external collaborator. It only records that a name exists so
// the module manager can resolve `require` of a built-in module without
// ever inspecting the value behind it. Grounded on the teacher's
// internal/builtins registry.go + spec.go metadata-only registration idiom,
// stripped of the teacher's concrete type-checked implementations (out of
// scope here).
package builtinreg

import "sync"

// Binding is an opaque (name, value) pair exposed by a built-in module. The
// compiler never inspects Value; it exists only so a host embedding this
// module can supply real runtime values to the VM side out of band.
type Binding struct {
	Name  string
	Value any
}

// Module is a single built-in module: a name and the bindings it exports.
type Module struct {
	Name     string
	Bindings map[string]Binding
}

// Registry maps module name to Module. Safe for concurrent lookup once
// registration has stabilized, matching every other shared lookup table in
// this pipeline.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Register adds or replaces a module.
func (r *Registry) Register(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name] = m
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Exports reports whether module name exports binding, without exposing
// its value — the only question the module manager needs answered when
// resolving an import (spec section 4.A: "import references non-existent
// export" is a MOD004 error).
func (r *Registry) Exports(moduleName, bindingName string) bool {
	m, ok := r.Lookup(moduleName)
	if !ok {
		return false
	}
	_, ok = m.Bindings[bindingName]
	return ok
}
