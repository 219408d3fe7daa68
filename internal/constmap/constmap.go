// Package constmap implements the ConstantMap (spec section 4.H): a
// content-addressed, append-only vector of runtime literal values, used by
// PUSHCONST. Serializable via encoding/json for program persistence,
// matching the teacher's deterministic-JSON idiom instead of a hand-rolled
// binary format.
package constmap

import (
	"encoding/json"
	"fmt"
)

// Value is a runtime constant as the compiler sees it: only the literal
// shapes that can appear in a Quote or an Atom literal. The VM's full value
// representation is out of scope; this is the subset the constant map must
// round-trip.
type Value struct {
	Kind    string  `json:"kind"` // "int", "real", "bool", "char", "string", "void", "list"
	Int     int64   `json:"int,omitempty"`
	Real    float64 `json:"real,omitempty"`
	Bool    bool    `json:"bool,omitempty"`
	Char    rune    `json:"char,omitempty"`
	Str     string  `json:"str,omitempty"`
	List    []Value `json:"list,omitempty"`
}

// key returns a string uniquely identifying v's content, used for the
// content-addressed lookup. Two values with the same key must be
// semantically interchangeable as PUSHCONST operands.
func (v Value) key() string {
	data, _ := json.Marshal(v)
	return v.Kind + ":" + string(data)
}

// Int, Real, Bool, Char, Str, List construct constant Values of each kind.
func Int(n int64) Value      { return Value{Kind: "int", Int: n} }
func Real(f float64) Value   { return Value{Kind: "real", Real: f} }
func Bool(b bool) Value      { return Value{Kind: "bool", Bool: b} }
func Char(c rune) Value      { return Value{Kind: "char", Char: c} }
func Str(s string) Value     { return Value{Kind: "string", Str: s} }
func List(vs []Value) Value  { return Value{Kind: "list", List: vs} }
func Void() Value            { return Value{Kind: "void"} }

// Map is the append-only, content-addressed constant pool. It is not safe
// for concurrent mutation; callers own external synchronization (spec
// section 5, "shared resources").
type Map struct {
	values []Value
	index  map[string]int
}

// New creates an empty ConstantMap.
func New() *Map {
	return &Map{index: make(map[string]int)}
}

// AddOrGet returns the existing index for v if already present, otherwise
// appends v and returns its new index. Indices are stable for the life of
// the map (P8: constant map monotonicity).
func (m *Map) AddOrGet(v Value) int {
	k := v.key()
	if idx, ok := m.index[k]; ok {
		return idx
	}
	idx := len(m.values)
	m.values = append(m.values, v)
	m.index[k] = idx
	return idx
}

// Get returns the value at idx.
func (m *Map) Get(idx int) (Value, bool) {
	if idx < 0 || idx >= len(m.values) {
		return Value{}, false
	}
	return m.values[idx], true
}

// Len reports how many distinct constants have been interned.
func (m *Map) Len() int {
	return len(m.values)
}

// Values returns the constant pool in insertion order. The returned slice
// must not be mutated by the caller.
func (m *Map) Values() []Value {
	return m.values
}

// MarshalJSON serializes the pool as a plain array, the shape ProgramBuilder
// embeds in a persisted Executable.
func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.values)
}

// UnmarshalJSON rebuilds the content-addressed index from a persisted array.
func (m *Map) UnmarshalJSON(data []byte) error {
	var values []Value
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("constmap: decode: %w", err)
	}
	m.values = nil
	m.index = make(map[string]int, len(values))
	for _, v := range values {
		m.AddOrGet(v)
	}
	return nil
}
