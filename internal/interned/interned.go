// Package interned provides the process-wide InternedString table (spec
// section 3): a mapping from string spellings to small integers. A Compiler
// owns one Table; analysis, the interner, and the constant map key their
// own tables on plain strings and do not consult it. It is
// safe for concurrent lookup once its write set has stabilized, matching
// the teacher's cache+RWMutex idiom for shared lookup tables.
package interned

import "sync"

// ID is a small integer standing in for an interned string.
type ID int32

// Table is an append-only string interner.
type Table struct {
	mu      sync.RWMutex
	byValue map[string]ID
	byID    []string
}

// NewTable creates an empty interner.
func NewTable() *Table {
	return &Table{byValue: make(map[string]ID)}
}

// Intern returns the ID for s, assigning a fresh one if s has not been seen
// before. Safe for concurrent use.
func (t *Table) Intern(s string) ID {
	t.mu.RLock()
	if id, ok := t.byValue[s]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byValue[s]; ok {
		return id
	}
	id := ID(len(t.byID))
	t.byID = append(t.byID, s)
	t.byValue[s] = id
	return id
}

// Lookup returns the interned string for id, if id was ever assigned.
func (t *Table) Lookup(id ID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(t.byID) {
		return "", false
	}
	return t.byID[id], true
}

// Len reports how many distinct strings have been interned.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
