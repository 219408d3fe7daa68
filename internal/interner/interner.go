// Package interner implements the DebruijnInterner / SymbolMap (spec
// section 4.G): a two-pass assignment of dense global indices to symbolic
// references in a compiled Instruction stream, with forward-reference
// detection and rollback on failure. Grounded on steel's compiler.rs
// method-form interner (spec's Open Question 1: the method-form is the
// only authoritative implementation; the source's commented-out free-
// function variant has no analog here).
package interner

import (
	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/codegen"
	schemeerr "github.com/schemecore/schemecore/internal/errors"
	"github.com/schemecore/schemecore/internal/opcode"
)

// SymbolMap is an append-only name -> dense global index table, with a
// rollback operation that truncates to a prior length (P7: rollback).
type SymbolMap struct {
	names []string
	index map[string]int
}

// NewSymbolMap creates an empty SymbolMap.
func NewSymbolMap() *SymbolMap {
	return &SymbolMap{index: make(map[string]int)}
}

// GetOrAdd returns name's existing index, or assigns and returns a fresh
// one (P6: interner idempotence).
func (m *SymbolMap) GetOrAdd(name string) int {
	if idx, ok := m.index[name]; ok {
		return idx
	}
	idx := len(m.names)
	m.names = append(m.names, name)
	m.index[name] = idx
	return idx
}

// Get looks up name without inserting.
func (m *SymbolMap) Get(name string) (int, bool) {
	idx, ok := m.index[name]
	return idx, ok
}

// Len reports the current table size.
func (m *SymbolMap) Len() int {
	return len(m.names)
}

// RollBack truncates the map back to priorLen, undoing any GetOrAdd calls
// made since. Used when a build fails partway through (spec section 5).
func (m *SymbolMap) RollBack(priorLen int) error {
	if priorLen > len(m.names) {
		return schemeerr.WrapReport(schemeerr.New(schemeerr.INT002,
			"symbol map rollback underflow", nil))
	}
	for _, name := range m.names[priorLen:] {
		delete(m.index, name)
	}
	m.names = m.names[:priorLen]
	return nil
}

// Interner runs the two De Bruijn passes over a compiled top-level
// expression's Instruction vector.
type Interner struct {
	Symbols *SymbolMap
}

// New creates an Interner over a fresh or existing SymbolMap (a Compiler
// instance shares one SymbolMap across every top-level expression in a
// build).
func New(symbols *SymbolMap) *Interner {
	return &Interner{Symbols: symbols}
}

var definingOps = map[opcode.OpCode]bool{
	opcode.BIND: true,
}

// InternTopLevel runs both passes over every top-level expression's
// instruction vector, in source order, so that a later expression's forward
// reference to an earlier one's definition is resolved, while references
// to not-yet-defined names at depth 0 are rejected (section 4.G's forward-
// reference check).
func (in *Interner) InternTopLevel(exprs [][]codegen.Instruction) error {
	priorLen := in.Symbols.Len()

	flatDefines := make(map[string]bool)
	for _, insns := range exprs {
		firstPass(insns, in.Symbols, flatDefines)
	}

	secondPassDefines := make(map[string]bool)
	for _, insns := range exprs {
		if err := secondPass(insns, in.Symbols, flatDefines, secondPassDefines); err != nil {
			_ = in.Symbols.RollBack(priorLen)
			return err
		}
	}
	return nil
}

// firstPass stamps a dense global index into every top-level BIND
// instruction and records the bound name as a flat (module-level) define.
func firstPass(insns []codegen.Instruction, symbols *SymbolMap, flatDefines map[string]bool) {
	depth := 0
	for i := range insns {
		switch insns[i].Op {
		case opcode.SCLOSURE:
			depth++
		case opcode.ECLOSURE:
			depth--
		case opcode.BIND:
			if depth == 0 && insns[i].Name != "" {
				idx := symbols.GetOrAdd(insns[i].Name)
				insns[i].PayloadSize = idx
				insns[i].Constant = false
				flatDefines[insns[i].Name] = true
			}
		}
	}
}

// secondPass resolves every PUSH/SET/CALLGLOBAL/CALLGLOBALTAIL reference to
// its global index, tracking closure depth so top-level use-before-define
// is caught while references inside a nested closure (evaluated later, at
// call time) are permitted to forward-reference.
func secondPass(insns []codegen.Instruction, symbols *SymbolMap, flatDefines, secondPassDefines map[string]bool) error {
	depth := 0
	for i := range insns {
		switch insns[i].Op {
		case opcode.SCLOSURE:
			depth++
		case opcode.ECLOSURE:
			depth--
		case opcode.BIND:
			if depth == 0 && insns[i].Name != "" {
				secondPassDefines[insns[i].Name] = true
			}
		case opcode.PUSH, opcode.SET, opcode.CALLGLOBAL, opcode.CALLGLOBALTAIL:
			name := insns[i].Name
			if name == "" {
				continue
			}
			if depth == 0 && flatDefines[name] && !secondPassDefines[name] {
				return schemeerr.WrapReport(schemeerr.New(schemeerr.INT001,
					"cannot reference an identifier before its definition",
					spanOf(insns[i].Syn)))
			}
			idx, ok := symbols.Get(name)
			if !ok {
				idx = symbols.GetOrAdd(name)
			}
			insns[i].PayloadSize = idx
			insns[i].Constant = false
			insns[i].Name = ""
		}
	}
	return nil
}

func spanOf(syn *ast.SyntaxObject) *ast.Span {
	if syn == nil {
		return nil
	}
	s := syn.Span
	return &s
}
