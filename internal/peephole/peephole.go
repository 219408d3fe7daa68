// Package peephole implements the peephole / super-instruction pass (spec
// section 4.F): fixed opcode-window fusions plus a table-driven dynamic
// super-instruction matcher keyed by pattern, following spec section 9's
// design note to prefer a data-driven matcher over hard-coded fused
// opcodes. Grounded on steel-gen/src/lib.rs's handler-table approach,
// reimplemented here as a Go map rather than Rust codegen macros.
package peephole

import (
	"github.com/schemecore/schemecore/internal/codegen"
	"github.com/schemecore/schemecore/internal/opcode"
)

// Fuse rewrites a single top-level expression's instruction vector in
// place, applying every registered fusion until no further match is found.
// P9 (peephole equivalence) is the property every fusion below must
// preserve: the fused instruction's stack effect must equal the sequence
// it replaces for every admissible operand type.
func Fuse(insns []codegen.Instruction) []codegen.Instruction {
	changed := true
	for changed {
		changed = false
		insns, changed = fixedFusionPass(insns)
	}
	return dynamicMatch(insns)
}

// fixedFusionPass applies the literal opcode-pair rewrites spec section 4.F
// lists by name: PUSH <f>; FUNC n -> CALLGLOBAL/CALLGLOBALTAIL, the binary
// `+` fast path (BINOPADD), READLOCAL<k> specialization, and the
// LTEIMMEDIATE;IF fusion. Small-constant loads are already specialized by
// codegen and are not touched here.
func fixedFusionPass(insns []codegen.Instruction) ([]codegen.Instruction, bool) {
	out := make([]codegen.Instruction, 0, len(insns))
	changed := false
	for i := 0; i < len(insns); i++ {
		if i+1 < len(insns) {
			a, b := insns[i], insns[i+1]

			if a.Op == opcode.PUSH && (b.Op == opcode.FUNC || b.Op == opcode.TAILCALL) {
				if specialized, ok := fuseArithmetic(a, b); ok {
					out = append(out, specialized)
					i++
					changed = true
					continue
				}
				op := opcode.CALLGLOBAL
				if b.Op == opcode.TAILCALL {
					op = opcode.CALLGLOBALTAIL
				}
				out = append(out, codegen.Instruction{Op: op, PayloadSize: b.PayloadSize, Name: a.Name, Syn: b.Syn})
				i++
				changed = true
				continue
			}

			if a.Op == opcode.LTEIMMEDIATE && b.Op == opcode.IF {
				out = append(out, codegen.Instruction{Op: opcode.LTEIMMEDIATEIF, PayloadSize: b.PayloadSize, Syn: b.Syn})
				i++
				changed = true
				continue
			}
		}

		if specialized, ok := specializeReadLocal(insns[i]); ok {
			out = append(out, specialized)
			changed = changed || specialized.Op != insns[i].Op
			continue
		}
		out = append(out, insns[i])
	}
	return out, changed
}

// fuseArithmetic recognizes `PUSH <+|-|*|/|=|<=>; FUNC/TAILCALL n` and
// specializes the binary-add case to BINOPADD; other arities/operators fall
// through to the generic CALLGLOBAL fusion above.
func fuseArithmetic(push, call codegen.Instruction) (codegen.Instruction, bool) {
	if push.Name == "+" && call.PayloadSize == 2 {
		return codegen.Instruction{Op: opcode.BINOPADD, Syn: call.Syn}, true
	}
	return codegen.Instruction{}, false
}

func specializeReadLocal(in codegen.Instruction) (codegen.Instruction, bool) {
	if in.Op != opcode.READLOCAL {
		return in, false
	}
	switch in.PayloadSize {
	case 0:
		return codegen.Instruction{Op: opcode.READLOCAL0, Syn: in.Syn}, true
	case 1:
		return codegen.Instruction{Op: opcode.READLOCAL1, Syn: in.Syn}, true
	case 2:
		return codegen.Instruction{Op: opcode.READLOCAL2, Syn: in.Syn}, true
	case 3:
		return codegen.Instruction{Op: opcode.READLOCAL3, Syn: in.Syn}, true
	default:
		return in, false
	}
}

// window is a fixed-size slice of opcodes used as a dynamic-matcher lookup
// key; payloads are deliberately excluded from the key so the same handler
// serves every concrete payload value (the handler closes over the real
// instructions instead).
type window [2]opcode.OpCode

// handlerFunc takes the concrete instructions a window matched and returns
// the type hint its result carries. dynamicMatch only checks that a window
// has a handler; it does not call the handler.
type handlerFunc func(insns []codegen.Instruction) opcode.TypeHint

var dynamicHandlers = map[window]handlerFunc{
	{opcode.LOADINT2, opcode.LTE}: func(insns []codegen.Instruction) opcode.TypeHint {
		return opcode.HintBool
	},
	{opcode.LOADINT0, opcode.LTE}: func(insns []codegen.Instruction) opcode.TypeHint {
		return opcode.HintBool
	},
	{opcode.LOADINT1, opcode.LTE}: func(insns []codegen.Instruction) opcode.TypeHint {
		return opcode.HintBool
	},
}

// dynamicMatch scans for any 2-opcode window registered in dynamicHandlers
// (each has an immediate integer load as its left operand) and tags the
// window's second instruction with that operand's Int hint via its Name
// field reused as a debug annotation (no opcode space is spent on a new fused
// mnemonic, per spec section 9's "table-driven dynamic matcher" note).
func dynamicMatch(insns []codegen.Instruction) []codegen.Instruction {
	for i := 0; i+1 < len(insns); i++ {
		w := window{insns[i].Op, insns[i+1].Op}
		if _, ok := dynamicHandlers[w]; ok {
			insns[i+1].Name = "~hint:" + opcode.HintInt.String()
		}
	}
	return insns
}
