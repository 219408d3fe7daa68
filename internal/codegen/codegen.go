// Package codegen implements the CodeGenerator (spec section 4.E): a
// structural lowering of the post-optimization AST into a linear
// Instruction vector per top-level expression, with back-patched jump
// targets for If forms.
package codegen

import (
	"fmt"

	"github.com/schemecore/schemecore/internal/analysis"
	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/opcode"
	schemeerr "github.com/schemecore/schemecore/internal/errors"
)

// Instruction is the rich, pre-interning instruction form (spec section 3):
// an opcode, a payload placeholder, an optional attached SyntaxObject for
// error spans, and whether the payload is already a resolved constant
// index (as opposed to a symbolic reference waiting on the interner).
type Instruction struct {
	Op          opcode.OpCode
	PayloadSize int
	Syn         *ast.SyntaxObject
	Constant    bool

	// Name carries the symbolic identifier for PUSH/SET/CALLGLOBAL/
	// CALLGLOBALTAIL/BIND instructions prior to De Bruijn interning. Interning
	// stamps PayloadSize with the resolved index and clears Name on
	// PUSH/SET/CALLGLOBAL/CALLGLOBALTAIL; BIND keeps its Name.
	Name string

	// Datum carries the full literal expression behind a PUSHCONST that
	// comes from a Quote form, since a quoted list's value can't be
	// reconstructed from Syn alone. Unset for scalar literals, where Syn
	// already carries the value.
	Datum ast.Expr
}

// DenseInstruction is the packed form spec section 3 describes: an 8-bit
// opcode and a 24-bit payload, with spans moved to a parallel vector so the
// hot path carries no per-instruction heap indirection.
type DenseInstruction struct {
	Op      opcode.OpCode
	Payload uint32 // low 24 bits significant
}

// Generator walks an annotated, post-optimization AST and emits one
// Instruction vector per top-level expression.
type Generator struct {
	an *analysis.Analysis
}

// NewGenerator builds a Generator bound to the Analysis tables produced by
// component C. Emission does not consult them: TAILCALL vs FUNC follows
// syntactic tail position, and a self-tail call is emitted as an ordinary
// TAILCALL, with no jump back to the closure entry.
func NewGenerator(an *analysis.Analysis) *Generator {
	return &Generator{an: an}
}

// GenerateTopLevel lowers every top-level expression independently,
// preserving source order.
func (g *Generator) GenerateTopLevel(exprs []ast.Expr) ([][]Instruction, error) {
	out := make([][]Instruction, len(exprs))
	for i, e := range exprs {
		insns, err := g.Generate(e)
		if err != nil {
			return nil, err
		}
		out[i] = insns
	}
	return out, nil
}

// Generate lowers a single expression to an Instruction vector.
func (g *Generator) Generate(e ast.Expr) ([]Instruction, error) {
	var out []Instruction
	if err := g.emit(e, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

func syn(e ast.Expr) *ast.SyntaxObject {
	if e == nil {
		return nil
	}
	return e.SyntaxObj()
}

func (g *Generator) emit(e ast.Expr, out *[]Instruction, tail bool) error {
	switch n := e.(type) {
	case *ast.Atom:
		return g.emitAtom(n, out)
	case *ast.If:
		return g.emitIf(n, out, tail)
	case *ast.Define:
		return g.emitDefine(n, out)
	case *ast.Set:
		return g.emitSet(n, out)
	case *ast.LambdaFunction:
		return g.emitLambda(n, out)
	case *ast.Begin:
		return g.emitBegin(n, out, tail)
	case *ast.Let:
		return g.emitLet(n, out, tail)
	case *ast.Quote:
		return g.emitQuote(n, out)
	case *ast.Return:
		return g.emit(n.Value, out, tail)
	case *ast.List:
		return g.emitCall(n, out, tail)
	default:
		return schemeerr.WrapReport(schemeerr.New(schemeerr.GEN001,
			fmt.Sprintf("codegen: unsupported node %T", e), spanOf(e)))
	}
}

func spanOf(e ast.Expr) *ast.Span {
	if e == nil || e.SyntaxObj() == nil {
		return nil
	}
	s := e.SyntaxObj().Span
	return &s
}

func (g *Generator) emitAtom(a *ast.Atom, out *[]Instruction) error {
	if a.IsIdentifier() {
		*out = append(*out, Instruction{Op: opcode.PUSH, Syn: a.Syn, Name: a.Syn.Raw})
		return nil
	}
	switch a.Syn.Kind {
	case ast.TokInt:
		switch a.Syn.IntVal {
		case 0:
			*out = append(*out, Instruction{Op: opcode.LOADINT0, Syn: a.Syn})
		case 1:
			*out = append(*out, Instruction{Op: opcode.LOADINT1, Syn: a.Syn})
		case 2:
			*out = append(*out, Instruction{Op: opcode.LOADINT2, Syn: a.Syn})
		default:
			*out = append(*out, Instruction{Op: opcode.PUSHCONST, Syn: a.Syn, Constant: true})
		}
	default:
		*out = append(*out, Instruction{Op: opcode.PUSHCONST, Syn: a.Syn, Constant: true})
	}
	return nil
}

func (g *Generator) emitIf(n *ast.If, out *[]Instruction, tail bool) error {
	if err := g.emit(n.Test, out, false); err != nil {
		return err
	}
	ifIdx := len(*out)
	*out = append(*out, Instruction{Op: opcode.IF, Syn: n.Syn})

	if n.Else != nil {
		if err := g.emit(n.Else, out, tail); err != nil {
			return err
		}
	} else {
		*out = append(*out, Instruction{Op: opcode.VOID, Syn: n.Syn})
	}
	jmpIdx := len(*out)
	*out = append(*out, Instruction{Op: opcode.JMP, Syn: n.Syn})

	thenStart := len(*out)
	if err := g.emit(n.Then, out, tail); err != nil {
		return err
	}
	end := len(*out)

	(*out)[ifIdx].PayloadSize = thenStart
	(*out)[jmpIdx].PayloadSize = end
	return nil
}

func (g *Generator) emitDefine(n *ast.Define, out *[]Instruction) error {
	*out = append(*out, Instruction{Op: opcode.SDEF, Syn: n.Syn})
	if err := g.emit(n.Value, out, false); err != nil {
		return err
	}
	*out = append(*out, Instruction{Op: opcode.BIND, Syn: n.Syn, Name: n.Name.Syn.Raw})
	*out = append(*out, Instruction{Op: opcode.EDEF, Syn: n.Syn})
	return nil
}

func (g *Generator) emitSet(n *ast.Set, out *[]Instruction) error {
	if err := g.emit(n.Value, out, false); err != nil {
		return err
	}
	*out = append(*out, Instruction{Op: opcode.SET, Syn: n.Syn, Name: n.Name.Syn.Raw})
	return nil
}

func (g *Generator) emitLambda(n *ast.LambdaFunction, out *[]Instruction) error {
	sizeIdx := len(*out)
	arity := len(n.Params)
	if n.Rest != nil {
		arity++
	}
	*out = append(*out, Instruction{Op: opcode.SCLOSURE, PayloadSize: arity, Syn: n.Syn})
	for i, b := range n.Body {
		if err := g.emit(b, out, i == len(n.Body)-1); err != nil {
			return err
		}
	}
	*out = append(*out, Instruction{Op: opcode.POP, Syn: n.Syn})
	*out = append(*out, Instruction{Op: opcode.ECLOSURE, PayloadSize: arity, Syn: n.Syn})
	_ = sizeIdx
	return nil
}

func (g *Generator) emitBegin(n *ast.Begin, out *[]Instruction, tail bool) error {
	for i, e := range n.Body {
		if err := g.emit(e, out, tail && i == len(n.Body)-1); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) emitLet(n *ast.Let, out *[]Instruction, tail bool) error {
	for _, b := range n.Bindings {
		if err := g.emit(b.Init, out, false); err != nil {
			return err
		}
	}
	for i, e := range n.Body {
		if err := g.emit(e, out, tail && i == len(n.Body)-1); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) emitQuote(n *ast.Quote, out *[]Instruction) error {
	*out = append(*out, Instruction{Op: opcode.PUSHCONST, Syn: n.Syn, Datum: n.Datum, Constant: true})
	return nil
}

func (g *Generator) emitCall(n *ast.List, out *[]Instruction, tail bool) error {
	if len(n.Elements) == 0 {
		*out = append(*out, Instruction{Op: opcode.VOID, Syn: n.Syn})
		return nil
	}
	callee := n.Elements[0]
	args := n.Elements[1:]
	for _, a := range args {
		if err := g.emit(a, out, false); err != nil {
			return err
		}
	}
	if err := g.emit(callee, out, false); err != nil {
		return err
	}
	op := opcode.FUNC
	if tail {
		op = opcode.TAILCALL
	}
	*out = append(*out, Instruction{Op: op, PayloadSize: len(args), Syn: n.Syn})
	return nil
}
