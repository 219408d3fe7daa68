// Package compiler exposes the Compiler instance (spec section 9, "Global
// state"): SymbolMap, ConstantMap, InternedString, and Sources encapsulated
// together so tests can run in isolation, with CompileExecutable tying
// phases A-I into the rollback-capable transaction spec section 5
// describes. Phase transitions are logged through each Compiler's own
// logrus.Logger (its Log field), the way the retrieval pack's corset logs
// constraint-expansion phases; optimizer iterations are not logged.
package compiler

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/schemecore/schemecore/internal/analysis"
	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/builtinreg"
	"github.com/schemecore/schemecore/internal/codegen"
	"github.com/schemecore/schemecore/internal/constmap"
	schemeerr "github.com/schemecore/schemecore/internal/errors"
	"github.com/schemecore/schemecore/internal/interned"
	"github.com/schemecore/schemecore/internal/interner"
	"github.com/schemecore/schemecore/internal/module"
	"github.com/schemecore/schemecore/internal/opcode"
	"github.com/schemecore/schemecore/internal/optimize"
	"github.com/schemecore/schemecore/internal/peephole"
	"github.com/schemecore/schemecore/internal/program"
	"github.com/schemecore/schemecore/internal/sources"
)

// Compiler encapsulates every logically-global table a single build shares
// across its top-level expressions.
type Compiler struct {
	Symbols   *interner.SymbolMap
	Constants *constmap.Map
	Interned  *interned.Table
	Sources   *sources.Sources
	Builtins  *builtinreg.Registry
	Modules   *module.Manager

	Log *logrus.Logger
}

// New creates a Compiler over loader (the external parser's module-loading
// surface). A fresh Compiler should be built per compilation unit so tests
// (and repeated builds in a long-running host) don't leak state between
// runs, per spec section 9's "should be encapsulated in a Compiler instance
// so tests can run in isolation."
func New(loader module.Loader) *Compiler {
	srcs := sources.New()
	builtins := builtinreg.NewRegistry()
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	return &Compiler{
		Symbols:   interner.NewSymbolMap(),
		Constants: constmap.New(),
		Interned:  interned.NewTable(),
		Sources:   srcs,
		Builtins:  builtins,
		Modules:   module.New(loader, srcs, builtins),
		Log:       log,
	}
}

// CompileExecutable runs phases A through I over exprs (the entry file's
// parsed top level) and returns the packaged Executable. debug selects
// ProgramBuilder's debug_build (rich Instruction form, disassemblable) vs
// build (compacted DenseInstruction form).
//
// The build is atomic at this call's granularity (spec section 5): on any
// error, SymbolMap mutations already applied are rolled back before the
// error is returned; ConstantMap growth is left in place since its indices
// are content-addressed and therefore harmless on failure.
func (c *Compiler) CompileExecutable(exprs []ast.Expr, path string, debug bool) (*program.Executable, error) {
	priorSymbols := c.Symbols.Len()

	c.Log.WithField("phase", "module").Info("resolving require graph")
	expanded, err := c.Modules.CompileMain(exprs, path)
	if err != nil {
		return nil, c.fail(priorSymbols, err)
	}

	c.Log.WithField("phase", "analysis").Info("running semantic analysis")
	an, err := analysis.New().Run(expanded)
	if err != nil {
		return nil, c.fail(priorSymbols, err)
	}

	c.Log.WithField("phase", "optimize").Info("running optimizer fixpoint")
	optimized := optimize.New().Run(expanded)

	c.Log.WithField("phase", "analysis").Info("re-running semantic analysis after optimization")
	an, err = analysis.New().Run(optimized)
	if err != nil {
		return nil, c.fail(priorSymbols, err)
	}

	c.Log.WithField("phase", "codegen").Info("lowering to instructions")
	gen := codegen.NewGenerator(an)
	blocks, err := gen.GenerateTopLevel(optimized)
	if err != nil {
		return nil, c.fail(priorSymbols, err)
	}

	c.Log.WithField("phase", "peephole").Info("running peephole and super-instruction pass")
	for i := range blocks {
		blocks[i] = peephole.Fuse(blocks[i])
	}

	if err := c.resolveConstants(blocks); err != nil {
		return nil, c.fail(priorSymbols, err)
	}

	c.Log.WithField("phase", "interner").Info("running De Bruijn interning")
	in := interner.New(c.Symbols)
	if err := in.InternTopLevel(blocks); err != nil {
		return nil, err // InternTopLevel already rolled back the SymbolMap itself.
	}

	c.Log.WithField("phase", "program").Info("packaging executable")
	builder := program.New(nil)
	if debug {
		return builder.DebugBuild(blocks, c.Constants), nil
	}
	return builder.Build(blocks, c.Constants), nil
}

// Check runs module resolution and semantic analysis only (phases A and C),
// skipping optimization, codegen, peephole, interning, and packaging. It
// backs the CLI's `check` subcommand: a fast syntax/binding validation pass
// that never produces bytecode.
func (c *Compiler) Check(exprs []ast.Expr, path string) error {
	expanded, err := c.Modules.CompileMain(exprs, path)
	if err != nil {
		return err
	}
	_, err = analysis.New().Run(expanded)
	return err
}

func (c *Compiler) fail(priorSymbols int, err error) error {
	if rbErr := c.Symbols.RollBack(priorSymbols); rbErr != nil {
		c.Log.WithError(rbErr).Error("symbol map rollback failed after build error")
	}
	return err
}

// resolveConstants interns the literal value behind every PUSHCONST
// instruction into the Compiler's ConstantMap, stamping the returned index
// into the instruction's payload.
func (c *Compiler) resolveConstants(blocks [][]codegen.Instruction) error {
	for _, insns := range blocks {
		for i := range insns {
			if insns[i].Op != opcode.PUSHCONST || !insns[i].Constant {
				continue
			}
			var (
				v   constmap.Value
				err error
			)
			if insns[i].Datum != nil {
				v, err = datumToValue(insns[i].Datum)
			} else {
				v, err = literalValue(insns[i].Syn)
			}
			if err != nil {
				return err
			}
			insns[i].PayloadSize = c.Constants.AddOrGet(v)
		}
	}
	return nil
}

// literalValue converts a scalar literal's SyntaxObject directly (the
// PUSHCONST instructions codegen emits for bare number/string/char/bool
// literals, where no separate Quote datum exists).
func literalValue(syn *ast.SyntaxObject) (constmap.Value, error) {
	if syn == nil {
		return constmap.Value{}, schemeerr.WrapReport(schemeerr.New(schemeerr.GEN001,
			"PUSHCONST instruction missing its literal syntax object", nil))
	}
	switch syn.Kind {
	case ast.TokInt:
		return constmap.Int(syn.IntVal), nil
	case ast.TokReal:
		return constmap.Real(syn.RealVal), nil
	case ast.TokBool:
		return constmap.Bool(syn.BoolVal), nil
	case ast.TokChar:
		return constmap.Char(syn.CharVal), nil
	case ast.TokString:
		return constmap.Str(syn.StrVal), nil
	case ast.TokVoid:
		return constmap.Void(), nil
	default:
		return constmap.Value{}, schemeerr.WrapReport(schemeerr.New(schemeerr.GEN001,
			fmt.Sprintf("cannot intern literal of kind %s", syn.Kind), &syn.Span))
	}
}

// datumToValue converts a Quote form's datum expression into a constmap
// Value, recursing into List data so '(1 2 3) interns as a single
// constant-pool list value rather than three separate scalars.
func datumToValue(e ast.Expr) (constmap.Value, error) {
	switch n := e.(type) {
	case *ast.Atom:
		return literalValue(n.Syn)
	case *ast.List:
		vals := make([]constmap.Value, len(n.Elements))
		for i, el := range n.Elements {
			v, err := datumToValue(el)
			if err != nil {
				return constmap.Value{}, err
			}
			vals[i] = v
		}
		return constmap.List(vals), nil
	case *ast.Quote:
		return datumToValue(n.Datum)
	default:
		return constmap.Value{}, schemeerr.WrapReport(schemeerr.New(schemeerr.GEN001,
			fmt.Sprintf("cannot intern quoted datum of type %T", e), spanOfExpr(e)))
	}
}

func spanOfExpr(e ast.Expr) *ast.Span {
	if e == nil || e.SyntaxObj() == nil {
		return nil
	}
	s := e.SyntaxObj().Span
	return &s
}
