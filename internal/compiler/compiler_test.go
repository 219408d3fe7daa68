package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/module"
	"github.com/schemecore/schemecore/internal/opcode"
)

type noopLoader struct{}

func (noopLoader) Load(path string) (*ast.File, error) {
	return nil, assertNever{path}
}

type assertNever struct{ path string }

func (e assertNever) Error() string { return "unexpected module load: " + e.path }

var _ module.Loader = noopLoader{}

func synOf() *ast.SyntaxObject { return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId()} }

func intLit(v int64) *ast.Atom {
	return &ast.Atom{Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokInt, IntVal: v}}
}

func ident(name string) *ast.Atom {
	return &ast.Atom{Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokIdentifier, Raw: name}}
}

func call(elems ...ast.Expr) *ast.List {
	return &ast.List{Elements: elems, Syn: synOf()}
}

// TestCompileExecutableFoldsAndInternsTopLevelDefine mirrors scenario 1:
// `(define (foo) (+ 1 2 3 4 5))` compiles to a single block whose constant
// folds all the way down to the literal 15.
func TestCompileExecutableFoldsAndInternsTopLevelDefine(t *testing.T) {
	body := call(ident("+"), intLit(1), intLit(2), intLit(3), intLit(4), intLit(5))
	foo := &ast.LambdaFunction{Body: []ast.Expr{body}, Syn: synOf()}
	def := &ast.Define{Name: ident("foo"), Value: foo, Syn: synOf()}

	c := New(noopLoader{})
	exe, err := c.CompileExecutable([]ast.Expr{def}, "main.scm", true)
	require.NoError(t, err)

	require.Len(t, exe.Blocks, 1)
	block := exe.Blocks[0]

	var sawConst bool
	for _, in := range block.Instructions {
		if in.Op == opcode.PUSHCONST {
			sawConst = true
			v, ok := c.Constants.Get(in.PayloadSize)
			require.True(t, ok)
			assert.Equal(t, int64(15), v.Int)
		}
	}
	assert.True(t, sawConst, "expected the folded sum to surface as a PUSHCONST")
}

// TestCompileExecutableFlattensZeroArgIIFE mirrors scenario 5:
// `((lambda () (+ 1 2)))` reduces to the literal 3 after optimization.
func TestCompileExecutableFlattensZeroArgIIFE(t *testing.T) {
	sum := call(ident("+"), intLit(1), intLit(2))
	lambda := &ast.LambdaFunction{Body: []ast.Expr{sum}, Syn: synOf()}
	iife := call(lambda)

	c := New(noopLoader{})
	exe, err := c.CompileExecutable([]ast.Expr{iife}, "main.scm", true)
	require.NoError(t, err)

	require.Len(t, exe.Blocks, 1)
	block := exe.Blocks[0]
	require.Len(t, block.Instructions, 1)
	assert.Equal(t, opcode.PUSHCONST, block.Instructions[0].Op)

	v, ok := c.Constants.Get(block.Instructions[0].PayloadSize)
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Int)
}

// TestCompileExecutableInternsQuotedList exercises resolveConstants'
// recursive datum conversion for a quoted list literal.
func TestCompileExecutableInternsQuotedList(t *testing.T) {
	quoted := &ast.Quote{
		Datum: &ast.List{Elements: []ast.Expr{intLit(1), intLit(2), intLit(3)}, Syn: synOf()},
		Syn:   synOf(),
	}
	def := &ast.Define{Name: ident("xs"), Value: quoted, Syn: synOf()}

	c := New(noopLoader{})
	exe, err := c.CompileExecutable([]ast.Expr{def}, "main.scm", true)
	require.NoError(t, err)

	require.Len(t, exe.Blocks, 1)
	var found bool
	for _, in := range exe.Blocks[0].Instructions {
		if in.Op == opcode.PUSHCONST {
			v, ok := c.Constants.Get(in.PayloadSize)
			require.True(t, ok)
			require.Equal(t, "list", v.Kind)
			require.Len(t, v.List, 3)
			assert.Equal(t, int64(2), v.List[1].Int)
			found = true
		}
	}
	assert.True(t, found)
}

// TestCompileExecutableRollsBackSymbolsOnFailure ensures a build error
// leaves the Compiler's SymbolMap exactly as it was before the attempt,
// per the rollback transaction semantics CompileExecutable documents.
func TestCompileExecutableRollsBackSymbolsOnFailure(t *testing.T) {
	// A malformed Set with a nil value triggers an analysis-phase error:
	// semantic analysis rejects the nil node as unsupported (SEM002) before
	// codegen runs.
	broken := &ast.Set{Name: ident("undefined-target"), Value: nil, Syn: synOf()}

	c := New(noopLoader{})
	before := c.Symbols.Len()

	_, err := c.CompileExecutable([]ast.Expr{broken}, "main.scm", true)
	require.Error(t, err)
	assert.Equal(t, before, c.Symbols.Len())
}
