package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemecore/schemecore/internal/ast"
)

func TestReadFileParsesDefineFunctionSugar(t *testing.T) {
	f, err := New(0).ReadFile(`(define (foo) (+ 1 2 3 4 5))`, "main.scm")
	require.NoError(t, err)
	require.Len(t, f.Exprs, 1)

	def, ok := f.Exprs[0].(*ast.Define)
	require.True(t, ok)
	assert.Equal(t, "foo", def.Name.Syn.Raw)

	lambda, ok := def.Value.(*ast.LambdaFunction)
	require.True(t, ok)
	assert.Empty(t, lambda.Params)
	require.Len(t, lambda.Body, 1)

	call, ok := lambda.Body[0].(*ast.List)
	require.True(t, ok)
	require.Len(t, call.Elements, 6)
}

func TestReadFileParsesIfLetAndQuote(t *testing.T) {
	f, err := New(0).ReadFile(`(let ((x 1)) (if (= x 1) 'yes 'no))`, "main.scm")
	require.NoError(t, err)
	require.Len(t, f.Exprs, 1)

	let, ok := f.Exprs[0].(*ast.Let)
	require.True(t, ok)
	require.Len(t, let.Bindings, 1)
	assert.Equal(t, "x", let.Bindings[0].Name.Syn.Raw)

	ifExpr, ok := let.Body[0].(*ast.If)
	require.True(t, ok)
	require.NotNil(t, ifExpr.Else)

	q, ok := ifExpr.Then.(*ast.Quote)
	require.True(t, ok)
	atom, ok := q.Datum.(*ast.Atom)
	require.True(t, ok)
	assert.Equal(t, "yes", atom.Syn.Raw)
}

func TestReadFileParsesZeroArgIIFE(t *testing.T) {
	f, err := New(0).ReadFile(`((lambda () (+ 1 2)))`, "main.scm")
	require.NoError(t, err)
	require.Len(t, f.Exprs, 1)

	call, ok := f.Exprs[0].(*ast.List)
	require.True(t, ok)
	require.Len(t, call.Elements, 1)
	_, ok = call.Elements[0].(*ast.LambdaFunction)
	assert.True(t, ok)
}

func TestReadFileParsesDefineSyntaxMacro(t *testing.T) {
	src := `(define-syntax my-if
               (syntax-rules ()
                 ((_ c t e) (if c t e))))`
	f, err := New(0).ReadFile(src, "main.scm")
	require.NoError(t, err)
	require.Len(t, f.Exprs, 1)

	macro, ok := f.Exprs[0].(*ast.Macro)
	require.True(t, ok)
	assert.Equal(t, "my-if", macro.Name.Syn.Raw)
	require.Len(t, macro.Rules.Rules, 1)
}

func TestReadFileParsesRequireWithSelectiveImports(t *testing.T) {
	f, err := New(0).ReadFile(`(require lib (foo bar))`, "main.scm")
	require.NoError(t, err)
	req, ok := f.Exprs[0].(*ast.Require)
	require.True(t, ok)
	assert.Equal(t, "lib", req.Path)
	assert.Equal(t, []string{"foo", "bar"}, req.Symbols)
}

func TestReadFileRejectsUnterminatedList(t *testing.T) {
	_, err := New(0).ReadFile(`(define x 1`, "main.scm")
	assert.Error(t, err)
}

func TestReadFileParsesNegativeAndFloatLiterals(t *testing.T) {
	f, err := New(0).ReadFile(`(list -5 3.14 #t #\a "hi")`, "main.scm")
	require.NoError(t, err)
	list := f.Exprs[0].(*ast.List)
	require.Len(t, list.Elements, 6)

	neg := list.Elements[1].(*ast.Atom)
	assert.Equal(t, ast.TokInt, neg.Syn.Kind)
	assert.Equal(t, int64(-5), neg.Syn.IntVal)

	real := list.Elements[2].(*ast.Atom)
	assert.Equal(t, ast.TokReal, real.Syn.Kind)

	b := list.Elements[3].(*ast.Atom)
	assert.True(t, b.Syn.BoolVal)

	ch := list.Elements[4].(*ast.Atom)
	assert.Equal(t, 'a', ch.Syn.CharVal)

	str := list.Elements[5].(*ast.Atom)
	assert.Equal(t, "hi", str.Syn.StrVal)
}
