package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemecore/schemecore/internal/ast"
)

func syn() *ast.SyntaxObject { return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId()} }

func ident(name string) *ast.Atom {
	return &ast.Atom{Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokIdentifier, Raw: name}}
}

func intLit(v int64) *ast.Atom {
	return &ast.Atom{Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokInt, IntVal: v}}
}

func list(elems ...ast.Expr) *ast.List {
	return &ast.List{Elements: elems, Syn: syn()}
}

func TestSimpleMacroSubstitutesPatternVariable(t *testing.T) {
	// (define-syntax twice (syntax-rules () ((twice x) (begin x x))))
	rules := &ast.SyntaxRules{
		Rules: []ast.SyntaxRulePattern{
			{
				Pattern:  list(ident("twice"), ident("x")),
				Template: list(ident("begin"), ident("x"), ident("x")),
			},
		},
		Syn: syn(),
	}
	env := NewEnv()
	env.Define("twice", rules)

	call := list(ident("twice"), intLit(5))
	out, err := Expand(call, env)
	require.NoError(t, err)

	expanded, ok := out.(*ast.List)
	require.True(t, ok)
	assert.Len(t, expanded.Elements, 3)
	assert.Equal(t, int64(5), expanded.Elements[1].(*ast.Atom).Syn.IntVal)
	assert.Equal(t, int64(5), expanded.Elements[2].(*ast.Atom).Syn.IntVal)
}

func TestEllipsisPatternBindsSequence(t *testing.T) {
	// (define-syntax my-list (syntax-rules () ((my-list x ...) (list x ...))))
	rules := &ast.SyntaxRules{
		Rules: []ast.SyntaxRulePattern{
			{
				Pattern:  list(ident("my-list"), ident("x"), ident("...")),
				Template: list(ident("list"), ident("x"), ident("...")),
			},
		},
		Syn: syn(),
	}
	env := NewEnv()
	env.Define("my-list", rules)

	call := list(ident("my-list"), intLit(1), intLit(2), intLit(3))
	out, err := Expand(call, env)
	require.NoError(t, err)

	expanded := out.(*ast.List)
	require.Len(t, expanded.Elements, 4)
	// The template's `list` head is a free reference to the builtin, not a
	// pattern variable or a binding the template introduces, so it must
	// reach the expansion with its spelling untouched rather than being
	// hygienically renamed into an unresolvable name.
	assert.Equal(t, "list", expanded.Elements[0].(*ast.Atom).Syn.Raw)
	assert.Equal(t, int64(1), expanded.Elements[1].(*ast.Atom).Syn.IntVal)
	assert.Equal(t, int64(3), expanded.Elements[3].(*ast.Atom).Syn.IntVal)
}

func TestHygienicRenameAvoidsCapture(t *testing.T) {
	// (define-syntax swap! (syntax-rules () ((swap! a b)
	//   (let ((tmp a)) (set! a b) (set! b tmp)))))
	rules := &ast.SyntaxRules{
		Rules: []ast.SyntaxRulePattern{
			{
				Pattern: list(ident("swap!"), ident("a"), ident("b")),
				Template: &ast.Let{
					Bindings: []ast.LetBinding{{Name: ident("tmp"), Init: ident("a")}},
					Body: []ast.Expr{
						&ast.Set{Name: ident("a"), Value: ident("b"), Syn: syn()},
						&ast.Set{Name: ident("b"), Value: ident("tmp"), Syn: syn()},
					},
					Syn: syn(),
				},
			},
		},
		Syn: syn(),
	}
	env := NewEnv()
	env.Define("swap!", rules)

	// Caller happens to use `tmp` as one of the swapped variables.
	call := list(ident("swap!"), ident("tmp"), ident("other"))
	out, err := Expand(call, env)
	require.NoError(t, err)

	let := out.(*ast.Let)
	// The macro's own `tmp` binding must be renamed so it doesn't collide
	// with the caller's `tmp` argument (left untouched since it came from
	// the matched input, not the template).
	assert.NotEqual(t, "tmp", let.Bindings[0].Name.Syn.Raw)
	assert.Equal(t, "tmp", let.Bindings[0].Init.(*ast.Atom).Syn.Raw)
}

func TestHygienicRenameAppliesToLambdaParamNotFreeReference(t *testing.T) {
	// (define-syntax given (syntax-rules () ((given e body)
	//   ((lambda (it) body) e))))
	// `it` is a lambda parameter the template introduces; `body` is a
	// pattern variable; nothing here should touch a free global reference.
	rules := &ast.SyntaxRules{
		Rules: []ast.SyntaxRulePattern{
			{
				Pattern: list(ident("given"), ident("e"), ident("body")),
				Template: list(
					&ast.LambdaFunction{
						Params: []*ast.Param{{Name: ident("it")}},
						Body:   []ast.Expr{ident("body")},
						Syn:    syn(),
					},
					ident("e"),
				),
			},
		},
		Syn: syn(),
	}
	env := NewEnv()
	env.Define("given", rules)

	call := list(ident("given"), ident("x"), ident("print"))
	out, err := Expand(call, env)
	require.NoError(t, err)

	outer := out.(*ast.List)
	lam := outer.Elements[0].(*ast.LambdaFunction)
	// The lambda's own parameter is renamed for hygiene...
	assert.NotEqual(t, "it", lam.Params[0].Name.Syn.Raw)
	// ...but the caller's `print` argument, substituted in for the `body`
	// pattern variable, is untouched.
	assert.Equal(t, "print", lam.Body[0].(*ast.Atom).Syn.Raw)
	assert.Equal(t, "x", outer.Elements[1].(*ast.Atom).Syn.Raw)
}

func TestDatumToSyntaxConcatenatesArguments(t *testing.T) {
	call := list(ident("datum->syntax"), ident("foo"), ident("-bar"))
	out, err := Expand(call, NewEnv())
	require.NoError(t, err)
	atom := out.(*ast.Atom)
	assert.Equal(t, "foo-bar", atom.Syn.Raw)
}

func TestSyntaxConstIfTakesThenBranchForLiteral(t *testing.T) {
	call := list(ident("syntax-const-if"), intLit(1), intLit(10), intLit(20))
	out, err := Expand(call, NewEnv())
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.(*ast.Atom).Syn.IntVal)
}

func TestSyntaxConstIfTakesElseBranchForIdentifier(t *testing.T) {
	call := list(ident("syntax-const-if"), ident("x"), intLit(10), intLit(20))
	out, err := Expand(call, NewEnv())
	require.NoError(t, err)
	assert.Equal(t, int64(20), out.(*ast.Atom).Syn.IntVal)
}
