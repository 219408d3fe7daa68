// Package optimize implements the Optimizer (spec section 4.D): a
// fixpoint-iterated sequence of AST-rewriting sub-passes operating on the
// analyzer's output. Grounded on the teacher's multi-pass-with-changed-flag
// idiom (internal/elaborate) and on steel's const_evaluation.rs for the
// constant-folding semantics.
package optimize

import (
	"github.com/schemecore/schemecore/internal/ast"
)

// MaxIterations bounds the fixpoint loop (spec section 4.D: "up to 10 times
// or until no pass reports a change").
const MaxIterations = 10

// Optimizer runs the sub-pass pipeline to a fixpoint.
type Optimizer struct{}

// New creates an Optimizer.
func New() *Optimizer {
	return &Optimizer{}
}

// passFunc rewrites a single expression, reporting whether it changed
// anything.
type passFunc func(e ast.Expr) (ast.Expr, bool)

// Run applies every sub-pass to every top-level expression until a full
// iteration makes no change, or MaxIterations is reached (P5: optimizer
// fixpoint).
func (o *Optimizer) Run(exprs []ast.Expr) []ast.Expr {
	passes := []passFunc{
		constantFold,
		flattenBegin,
		flattenAnonymousCall,
	}
	for iter := 0; iter < MaxIterations; iter++ {
		changed := false
		for i, e := range exprs {
			for _, p := range passes {
				rewritten, did := applyRecursively(e, p)
				if did {
					exprs[i] = rewritten
					e = rewritten
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return exprs
}

// applyRecursively rewrites e bottom-up with p, then applies p once more at
// the root, so a single call covers both "rewrite children, then rewrite
// self" — the shape every sub-pass below needs.
func applyRecursively(e ast.Expr, p passFunc) (ast.Expr, bool) {
	changed := false
	e = mapChildren(e, func(c ast.Expr) ast.Expr {
		nc, did := applyRecursively(c, p)
		if did {
			changed = true
		}
		return nc
	})
	if rewritten, did := p(e); did {
		return rewritten, true
	}
	return e, changed
}

// mapChildren rewrites e's immediate children with f and returns a
// (possibly new) node with the rewritten children spliced back in.
func mapChildren(e ast.Expr, f func(ast.Expr) ast.Expr) ast.Expr {
	switch n := e.(type) {
	case *ast.If:
		n.Test = f(n.Test)
		n.Then = f(n.Then)
		if n.Else != nil {
			n.Else = f(n.Else)
		}
		return n
	case *ast.Define:
		n.Value = f(n.Value)
		return n
	case *ast.Set:
		n.Value = f(n.Value)
		return n
	case *ast.LambdaFunction:
		for i, b := range n.Body {
			n.Body[i] = f(b)
		}
		return n
	case *ast.Begin:
		for i, b := range n.Body {
			n.Body[i] = f(b)
		}
		return n
	case *ast.Let:
		for i, b := range n.Bindings {
			n.Bindings[i].Init = f(b.Init)
		}
		for i, b := range n.Body {
			n.Body[i] = f(b)
		}
		return n
	case *ast.Return:
		n.Value = f(n.Value)
		return n
	case *ast.List:
		for i, el := range n.Elements {
			n.Elements[i] = f(el)
		}
		return n
	default:
		return e
	}
}

var purePrimitives = map[string]func(a, b int64) (int64, bool){
	"+": func(a, b int64) (int64, bool) { return a + b, true },
	"-": func(a, b int64) (int64, bool) { return a - b, true },
	"*": func(a, b int64) (int64, bool) { return a * b, true },
	"/": func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	},
}

// constantFold folds a pure primitive call applied entirely to integer
// literal arguments into a single Quote'd literal (spec section 4.D.2).
// Arity mismatch or a non-numeric argument leaves the call in place rather
// than raising an error here (no TypeMismatch is reported; this sub-pass
// is best-effort and silently declines instead).
func constantFold(e ast.Expr) (ast.Expr, bool) {
	list, ok := e.(*ast.List)
	if !ok || len(list.Elements) == 0 {
		return e, false
	}
	head, ok := list.Elements[0].(*ast.Atom)
	if !ok || !head.IsIdentifier() {
		return e, false
	}
	fn, ok := purePrimitives[head.Syn.Raw]
	if !ok || len(list.Elements) < 3 {
		return e, false
	}
	args := list.Elements[1:]
	acc, ok := literalInt(args[0])
	if !ok {
		return e, false
	}
	for _, a := range args[1:] {
		v, ok := literalInt(a)
		if !ok {
			return e, false
		}
		acc, ok = fn(acc, v)
		if !ok {
			return e, false
		}
	}
	return &ast.Quote{
		Datum: &ast.Atom{Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokInt, IntVal: acc, Span: list.Syn.Span}},
		Syn:   list.Syn,
	}, true
}

func literalInt(e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.Atom:
		if n.Syn.Kind == ast.TokInt {
			return n.Syn.IntVal, true
		}
	case *ast.Quote:
		return literalInt(n.Datum)
	}
	return 0, false
}

// flattenBegin hoists a single-expression begin into its body, and merges a
// nested begin directly into its parent's body list (spec section 4.D.3).
func flattenBegin(e ast.Expr) (ast.Expr, bool) {
	b, ok := e.(*ast.Begin)
	if !ok {
		return e, false
	}
	changed := false
	var flat []ast.Expr
	for _, child := range b.Body {
		if inner, ok := child.(*ast.Begin); ok {
			flat = append(flat, inner.Body...)
			changed = true
		} else {
			flat = append(flat, child)
		}
	}
	if len(flat) == 1 {
		return flat[0], true
	}
	if changed {
		b.Body = flat
		return b, true
	}
	return e, false
}

// flattenAnonymousCall rewrites `((lambda (x ...) body) e ...)` into a
// single `let` binding every parameter to its argument when the lambda
// takes exactly the arguments supplied and has no rest parameter, a
// semantics-preserving simplification of spec section 4.D.5's general
// case. A zero-argument call collapses to its body (a Begin when the body
// has more than one expression).
func flattenAnonymousCall(e ast.Expr) (ast.Expr, bool) {
	list, ok := e.(*ast.List)
	if !ok || len(list.Elements) < 1 {
		return e, false
	}
	lambda, ok := list.Elements[0].(*ast.LambdaFunction)
	if !ok || lambda.Rest != nil {
		return e, false
	}
	args := list.Elements[1:]
	if len(args) != len(lambda.Params) {
		return e, false
	}
	if len(args) == 0 {
		if len(lambda.Body) == 1 {
			return lambda.Body[0], true
		}
		return &ast.Begin{Body: lambda.Body, Syn: list.Syn}, true
	}
	bindings := make([]ast.LetBinding, len(args))
	for i, p := range lambda.Params {
		bindings[i] = ast.LetBinding{Name: p.Name, Init: args[i]}
	}
	return &ast.Let{Bindings: bindings, Body: lambda.Body, Syn: list.Syn}, true
}
