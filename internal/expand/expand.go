// Package expand implements the MacroExpander (spec section 4.B): pattern/
// template matching with ellipses, datum->syntax, syntax-const-if, and
// hygienic renaming of macro-introduced bindings. Grounded on the teacher's
// visitor-dispatch idiom (internal/elaborate/expressions.go) for the
// recursive-expand structure, and on steel's parser/replace_idents.rs for
// hygiene-by-renaming rather than a mark/color discipline.
package expand

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/schemecore/schemecore/internal/ast"
	schemeerr "github.com/schemecore/schemecore/internal/errors"
)

// MaxExpansionIterations bounds macro-expansion iteration; exceeding it is
// reported as EXP004 (macro expansion did not converge) rather than looping
// forever on a pathological or self-referential macro.
const MaxExpansionIterations = 256

// Env maps a macro's name to its definition. Expansion consults a single
// flat Env per module; the module manager gives each module a fresh Env, so
// macros defined in one module are not visible to modules that require it.
type Env struct {
	macros map[string]*ast.SyntaxRules
}

// NewEnv creates an empty macro environment.
func NewEnv() *Env {
	return &Env{macros: make(map[string]*ast.SyntaxRules)}
}

// Define registers a macro under name.
func (e *Env) Define(name string, rules *ast.SyntaxRules) {
	e.macros[name] = rules
}

// Lookup returns the macro registered under name.
func (e *Env) Lookup(name string) (*ast.SyntaxRules, bool) {
	r, ok := e.macros[name]
	return r, ok
}

var hygieneCounter int

func nextHygieneMark() int {
	hygieneCounter++
	return hygieneCounter
}

// Expand repeatedly rewrites macro call sites in e against env until no
// further macro application is possible, implementing the fixpoint
// described by spec section 4.B ("Expansion is iterated until no further
// macro call sites are produced").
func Expand(e ast.Expr, env *Env) (ast.Expr, error) {
	for i := 0; i < MaxExpansionIterations; i++ {
		rewritten, changed, err := expandOnce(e, env)
		if err != nil {
			return nil, err
		}
		if !changed {
			return rewritten, nil
		}
		e = rewritten
	}
	return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.EXP004,
		"macro expansion did not reach a fixpoint", spanOf(e)))
}

func spanOf(e ast.Expr) *ast.Span {
	if e == nil || e.SyntaxObj() == nil {
		return nil
	}
	s := e.SyntaxObj().Span
	return &s
}

func expandOnce(e ast.Expr, env *Env) (ast.Expr, bool, error) {
	switch n := e.(type) {
	case *ast.List:
		if len(n.Elements) > 0 {
			if head, ok := n.Elements[0].(*ast.Atom); ok && head.IsIdentifier() {
				switch head.Syn.Raw {
				case "datum->syntax":
					return expandDatumToSyntax(n)
				case "syntax-const-if":
					return expandConstIf(n, env)
				}
				if rules, ok := env.Lookup(head.Syn.Raw); ok {
					result, err := applyMacro(rules, n)
					if err != nil {
						return nil, false, err
					}
					return result, true, nil
				}
			}
		}
		return expandChildren(n, env)
	case *ast.If:
		changed := false
		var err error
		n.Test, changed, err = expandAndTrack(n.Test, env, changed)
		if err != nil {
			return nil, false, err
		}
		n.Then, changed, err = expandAndTrack(n.Then, env, changed)
		if err != nil {
			return nil, false, err
		}
		if n.Else != nil {
			n.Else, changed, err = expandAndTrack(n.Else, env, changed)
			if err != nil {
				return nil, false, err
			}
		}
		return n, changed, nil
	case *ast.Define:
		v, changed, err := expandOnce(n.Value, env)
		if err != nil {
			return nil, false, err
		}
		n.Value = v
		return n, changed, nil
	case *ast.Set:
		v, changed, err := expandOnce(n.Value, env)
		if err != nil {
			return nil, false, err
		}
		n.Value = v
		return n, changed, nil
	case *ast.LambdaFunction:
		return expandBody(n, env)
	case *ast.Begin:
		return expandSeq(n, env)
	case *ast.Let:
		changed := false
		for i := range n.Bindings {
			v, c, err := expandOnce(n.Bindings[i].Init, env)
			if err != nil {
				return nil, false, err
			}
			n.Bindings[i].Init = v
			changed = changed || c
		}
		for i := range n.Body {
			v, c, err := expandOnce(n.Body[i], env)
			if err != nil {
				return nil, false, err
			}
			n.Body[i] = v
			changed = changed || c
		}
		return n, changed, nil
	case *ast.Macro:
		env.Define(n.Name.Syn.Raw, n.Rules)
		return n, false, nil
	default:
		return n, false, nil
	}
}

func expandAndTrack(e ast.Expr, env *Env, changedSoFar bool) (ast.Expr, bool, error) {
	r, c, err := expandOnce(e, env)
	return r, changedSoFar || c, err
}

func expandChildren(n *ast.List, env *Env) (ast.Expr, bool, error) {
	changed := false
	for i, el := range n.Elements {
		r, c, err := expandOnce(el, env)
		if err != nil {
			return nil, false, err
		}
		n.Elements[i] = r
		changed = changed || c
	}
	return n, changed, nil
}

func expandBody(n *ast.LambdaFunction, env *Env) (ast.Expr, bool, error) {
	changed := false
	for i, b := range n.Body {
		r, c, err := expandOnce(b, env)
		if err != nil {
			return nil, false, err
		}
		n.Body[i] = r
		changed = changed || c
	}
	return n, changed, nil
}

func expandSeq(n *ast.Begin, env *Env) (ast.Expr, bool, error) {
	changed := false
	for i, b := range n.Body {
		r, c, err := expandOnce(b, env)
		if err != nil {
			return nil, false, err
		}
		n.Body[i] = r
		changed = changed || c
	}
	return n, changed, nil
}

// expandDatumToSyntax implements `(datum->syntax id1 id2 ...)`: concatenate
// the textual rendering of every argument into a fresh identifier token,
// preserving the call site's span.
func expandDatumToSyntax(call *ast.List) (ast.Expr, bool, error) {
	if len(call.Elements) < 2 {
		return nil, false, schemeerr.WrapReport(schemeerr.New(schemeerr.EXP003,
			"datum->syntax requires at least one argument", spanOf(call)))
	}
	var b strings.Builder
	for _, arg := range call.Elements[1:] {
		atom, ok := arg.(*ast.Atom)
		if !ok {
			return nil, false, schemeerr.WrapReport(schemeerr.New(schemeerr.EXP003,
				"datum->syntax arguments must be identifiers or literals", spanOf(arg)))
		}
		b.WriteString(norm.NFC.String(atom.Syn.String()))
	}
	return &ast.Atom{Syn: &ast.SyntaxObject{
		Id:   ast.NextSyntaxObjectId(),
		Kind: ast.TokIdentifier,
		Raw:  b.String(),
		Span: call.Syn.Span,
	}}, true, nil
}

// expandConstIf implements `(syntax-const-if test then else)`: test is
// resolved at expansion time, truthy iff it is a non-identifier literal atom
// or a quoted datum; otherwise else is taken. An identifier test is not
// looked up in any environment, so it always takes else.
func expandConstIf(call *ast.List, env *Env) (ast.Expr, bool, error) {
	if len(call.Elements) != 4 {
		return nil, false, schemeerr.WrapReport(schemeerr.New(schemeerr.EXP001,
			"syntax-const-if requires exactly 3 arguments", spanOf(call)))
	}
	test, thenB, elseB := call.Elements[1], call.Elements[2], call.Elements[3]
	if isLiteral(test) {
		r, _, err := expandOnce(thenB, env)
		return r, true, err
	}
	r, _, err := expandOnce(elseB, env)
	return r, true, err
}

func isLiteral(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.Atom:
		return !n.IsIdentifier()
	case *ast.Quote:
		return true
	default:
		return false
	}
}

// applyMacro matches call against every rule in rules, in order, and
// substitutes the first pattern that matches, then hygienically renames
// any identifier the template itself introduced (as opposed to one copied
// in verbatim from the matched input).
func applyMacro(rules *ast.SyntaxRules, call *ast.List) (ast.Expr, error) {
	for _, rule := range rules.Rules {
		bindings := map[string][]ast.Expr{}
		patternList, ok := rule.Pattern.(*ast.List)
		if !ok {
			continue
		}
		if matchPattern(patternList.Elements, call.Elements, literalSet(rules.Literals), bindings) {
			bound := templateBoundNames(rule.Template)
			introduced := map[ast.SyntaxObjectId]bool{}
			out := substitute(rule.Template, bindings, bound, introduced)
			mark := nextHygieneMark()
			renameIntroduced(out, introduced, mark)
			return out, nil
		}
	}
	return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.EXP001,
		fmt.Sprintf("no syntax-rules pattern matches this call site"), spanOf(call)))
}

// templateBoundNames collects every name the template itself binds: a
// let-bound temporary, a lambda parameter or rest-arg, or an internal
// define's target. Only these are candidates for hygienic renaming; a
// template identifier not in this set is a free reference (to a global or
// a builtin) and must pass through substitution unchanged.
func templateBoundNames(template ast.Expr) map[string]bool {
	bound := map[string]bool{}
	collectBoundNames(template, bound)
	return bound
}

func collectBoundNames(e ast.Expr, bound map[string]bool) {
	switch n := e.(type) {
	case *ast.List:
		for _, el := range n.Elements {
			collectBoundNames(el, bound)
		}
	case *ast.If:
		collectBoundNames(n.Test, bound)
		collectBoundNames(n.Then, bound)
		if n.Else != nil {
			collectBoundNames(n.Else, bound)
		}
	case *ast.Begin:
		for _, b := range n.Body {
			collectBoundNames(b, bound)
		}
	case *ast.Let:
		for _, b := range n.Bindings {
			if b.Name != nil && b.Name.IsIdentifier() {
				bound[b.Name.Syn.Raw] = true
			}
			collectBoundNames(b.Init, bound)
		}
		for _, b := range n.Body {
			collectBoundNames(b, bound)
		}
	case *ast.LambdaFunction:
		for _, p := range n.Params {
			if p.Name != nil && p.Name.IsIdentifier() {
				bound[p.Name.Syn.Raw] = true
			}
		}
		if n.Rest != nil && n.Rest.Name != nil && n.Rest.Name.IsIdentifier() {
			bound[n.Rest.Name.Syn.Raw] = true
		}
		for _, b := range n.Body {
			collectBoundNames(b, bound)
		}
	case *ast.Define:
		if n.Name != nil && n.Name.IsIdentifier() {
			bound[n.Name.Syn.Raw] = true
		}
		collectBoundNames(n.Value, bound)
	case *ast.Set:
		collectBoundNames(n.Value, bound)
	case *ast.Return:
		collectBoundNames(n.Value, bound)
	}
}

func literalSet(lits []string) map[string]bool {
	s := make(map[string]bool, len(lits))
	for _, l := range lits {
		s[l] = true
	}
	return s
}

// matchPattern matches a (possibly ellipsis-containing) pattern element
// list against call-site elements, recording each pattern variable's bound
// sequence in bindings. A pattern variable followed by the literal
// identifier "..." binds to every remaining matching element.
func matchPattern(pattern, input []ast.Expr, literals map[string]bool, bindings map[string][]ast.Expr) bool {
	pi, ii := 0, 0
	for pi < len(pattern) {
		isEllipsis := pi+1 < len(pattern) && isEllipsisMarker(pattern[pi+1])
		if isEllipsis {
			varName, ok := patternVarName(pattern[pi], literals)
			if !ok {
				return false
			}
			remaining := len(pattern) - pi - 2
			take := len(input) - ii - remaining
			if take < 0 {
				return false
			}
			bindings[varName] = append(bindings[varName], input[ii:ii+take]...)
			ii += take
			pi += 2
			continue
		}
		if ii >= len(input) {
			return false
		}
		if !matchOne(pattern[pi], input[ii], literals, bindings) {
			return false
		}
		pi++
		ii++
	}
	return ii == len(input)
}

func isEllipsisMarker(e ast.Expr) bool {
	a, ok := e.(*ast.Atom)
	return ok && a.IsIdentifier() && a.Syn.Raw == "..."
}

func patternVarName(e ast.Expr, literals map[string]bool) (string, bool) {
	a, ok := e.(*ast.Atom)
	if !ok || !a.IsIdentifier() || literals[a.Syn.Raw] || a.Syn.Raw == "_" {
		return "", false
	}
	return a.Syn.Raw, true
}

func matchOne(pattern, input ast.Expr, literals map[string]bool, bindings map[string][]ast.Expr) bool {
	switch p := pattern.(type) {
	case *ast.Atom:
		if p.IsIdentifier() {
			if literals[p.Syn.Raw] {
				in, ok := input.(*ast.Atom)
				return ok && in.IsIdentifier() && in.Syn.Raw == p.Syn.Raw
			}
			if p.Syn.Raw == "_" {
				return true
			}
			bindings[p.Syn.Raw] = []ast.Expr{input}
			return true
		}
		in, ok := input.(*ast.Atom)
		return ok && literalsEqual(p, in)
	case *ast.List:
		in, ok := input.(*ast.List)
		return ok && matchPattern(p.Elements, in.Elements, literals, bindings)
	default:
		return false
	}
}

func literalsEqual(a, b *ast.Atom) bool {
	if a.Syn.Kind != b.Syn.Kind {
		return false
	}
	switch a.Syn.Kind {
	case ast.TokInt:
		return a.Syn.IntVal == b.Syn.IntVal
	case ast.TokString:
		return a.Syn.StrVal == b.Syn.StrVal
	case ast.TokBool:
		return a.Syn.BoolVal == b.Syn.BoolVal
	default:
		return a.Syn.Raw == b.Syn.Raw
	}
}

// substitute builds the expansion output from template, splicing bound
// pattern-variable sequences in, and cloning every other atom fresh. An
// identifier that the template itself binds (per bound, from
// templateBoundNames) has its clone tracked in introduced so the hygiene
// pass below can rename it; a free reference to a global or builtin is
// cloned with a fresh SyntaxObjectId but keeps its original spelling.
func substitute(template ast.Expr, bindings map[string][]ast.Expr, bound map[string]bool, introduced map[ast.SyntaxObjectId]bool) ast.Expr {
	switch t := template.(type) {
	case *ast.Atom:
		if t.IsIdentifier() {
			if vals, ok := bindings[t.Syn.Raw]; ok {
				if len(vals) == 1 {
					return vals[0]
				}
				if len(vals) == 0 {
					return &ast.Begin{Syn: t.Syn}
				}
			}
			fresh := &ast.Atom{Syn: &ast.SyntaxObject{
				Id: ast.NextSyntaxObjectId(), Kind: ast.TokIdentifier, Raw: t.Syn.Raw, Span: t.Syn.Span,
			}}
			if bound[t.Syn.Raw] {
				introduced[fresh.Syn.Id] = true
			}
			return fresh
		}
		return &ast.Atom{Syn: &ast.SyntaxObject{
			Id: ast.NextSyntaxObjectId(), Kind: t.Syn.Kind, IntVal: t.Syn.IntVal, RealVal: t.Syn.RealVal,
			CharVal: t.Syn.CharVal, StrVal: t.Syn.StrVal, BoolVal: t.Syn.BoolVal, Span: t.Syn.Span,
		}}
	case *ast.List:
		var out []ast.Expr
		for i := 0; i < len(t.Elements); i++ {
			if i+1 < len(t.Elements) && isEllipsisMarker(t.Elements[i+1]) {
				varName, ok := patternVarNameAny(t.Elements[i])
				if ok {
					for j := range bindings[varName] {
						out = append(out, substituteIndexed(t.Elements[i], bindings, bound, introduced, j))
					}
				}
				i++
				continue
			}
			out = append(out, substitute(t.Elements[i], bindings, bound, introduced))
		}
		return &ast.List{Elements: out, Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: t.Syn.Span}}
	case *ast.If:
		var elseExpr ast.Expr
		if t.Else != nil {
			elseExpr = substitute(t.Else, bindings, bound, introduced)
		}
		return &ast.If{
			Test: substitute(t.Test, bindings, bound, introduced),
			Then: substitute(t.Then, bindings, bound, introduced),
			Else: elseExpr,
			Syn:  &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: t.Syn.Span},
		}
	case *ast.Begin:
		body := make([]ast.Expr, len(t.Body))
		for i, b := range t.Body {
			body[i] = substitute(b, bindings, bound, introduced)
		}
		return &ast.Begin{Body: body, Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: t.Syn.Span}}
	case *ast.Let:
		binds := make([]ast.LetBinding, len(t.Bindings))
		for i, b := range t.Bindings {
			binds[i] = ast.LetBinding{
				Name: substituteAtom(b.Name, bindings, bound, introduced),
				Init: substitute(b.Init, bindings, bound, introduced),
			}
		}
		body := make([]ast.Expr, len(t.Body))
		for i, b := range t.Body {
			body[i] = substitute(b, bindings, bound, introduced)
		}
		return &ast.Let{Bindings: binds, Body: body, Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: t.Syn.Span}}
	case *ast.LambdaFunction:
		params := make([]*ast.Param, len(t.Params))
		for i, p := range t.Params {
			params[i] = &ast.Param{Name: substituteAtom(p.Name, bindings, bound, introduced)}
		}
		var rest *ast.Param
		if t.Rest != nil {
			rest = &ast.Param{Name: substituteAtom(t.Rest.Name, bindings, bound, introduced)}
		}
		body := make([]ast.Expr, len(t.Body))
		for i, b := range t.Body {
			body[i] = substitute(b, bindings, bound, introduced)
		}
		return &ast.LambdaFunction{Params: params, Rest: rest, Body: body, Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: t.Syn.Span}}
	case *ast.Define:
		return &ast.Define{
			Name:  substituteAtom(t.Name, bindings, bound, introduced),
			Value: substitute(t.Value, bindings, bound, introduced),
			Syn:   &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: t.Syn.Span},
		}
	case *ast.Set:
		return &ast.Set{
			Name:  substituteAtom(t.Name, bindings, bound, introduced),
			Value: substitute(t.Value, bindings, bound, introduced),
			Syn:   &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: t.Syn.Span},
		}
	case *ast.Return:
		return &ast.Return{
			Value: substitute(t.Value, bindings, bound, introduced),
			Syn:   &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: t.Syn.Span},
		}
	default:
		return template
	}
}

// substituteAtom substitutes a binding-position identifier (a Let binding
// name, a lambda parameter, a define or set! target). If a matches a
// pattern variable it resolves to whatever the call site bound there
// (expected to be an atom for these positions); otherwise it's cloned and
// classified like any other template atom.
func substituteAtom(a *ast.Atom, bindings map[string][]ast.Expr, bound map[string]bool, introduced map[ast.SyntaxObjectId]bool) *ast.Atom {
	if a == nil {
		return nil
	}
	if out, ok := substitute(a, bindings, bound, introduced).(*ast.Atom); ok {
		return out
	}
	return a
}

func patternVarNameAny(e ast.Expr) (string, bool) {
	a, ok := e.(*ast.Atom)
	if !ok || !a.IsIdentifier() {
		return "", false
	}
	return a.Syn.Raw, true
}

// substituteIndexed substitutes a single ellipsis-repeated template element
// for repetition index idx, selecting the idx'th bound value for every
// pattern variable the element references directly.
func substituteIndexed(elem ast.Expr, bindings map[string][]ast.Expr, bound map[string]bool, introduced map[ast.SyntaxObjectId]bool, idx int) ast.Expr {
	single := map[string][]ast.Expr{}
	for k, v := range bindings {
		if idx < len(v) {
			single[k] = []ast.Expr{v[idx]}
		}
	}
	return substitute(elem, single, bound, introduced)
}

// renameIntroduced walks out, renaming every Atom whose SyntaxObjectId is in
// introduced by appending a hygiene mark, so that a template's own binding
// (e.g. a `let`-bound temporary) cannot capture a reference the caller
// passed in under the same spelling. Tracking specific ids rather than bare
// names keeps a caller-supplied argument that happens to share a template
// binding's spelling from being renamed too.
func renameIntroduced(out ast.Expr, introduced map[ast.SyntaxObjectId]bool, mark int) {
	switch n := out.(type) {
	case *ast.Atom:
		if n.IsIdentifier() && introduced[n.Syn.Id] {
			n.Syn.Raw = fmt.Sprintf("%s%%hy%d", n.Syn.Raw, mark)
		}
	case *ast.List:
		for _, e := range n.Elements {
			renameIntroduced(e, introduced, mark)
		}
	case *ast.If:
		renameIntroduced(n.Test, introduced, mark)
		renameIntroduced(n.Then, introduced, mark)
		if n.Else != nil {
			renameIntroduced(n.Else, introduced, mark)
		}
	case *ast.Let:
		for i := range n.Bindings {
			renameIntroduced(n.Bindings[i].Name, introduced, mark)
			renameIntroduced(n.Bindings[i].Init, introduced, mark)
		}
		for _, b := range n.Body {
			renameIntroduced(b, introduced, mark)
		}
	case *ast.LambdaFunction:
		for _, p := range n.Params {
			renameIntroduced(p.Name, introduced, mark)
		}
		if n.Rest != nil {
			renameIntroduced(n.Rest.Name, introduced, mark)
		}
		for _, b := range n.Body {
			renameIntroduced(b, introduced, mark)
		}
	case *ast.Begin:
		for _, b := range n.Body {
			renameIntroduced(b, introduced, mark)
		}
	case *ast.Define:
		renameIntroduced(n.Name, introduced, mark)
		renameIntroduced(n.Value, introduced, mark)
	case *ast.Set:
		renameIntroduced(n.Name, introduced, mark)
		renameIntroduced(n.Value, introduced, mark)
	case *ast.Return:
		renameIntroduced(n.Value, introduced, mark)
	}
}
