package ast

import "encoding/json"

// exprJSON is the wire shape used for golden snapshots: every node is
// tagged with its variant name so the JSON is self-describing without
// reflecting on Go type names (which would leak package paths into fixtures).
type exprJSON struct {
	Type string `json:"type"`
	Node any    `json:"node"`
}

// Print produces a deterministic JSON representation of an Expr tree for
// golden-file comparisons. SyntaxObjectIds are included since hygiene tests
// depend on distinguishing textually-identical-but-distinct identifiers;
// byte offsets are kept for the same reason span-sensitive passes need them
// pinned in fixtures.
func Print(e Expr) string {
	data, err := json.MarshalIndent(wrap(e), "", "  ")
	if err != nil {
		return "error: " + err.Error()
	}
	return string(data)
}

func wrap(e Expr) *exprJSON {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *Atom:
		return &exprJSON{"Atom", n}
	case *List:
		return &exprJSON{"List", n}
	case *If:
		return &exprJSON{"If", n}
	case *Define:
		return &exprJSON{"Define", n}
	case *LambdaFunction:
		return &exprJSON{"LambdaFunction", n}
	case *Begin:
		return &exprJSON{"Begin", n}
	case *Return:
		return &exprJSON{"Return", n}
	case *Quote:
		return &exprJSON{"Quote", n}
	case *Set:
		return &exprJSON{"Set", n}
	case *Require:
		return &exprJSON{"Require", n}
	case *Let:
		return &exprJSON{"Let", n}
	case *SyntaxRules:
		return &exprJSON{"SyntaxRules", n}
	case *Macro:
		return &exprJSON{"Macro", n}
	default:
		return &exprJSON{"Unknown", nil}
	}
}

// PrintFile renders every top-level expression of a File the same way Print
// renders a single Expr.
func PrintFile(f *File) string {
	if f == nil {
		return "null"
	}
	wrapped := make([]*exprJSON, len(f.Exprs))
	for i, e := range f.Exprs {
		wrapped[i] = wrap(e)
	}
	data, err := json.MarshalIndent(wrapped, "", "  ")
	if err != nil {
		return "error: " + err.Error()
	}
	return string(data)
}
