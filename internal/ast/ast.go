// Package ast defines the tree the compiler pipeline consumes. The parser
// (an external collaborator, not part of this module) is responsible for
// producing these shapes with SyntaxObjectIds and Spans already attached;
// every later phase (expand, analysis, optimize, codegen) only ever adds
// annotations keyed by SyntaxObjectId, never reshapes the tree in place
// without producing fresh ids.
package ast

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Pos is a single point in source text.
type Pos struct {
	Line   int
	Column int
	File   string
	Offset int
}

func (p Pos) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Span is a range in source text, optionally tied to a registered source id.
type Span struct {
	Start    Pos
	End      Pos
	SourceID int
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%d:%d", s.Start, s.End.Line, s.End.Column)
}

// SyntaxObjectId uniquely identifies a SyntaxObject for the lifetime of a
// compilation unit. Two objects with identical text are still distinct ids;
// this is the property that makes renaming and hygiene tractable.
type SyntaxObjectId uint64

var nextSyntaxObjectId uint64

// NextSyntaxObjectId returns a fresh, process-wide unique id. Code that
// creates nodes (the reader, the optimizer's constant folder, the macro
// expander's template substitution and datum->syntax) calls this rather
// than reusing an id.
func NextSyntaxObjectId() SyntaxObjectId {
	return SyntaxObjectId(atomic.AddUint64(&nextSyntaxObjectId, 1))
}

// TokenKind classifies the literal form a SyntaxObject's Atom wraps.
type TokenKind int

const (
	TokIdentifier TokenKind = iota
	TokInt
	TokReal
	TokChar
	TokString
	TokBool
	TokKeyword
	TokQuoteTok
	TokVoid
)

func (k TokenKind) String() string {
	switch k {
	case TokIdentifier:
		return "identifier"
	case TokInt:
		return "int"
	case TokReal:
		return "real"
	case TokChar:
		return "char"
	case TokString:
		return "string"
	case TokBool:
		return "bool"
	case TokKeyword:
		return "keyword"
	case TokQuoteTok:
		return "quote"
	case TokVoid:
		return "void"
	default:
		return "unknown"
	}
}

// SyntaxObject is the atomic unit of the tree: a token kind, its source
// span, the id that survives every rewrite that doesn't explicitly refresh
// it, and the raw textual/value payload the token carries.
type SyntaxObject struct {
	Id   SyntaxObjectId
	Kind TokenKind
	Span Span

	// Raw holds the token's textual spelling for identifiers and keywords.
	Raw string

	// IntVal, RealVal, CharVal, StrVal, BoolVal hold the decoded literal
	// value for the corresponding TokenKind; only one is meaningful per
	// object, selected by Kind.
	IntVal  int64
	RealVal float64
	CharVal rune
	StrVal  string
	BoolVal bool
}

func (so *SyntaxObject) String() string {
	if so == nil {
		return "<nil-syntax-object>"
	}
	switch so.Kind {
	case TokIdentifier, TokKeyword:
		return so.Raw
	case TokInt:
		return fmt.Sprintf("%d", so.IntVal)
	case TokReal:
		return fmt.Sprintf("%g", so.RealVal)
	case TokChar:
		return fmt.Sprintf("#\\%c", so.CharVal)
	case TokString:
		return fmt.Sprintf("%q", so.StrVal)
	case TokBool:
		if so.BoolVal {
			return "#t"
		}
		return "#f"
	default:
		return so.Raw
	}
}

// Node is the base interface every tree element satisfies.
type Node interface {
	String() string
	Position() Pos
}

// Expr is satisfied by every ExprKind variant (spec section 3): If, Define,
// LambdaFunction, Begin, Return, Quote, Macro, Atom, List, Set, Require,
// Let, SyntaxRules.
type Expr interface {
	Node
	exprNode()
	SyntaxObj() *SyntaxObject
}

func (s *SyntaxObject) position() Pos {
	if s == nil {
		return Pos{}
	}
	return s.Span.Start
}

// Atom wraps a single leaf SyntaxObject: an identifier reference or a
// literal. This is the only ExprKind variant the analyzer attaches
// SemanticInformation to.
type Atom struct {
	Syn *SyntaxObject
}

func (a *Atom) exprNode()               {}
func (a *Atom) Position() Pos           { return a.Syn.position() }
func (a *Atom) SyntaxObj() *SyntaxObject { return a.Syn }
func (a *Atom) String() string          { return a.Syn.String() }

// IsIdentifier reports whether this atom names a variable reference rather
// than a literal constant.
func (a *Atom) IsIdentifier() bool {
	return a.Syn != nil && a.Syn.Kind == TokIdentifier
}

// List is a generic form: the application `(f a b ...)`, or any other
// unexpanded s-expression the macro expander has not yet classified into a
// more specific ExprKind.
type List struct {
	Elements []Expr
	Syn      *SyntaxObject
}

func (l *List) exprNode()               {}
func (l *List) Position() Pos           { return l.Syn.position() }
func (l *List) SyntaxObj() *SyntaxObject { return l.Syn }
func (l *List) String() string {
	parts := make([]string, len(l.Elements))
	for i, e := range l.Elements {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// If is the three-armed conditional; Else is nil for a two-armed `(if t then)`.
type If struct {
	Test Expr
	Then Expr
	Else Expr
	Syn  *SyntaxObject
}

func (i *If) exprNode()               {}
func (i *If) Position() Pos           { return i.Syn.position() }
func (i *If) SyntaxObj() *SyntaxObject { return i.Syn }
func (i *If) String() string {
	if i.Else == nil {
		return fmt.Sprintf("(if %s %s)", i.Test, i.Then)
	}
	return fmt.Sprintf("(if %s %s %s)", i.Test, i.Then, i.Else)
}

// Define binds Value to Name, either at module top level or inside a body.
// No pass lifts an internal define into an enclosing let.
type Define struct {
	Name  *Atom
	Value Expr
	Syn   *SyntaxObject
}

func (d *Define) exprNode()               {}
func (d *Define) Position() Pos           { return d.Syn.position() }
func (d *Define) SyntaxObj() *SyntaxObject { return d.Syn }
func (d *Define) String() string {
	return fmt.Sprintf("(define %s %s)", d.Name, d.Value)
}

// Param is a single formal parameter of a LambdaFunction.
type Param struct {
	Name *Atom
}

// LambdaFunction is `(lambda (args...) body...)`. Rest is non-nil when the
// parameter list ends in a dotted/variadic tail.
type LambdaFunction struct {
	Params []*Param
	Rest   *Param
	Body   []Expr
	Syn    *SyntaxObject
}

func (l *LambdaFunction) exprNode()               {}
func (l *LambdaFunction) Position() Pos           { return l.Syn.position() }
func (l *LambdaFunction) SyntaxObj() *SyntaxObject { return l.Syn }
func (l *LambdaFunction) String() string {
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name.String()
	}
	params := strings.Join(names, " ")
	if l.Rest != nil {
		if params != "" {
			params += " . " + l.Rest.Name.String()
		} else {
			params = l.Rest.Name.String()
		}
	}
	body := make([]string, len(l.Body))
	for i, e := range l.Body {
		body[i] = e.String()
	}
	return fmt.Sprintf("(lambda (%s) %s)", params, strings.Join(body, " "))
}

// Begin sequences a body of expressions, yielding the value of the last.
type Begin struct {
	Body []Expr
	Syn  *SyntaxObject
}

func (b *Begin) exprNode()               {}
func (b *Begin) Position() Pos           { return b.Syn.position() }
func (b *Begin) SyntaxObj() *SyntaxObject { return b.Syn }
func (b *Begin) String() string {
	parts := make([]string, len(b.Body))
	for i, e := range b.Body {
		parts[i] = e.String()
	}
	return "(begin " + strings.Join(parts, " ") + ")"
}

// Return marks an explicit tail position; it has no surface syntax, and
// neither the reader nor the optimizer produces it.
type Return struct {
	Value Expr
	Syn   *SyntaxObject
}

func (r *Return) exprNode()               {}
func (r *Return) Position() Pos           { return r.Syn.position() }
func (r *Return) SyntaxObj() *SyntaxObject { return r.Syn }
func (r *Return) String() string          { return "(return " + r.Value.String() + ")" }

// Quote wraps a literal datum that must not be evaluated.
type Quote struct {
	Datum Expr
	Syn   *SyntaxObject
}

func (q *Quote) exprNode()               {}
func (q *Quote) Position() Pos           { return q.Syn.position() }
func (q *Quote) SyntaxObj() *SyntaxObject { return q.Syn }
func (q *Quote) String() string          { return "'" + q.Datum.String() }

// Set is `(set! name value)`.
type Set struct {
	Name  *Atom
	Value Expr
	Syn   *SyntaxObject
}

func (s *Set) exprNode()               {}
func (s *Set) Position() Pos           { return s.Syn.position() }
func (s *Set) SyntaxObj() *SyntaxObject { return s.Syn }
func (s *Set) String() string {
	return fmt.Sprintf("(set! %s %s)", s.Name, s.Value)
}

// Require names a module to import by path, optionally restricted to a
// selective symbol list (empty means import every export).
type Require struct {
	Path    string
	Symbols []string
	Syn     *SyntaxObject
}

func (r *Require) exprNode()               {}
func (r *Require) Position() Pos           { return r.Syn.position() }
func (r *Require) SyntaxObj() *SyntaxObject { return r.Syn }
func (r *Require) String() string {
	if len(r.Symbols) == 0 {
		return fmt.Sprintf("(require %s)", r.Path)
	}
	return fmt.Sprintf("(require %s (%s))", r.Path, strings.Join(r.Symbols, " "))
}

// LetBinding pairs a bound name with its initializer inside a Let.
type LetBinding struct {
	Name *Atom
	Init Expr
}

// Let is `(let ((x v) ...) body...)`, the non-recursive form only. The
// reader accepts no named-let, and no pass desugars named-let or letrec
// into this node.
type Let struct {
	Bindings []LetBinding
	Body     []Expr
	Syn      *SyntaxObject
}

func (l *Let) exprNode()               {}
func (l *Let) Position() Pos           { return l.Syn.position() }
func (l *Let) SyntaxObj() *SyntaxObject { return l.Syn }
func (l *Let) String() string {
	binds := make([]string, len(l.Bindings))
	for i, b := range l.Bindings {
		binds[i] = fmt.Sprintf("(%s %s)", b.Name, b.Init)
	}
	body := make([]string, len(l.Body))
	for i, e := range l.Body {
		body[i] = e.String()
	}
	return fmt.Sprintf("(let (%s) %s)", strings.Join(binds, " "), strings.Join(body, " "))
}

// SyntaxRulePattern is one (pattern template) arm of a syntax-rules macro.
type SyntaxRulePattern struct {
	Pattern  Expr
	Template Expr
}

// SyntaxRules is a macro definition: a literal identifier set plus an
// ordered list of pattern/template rules, matched in order at expansion
// time by component B.
type SyntaxRules struct {
	Literals []string
	Rules    []SyntaxRulePattern
	Syn      *SyntaxObject
}

func (s *SyntaxRules) exprNode()               {}
func (s *SyntaxRules) Position() Pos           { return s.Syn.position() }
func (s *SyntaxRules) SyntaxObj() *SyntaxObject { return s.Syn }
func (s *SyntaxRules) String() string {
	return fmt.Sprintf("(syntax-rules (%s) ...)", strings.Join(s.Literals, " "))
}

// Macro is a top-level macro definition, `(define-syntax name rules)`.
type Macro struct {
	Name  *Atom
	Rules *SyntaxRules
	Syn   *SyntaxObject
}

func (m *Macro) exprNode()               {}
func (m *Macro) Position() Pos           { return m.Syn.position() }
func (m *Macro) SyntaxObj() *SyntaxObject { return m.Syn }
func (m *Macro) String() string {
	return fmt.Sprintf("(define-syntax %s %s)", m.Name, m.Rules)
}

// File is a single parsed source unit: zero or more top-level expressions,
// with the file path retained for span rendering and module resolution.
type File struct {
	Path  string
	Exprs []Expr
	Pos   Pos
}

func (f *File) String() string {
	parts := make([]string, len(f.Exprs))
	for i, e := range f.Exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "\n")
}
func (f *File) Position() Pos { return f.Pos }
