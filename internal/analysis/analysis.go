// Package analysis implements the SemanticAnalyzer (spec section 4.C): a
// two-pass classifier over the tree that fills the Analysis tables (spec
// section 3) keyed by SyntaxObjectId — per-occurrence identifier kind,
// per-function capture/escape info, per-call tail annotation, per-let
// frame layout. Grounded on steel's compiler/passes/analysis.rs for the
// state machine and on the teacher's scoped-environment walk for lexical
// resolution.
package analysis

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/schemecore/schemecore/internal/ast"
	schemeerr "github.com/schemecore/schemecore/internal/errors"
)

// IdentifierKind is the classification state machine from spec section 4.C.
type IdentifierKind int

const (
	KindUnresolved IdentifierKind = iota
	KindGlobal
	KindLocal
	KindLocallyDefinedFunction
	KindLetVar
	KindCaptured
	KindFree
	KindHeapAllocated
)

func (k IdentifierKind) String() string {
	switch k {
	case KindGlobal:
		return "Global"
	case KindLocal:
		return "Local"
	case KindLocallyDefinedFunction:
		return "LocallyDefinedFunction"
	case KindLetVar:
		return "LetVar"
	case KindCaptured:
		return "Captured"
	case KindFree:
		return "Free"
	case KindHeapAllocated:
		return "HeapAllocated"
	default:
		return "Unresolved"
	}
}

// CallKind classifies a call site's tail position (spec section 3/4.C).
type CallKind int

const (
	CallNormal CallKind = iota
	CallTail
	CallSelfTail
)

func (k CallKind) String() string {
	switch k {
	case CallTail:
		return "TailCall"
	case CallSelfTail:
		return "SelfTailCall"
	default:
		return "Normal"
	}
}

// SemanticInformation is the per-occurrence record for a single identifier
// Atom, keyed by its SyntaxObjectId in Analysis.Info.
type SemanticInformation struct {
	Kind                 IdentifierKind
	Depth                int
	UsageCount           int
	RefersTo             ast.SyntaxObjectId
	AliasesTo            ast.SyntaxObjectId
	SetBang              bool
	LastUsage            bool
	StackOffset          int
	CaptureIndex         int
	HeapOffset           int
	Builtin              bool
	CapturedFromEnclosing bool
	Escapes              bool
}

// FunctionInfo is the per-lambda record in Analysis.FunctionInfo.
type FunctionInfo struct {
	CapturedVars []ast.SyntaxObjectId
	Arguments    []ast.SyntaxObjectId
	Escapes      bool
	AliasTo      ast.SyntaxObjectId
	Depth        int

	// captureSet is a bitset allocated for every FunctionInfo; no pass sets
	// or reads it. Capture membership is tracked in CapturedVars.
	captureSet *bitset.BitSet
}

// CallInfo is the per-call-site record in Analysis.CallInfo.
type CallInfo struct {
	Kind  CallKind
	Depth int // meaningful only when Kind == CallSelfTail
}

// LetInfo is the per-let record in Analysis.LetInfo.
type LetInfo struct {
	StackOffset       int
	Arguments         []ast.SyntaxObjectId
	EnclosingFunction ast.SyntaxObjectId
}

// Analysis holds the auxiliary tables spec section 3 requires, all keyed by
// SyntaxObjectId.
type Analysis struct {
	Info         map[ast.SyntaxObjectId]*SemanticInformation
	FunctionInfo map[ast.SyntaxObjectId]*FunctionInfo
	CallInfo     map[ast.SyntaxObjectId]*CallInfo
	LetInfo      map[ast.SyntaxObjectId]*LetInfo
}

func newAnalysis() *Analysis {
	return &Analysis{
		Info:         make(map[ast.SyntaxObjectId]*SemanticInformation),
		FunctionInfo: make(map[ast.SyntaxObjectId]*FunctionInfo),
		CallInfo:     make(map[ast.SyntaxObjectId]*CallInfo),
		LetInfo:      make(map[ast.SyntaxObjectId]*LetInfo),
	}
}

// binding is a lexical scope entry: the SyntaxObjectId of the defining atom,
// the function-nesting depth at which it was introduced, and whether it is
// a global (in which case depth/capture machinery doesn't apply).
type binding struct {
	id     ast.SyntaxObjectId
	name   string
	kind   IdentifierKind
	depth  int
	global bool
}

// scope is a single lexical frame (let, lambda params, or the module top
// level); scopes chain to a parent to model nesting.
type scope struct {
	parent   *scope
	bindings map[string]*binding
	funcID   ast.SyntaxObjectId // nearest enclosing lambda's SyntaxObjectId, 0 at top level
	depth    int
}

func newScope(parent *scope, funcID ast.SyntaxObjectId) *scope {
	d := 0
	if parent != nil {
		d = parent.depth
	}
	return &scope{parent: parent, bindings: make(map[string]*binding), funcID: funcID, depth: d}
}

func (s *scope) define(name string, id ast.SyntaxObjectId, kind IdentifierKind, global bool) {
	s.bindings[name] = &binding{id: id, name: name, kind: kind, depth: s.depth, global: global}
}

func (s *scope) lookup(name string) (*binding, *scope) {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.bindings[name]; ok {
			return b, sc
		}
	}
	return nil, nil
}

// Analyzer runs the two-pass classification over a flat list of top-level
// expressions (the ModuleManager's output).
type Analyzer struct {
	an *Analysis
}

// New creates an Analyzer with empty tables.
func New() *Analyzer {
	return &Analyzer{an: newAnalysis()}
}

// Run classifies every identifier occurrence in exprs and returns the
// completed Analysis. Pass one walks accumulating usage/capture candidates;
// pass two (populate_captures) finalizes HeapAllocated promotions for
// variables that are both captured and set!.
func (a *Analyzer) Run(exprs []ast.Expr) (*Analysis, error) {
	top := newScope(nil, 0)
	for _, e := range exprs {
		predeclareTopLevel(top, e)
	}
	for _, e := range exprs {
		if err := a.walk(e, top, true); err != nil {
			return nil, err
		}
	}
	a.populateCaptures()
	return a.an, nil
}

// predeclareTopLevel registers top-level Define names before the first pass
// walks bodies, so forward references within a file resolve (spec section
// 5: "forward references within a file are permitted").
func predeclareTopLevel(top *scope, e ast.Expr) {
	if d, ok := e.(*ast.Define); ok {
		kind := KindGlobal
		if _, isLambda := d.Value.(*ast.LambdaFunction); isLambda {
			kind = KindLocallyDefinedFunction
		}
		top.define(d.Name.Syn.Raw, d.Name.Syn.Id, kind, true)
	}
}

func (a *Analyzer) walk(e ast.Expr, sc *scope, tail bool) error {
	switch n := e.(type) {
	case *ast.Atom:
		return a.walkAtom(n, sc)
	case *ast.If:
		if err := a.walk(n.Test, sc, false); err != nil {
			return err
		}
		if err := a.walk(n.Then, sc, tail); err != nil {
			return err
		}
		if n.Else != nil {
			return a.walk(n.Else, sc, tail)
		}
		return nil
	case *ast.Define:
		if lam, ok := n.Value.(*ast.LambdaFunction); ok {
			// A named define's binding id (registered by predeclareTopLevel
			// under n.Name.Syn.Id) is distinct from the lambda node's own
			// Syn.Id; self-tail-call detection in walkCall compares a call
			// site's callee binding against the enclosing scope's funcID,
			// so the scope must be keyed on the binding id, not the lambda
			// node's id, or a recursive call to f from inside (define (f
			// ...) ...) can never match.
			return a.walkNamedLambda(lam, sc, n.Name.Syn.Id)
		}
		return a.walk(n.Value, sc, false)
	case *ast.Set:
		if b, _ := sc.lookup(n.Name.Syn.Raw); b != nil {
			if info := a.infoFor(b.id); info != nil {
				info.SetBang = true
			}
		}
		return a.walk(n.Value, sc, false)
	case *ast.LambdaFunction:
		return a.walkNamedLambda(n, sc, n.Syn.Id)
	case *ast.Begin:
		for i, b := range n.Body {
			if err := a.walk(b, sc, tail && i == len(n.Body)-1); err != nil {
				return err
			}
		}
		return nil
	case *ast.Let:
		return a.walkLet(n, sc, tail)
	case *ast.Quote:
		return nil
	case *ast.Return:
		return a.walk(n.Value, sc, tail)
	case *ast.List:
		return a.walkCall(n, sc, tail)
	default:
		return schemeerr.WrapReport(schemeerr.New(schemeerr.SEM002,
			fmt.Sprintf("analysis: unsupported node %T", e), spanOf(e)))
	}
}

func spanOf(e ast.Expr) *ast.Span {
	if e == nil || e.SyntaxObj() == nil {
		return nil
	}
	s := e.SyntaxObj().Span
	return &s
}

func (a *Analyzer) infoFor(id ast.SyntaxObjectId) *SemanticInformation {
	return a.an.Info[id]
}

func (a *Analyzer) walkAtom(n *ast.Atom, sc *scope) error {
	if !n.IsIdentifier() {
		return nil
	}
	b, bscope := sc.lookup(n.Syn.Raw)
	info := &SemanticInformation{}
	if b == nil {
		info.Kind = KindFree
		a.an.Info[n.Syn.Id] = info
		return nil
	}
	info.RefersTo = b.id
	defInfo, ok := a.an.Info[b.id]
	if !ok {
		defInfo = &SemanticInformation{Kind: b.kind}
		a.an.Info[b.id] = defInfo
	}
	defInfo.UsageCount++

	if b.global {
		info.Kind = b.kind
	} else if bscope.funcID != sc.funcID {
		// Reference crosses into an enclosing function: a capture.
		defInfo.Kind = KindCaptured
		info.Kind = KindCaptured
		info.CapturedFromEnclosing = true
		fi := a.functionInfoFor(sc.funcID)
		fi.CapturedVars = appendUnique(fi.CapturedVars, b.id)
	} else {
		info.Kind = b.kind
	}
	a.an.Info[n.Syn.Id] = info
	return nil
}

func appendUnique(ids []ast.SyntaxObjectId, id ast.SyntaxObjectId) []ast.SyntaxObjectId {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

func (a *Analyzer) functionInfoFor(id ast.SyntaxObjectId) *FunctionInfo {
	fi, ok := a.an.FunctionInfo[id]
	if !ok {
		fi = &FunctionInfo{captureSet: bitset.New(64)}
		a.an.FunctionInfo[id] = fi
	}
	return fi
}

// walkNamedLambda analyzes a lambda body in a fresh scope keyed on funcID.
// For a bare lambda literal, callers pass the lambda's own Syn.Id. For a
// lambda that's the value of a named define, callers pass the define's
// name-atom Syn.Id instead: that's the id a reference to the name resolves
// to via scope.lookup, so a recursive call inside the body can only be
// recognized as a self tail call if the scope is keyed on that same id.
func (a *Analyzer) walkNamedLambda(n *ast.LambdaFunction, sc *scope, funcID ast.SyntaxObjectId) error {
	inner := newScope(sc, funcID)
	inner.depth = sc.depth + 1
	fi := a.functionInfoFor(funcID)

	for _, p := range n.Params {
		inner.define(p.Name.Syn.Raw, p.Name.Syn.Id, KindLocal, false)
		a.an.Info[p.Name.Syn.Id] = &SemanticInformation{Kind: KindLocal, Depth: inner.depth}
		fi.Arguments = append(fi.Arguments, p.Name.Syn.Id)
	}
	if n.Rest != nil {
		inner.define(n.Rest.Name.Syn.Raw, n.Rest.Name.Syn.Id, KindLocal, false)
		a.an.Info[n.Rest.Name.Syn.Id] = &SemanticInformation{Kind: KindLocal, Depth: inner.depth}
		fi.Arguments = append(fi.Arguments, n.Rest.Name.Syn.Id)
	}
	fi.Depth = inner.depth

	for i, b := range n.Body {
		if err := a.walk(b, inner, i == len(n.Body)-1); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) walkLet(n *ast.Let, sc *scope, tail bool) error {
	inner := newScope(sc, sc.funcID)
	li := &LetInfo{EnclosingFunction: sc.funcID}
	for _, b := range n.Bindings {
		if err := a.walk(b.Init, sc, false); err != nil {
			return err
		}
		inner.define(b.Name.Syn.Raw, b.Name.Syn.Id, KindLetVar, false)
		a.an.Info[b.Name.Syn.Id] = &SemanticInformation{Kind: KindLetVar, Depth: inner.depth}
		li.Arguments = append(li.Arguments, b.Name.Syn.Id)
	}
	a.an.LetInfo[n.Syn.Id] = li
	for i, e := range n.Body {
		if err := a.walk(e, inner, tail && i == len(n.Body)-1); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) walkCall(n *ast.List, sc *scope, tail bool) error {
	if len(n.Elements) == 0 {
		return nil
	}
	callee := n.Elements[0]
	ci := &CallInfo{Kind: CallNormal}
	if tail {
		ci.Kind = CallTail
		if calleeAtom, ok := callee.(*ast.Atom); ok && calleeAtom.IsIdentifier() {
			if b, _ := sc.lookup(calleeAtom.Syn.Raw); b != nil && b.id == sc.funcID {
				ci.Kind = CallSelfTail
				ci.Depth = sc.depth
			}
		}
	}
	a.an.CallInfo[n.Syn.Id] = ci

	for i, e := range n.Elements {
		// Arguments (positions other than the call head) are non-tail and
		// count as an escape position for any lambda literal passed there.
		if err := a.walk(e, sc, false); err != nil {
			return err
		}
		if i > 0 {
			if lam, ok := e.(*ast.LambdaFunction); ok {
				a.functionInfoFor(lam.Syn.Id).Escapes = true
			}
		}
	}
	return nil
}

// populateCaptures is pass two: upgrade Captured-and-set! bindings to
// HeapAllocated and assign heap/capture offsets (spec section 4.C's state
// machine, invariant P3).
func (a *Analyzer) populateCaptures() {
	heapOffset := 0
	captureIdx := 0
	for _, info := range a.an.Info {
		if info.Kind == KindCaptured && info.SetBang {
			info.Kind = KindHeapAllocated
			info.HeapOffset = heapOffset
			heapOffset++
		} else if info.Kind == KindCaptured {
			info.CaptureIndex = captureIdx
			captureIdx++
		}
	}
}
