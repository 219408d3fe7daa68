// Package module implements the ModuleManager (spec section 4.A): resolves
// the `require` graph, macro-expands each module with its own macro
// environment, mangles exported bindings so cross-module references are
// globally unique without textual renaming of user code, and splices the
// result into a single flat AST. Directly adapted from the teacher's
// internal/module loader.go + resolver.go cache-and-memoize idiom.
package module

import (
	"fmt"

	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/builtinreg"
	schemeerr "github.com/schemecore/schemecore/internal/errors"
	"github.com/schemecore/schemecore/internal/expand"
	"github.com/schemecore/schemecore/internal/sources"
)

// Loader resolves a module path to its parsed top-level expressions. The
// parser that implements it is an external collaborator this package does
// not own (spec section 1's explicit non-goal).
type Loader interface {
	Load(path string) (*ast.File, error)
}

// compiledModule is the memoized result of compiling one module: its
// mangled top-level definitions and the export table importers rewrite
// their references through.
type compiledModule struct {
	mangledExprs []ast.Expr
	// exports maps an exported name, as written in the module's source, to
	// its globally-mangled name.
	exports map[string]string
}

// Manager is the ModuleManager instance. A single Manager must be used for
// one compile_main call; it is not meant to outlive a build.
type Manager struct {
	loader     Loader
	srcs       *sources.Sources
	builtins   *builtinreg.Registry
	cache      map[string]*compiledModule
	inProgress map[string]bool
}

// New creates a Manager.
func New(loader Loader, srcs *sources.Sources, builtins *builtinreg.Registry) *Manager {
	return &Manager{
		loader:     loader,
		srcs:       srcs,
		builtins:   builtins,
		cache:      make(map[string]*compiledModule),
		inProgress: make(map[string]bool),
	}
}

// mangle implements the `mangler<P>__%#__x` naming scheme spec section 4.A
// requires: an exported binding x in the module at path P is globally
// renamed to this form at both its definition and every import site.
func mangle(path, name string) string {
	return fmt.Sprintf("mangler<%s>__%%#__%s", path, name)
}

// CompileMain resolves every `require` reachable from exprs (the already-
// parsed top level of the entry file at path), macro-expanding and
// mangling each required module exactly once, and returns the single flat,
// expanded AST ready for semantic analysis.
func (m *Manager) CompileMain(exprs []ast.Expr, path string) ([]ast.Expr, error) {
	env := expand.NewEnv()
	var preamble []ast.Expr
	spliced := make(map[ast.Expr]bool)

	for _, e := range exprs {
		req, ok := e.(*ast.Require)
		if !ok {
			continue
		}
		cm, err := m.compileModule(req.Path, []string{path})
		if err != nil {
			return nil, err
		}
		for _, me := range cm.mangledExprs {
			if !spliced[me] {
				spliced[me] = true
				preamble = append(preamble, me)
			}
		}
		if err := m.rewriteImports(exprs, req, cm); err != nil {
			return nil, err
		}
	}

	mainExpanded, err := expandAll(exprs, env)
	if err != nil {
		return nil, err
	}
	return append(preamble, mainExpanded...), nil
}

// compileModule loads, macro-expands, and mangles the module at path,
// memoizing the result so a module required from multiple places is only
// processed once (spec section 4.A: "compiles each module once, caches the
// result keyed by canonical path").
func (m *Manager) compileModule(path string, trail []string) (*compiledModule, error) {
	if cm, ok := m.cache[path]; ok {
		return cm, nil
	}
	if m.inProgress[path] {
		return nil, schemeerr.WrapReport(withTrace(schemeerr.New(schemeerr.MOD001,
			fmt.Sprintf("circular require dependency on %q", path), nil), append(trail, path)))
	}
	m.inProgress[path] = true
	defer delete(m.inProgress, path)

	file, err := m.loader.Load(path)
	if err != nil {
		return nil, schemeerr.WrapReport(withTrace(schemeerr.New(schemeerr.MOD005,
			fmt.Sprintf("failed to read module %q: %v", path, err), nil), trail))
	}

	env := expand.NewEnv()
	var preamble []ast.Expr
	exports := make(map[string]string)

	for _, e := range file.Exprs {
		if req, ok := e.(*ast.Require); ok {
			inner, err := m.compileModule(req.Path, append(trail, path))
			if err != nil {
				return nil, err
			}
			preamble = append(preamble, inner.mangledExprs...)
			if err := m.rewriteImports(file.Exprs, req, inner); err != nil {
				return nil, err
			}
		}
	}

	expanded, err := expandAll(file.Exprs, env)
	if err != nil {
		return nil, err
	}

	mangled := make([]ast.Expr, 0, len(expanded))
	for _, e := range expanded {
		if _, isReq := e.(*ast.Require); isReq {
			continue
		}
		if d, ok := e.(*ast.Define); ok {
			original := d.Name.Syn.Raw
			mangledName := mangle(path, original)
			d.Name.Syn.Raw = mangledName
			exports[original] = mangledName
		}
		mangled = append(mangled, e)
	}

	cm := &compiledModule{mangledExprs: append(preamble, mangled...), exports: exports}
	m.cache[path] = cm
	return cm, nil
}

// rewriteImports rewrites every reference to a name imported through req,
// within exprs, to the exporting module's mangled name, reporting MOD004
// if a selectively-imported symbol was never exported.
func (m *Manager) rewriteImports(exprs []ast.Expr, req *ast.Require, cm *compiledModule) error {
	wanted := req.Symbols
	if len(wanted) > 0 {
		for _, sym := range wanted {
			if _, ok := cm.exports[sym]; !ok {
				return schemeerr.WrapReport(schemeerr.New(schemeerr.MOD004,
					fmt.Sprintf("module %q does not export %q", req.Path, sym), spanOf(req)))
			}
		}
	}
	rename := make(map[string]string)
	for orig, mangled := range cm.exports {
		if len(wanted) == 0 || contains(wanted, orig) {
			rename[orig] = mangled
		}
	}
	for _, e := range exprs {
		renameReferences(e, rename)
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

func renameReferences(e ast.Expr, rename map[string]string) {
	switch n := e.(type) {
	case *ast.Atom:
		if n.IsIdentifier() {
			if to, ok := rename[n.Syn.Raw]; ok {
				n.Syn.Raw = to
			}
		}
	case *ast.List:
		for _, el := range n.Elements {
			renameReferences(el, rename)
		}
	case *ast.If:
		renameReferences(n.Test, rename)
		renameReferences(n.Then, rename)
		if n.Else != nil {
			renameReferences(n.Else, rename)
		}
	case *ast.Define:
		renameReferences(n.Value, rename)
	case *ast.Set:
		renameReferences(n.Value, rename)
	case *ast.LambdaFunction:
		for _, b := range n.Body {
			renameReferences(b, rename)
		}
	case *ast.Begin:
		for _, b := range n.Body {
			renameReferences(b, rename)
		}
	case *ast.Let:
		for i := range n.Bindings {
			renameReferences(n.Bindings[i].Init, rename)
		}
		for _, b := range n.Body {
			renameReferences(b, rename)
		}
	}
}

func expandAll(exprs []ast.Expr, env *expand.Env) ([]ast.Expr, error) {
	out := make([]ast.Expr, 0, len(exprs))
	for _, e := range exprs {
		if _, ok := e.(*ast.Require); ok {
			continue
		}
		expanded, err := expand.Expand(e, env)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

func spanOf(e ast.Expr) *ast.Span {
	if e == nil || e.SyntaxObj() == nil {
		return nil
	}
	s := e.SyntaxObj().Span
	return &s
}

func withTrace(r *schemeerr.Report, trail []string) *schemeerr.Report {
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	r.Data["trace"] = trail
	return r
}
