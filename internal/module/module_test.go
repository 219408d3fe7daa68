package module

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/builtinreg"
	schemeerr "github.com/schemecore/schemecore/internal/errors"
	"github.com/schemecore/schemecore/internal/sources"
)

type fakeLoader struct {
	files map[string]*ast.File
}

func (f *fakeLoader) Load(path string) (*ast.File, error) {
	file, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such module: %s", path)
	}
	return file, nil
}

func syn() *ast.SyntaxObject { return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId()} }

func ident(name string) *ast.Atom {
	return &ast.Atom{Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokIdentifier, Raw: name}}
}

func intLit(v int64) *ast.Atom {
	return &ast.Atom{Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokInt, IntVal: v}}
}

func TestCompileMainMangleExportsAndRewritesReferences(t *testing.T) {
	libFile := &ast.File{
		Path: "lib.scm",
		Exprs: []ast.Expr{
			&ast.Define{Name: ident("helper"), Value: intLit(42), Syn: syn()},
		},
	}
	loader := &fakeLoader{files: map[string]*ast.File{"lib.scm": libFile}}

	mgr := New(loader, sources.New(), builtinreg.NewRegistry())

	mainExprs := []ast.Expr{
		&ast.Require{Path: "lib.scm", Syn: syn()},
		&ast.Define{Name: ident("useHelper"), Value: ident("helper"), Syn: syn()},
	}

	out, err := mgr.CompileMain(mainExprs, "main.scm")
	require.NoError(t, err)

	// First expr should be the mangled lib define.
	libDef := out[0].(*ast.Define)
	assert.Contains(t, libDef.Name.Syn.Raw, "mangler<lib.scm>__%#__helper")

	// The reference to `helper` in main must have been rewritten to match.
	mainDef := out[1].(*ast.Define)
	ref := mainDef.Value.(*ast.Atom)
	assert.Equal(t, libDef.Name.Syn.Raw, ref.Syn.Raw)
}

func TestCompileMainDetectsRequireCycle(t *testing.T) {
	aFile := &ast.File{Path: "a.scm", Exprs: []ast.Expr{&ast.Require{Path: "b.scm", Syn: syn()}}}
	bFile := &ast.File{Path: "b.scm", Exprs: []ast.Expr{&ast.Require{Path: "a.scm", Syn: syn()}}}
	loader := &fakeLoader{files: map[string]*ast.File{"a.scm": aFile, "b.scm": bFile}}

	mgr := New(loader, sources.New(), builtinreg.NewRegistry())
	_, err := mgr.CompileMain([]ast.Expr{&ast.Require{Path: "a.scm", Syn: syn()}}, "main.scm")
	require.Error(t, err)

	rep, ok := schemeerr.AsReport(err)
	require.True(t, ok)
	assert.Equal(t, schemeerr.MOD001, rep.Code)
}

func TestCompileMainReportsMissingModule(t *testing.T) {
	loader := &fakeLoader{files: map[string]*ast.File{}}
	mgr := New(loader, sources.New(), builtinreg.NewRegistry())

	_, err := mgr.CompileMain([]ast.Expr{&ast.Require{Path: "missing.scm", Syn: syn()}}, "main.scm")
	require.Error(t, err)
	rep, ok := schemeerr.AsReport(err)
	require.True(t, ok)
	assert.Equal(t, schemeerr.MOD005, rep.Code)
}

func TestCompileMainReportsUnexportedSymbol(t *testing.T) {
	libFile := &ast.File{
		Path:  "lib.scm",
		Exprs: []ast.Expr{&ast.Define{Name: ident("real"), Value: intLit(1), Syn: syn()}},
	}
	loader := &fakeLoader{files: map[string]*ast.File{"lib.scm": libFile}}
	mgr := New(loader, sources.New(), builtinreg.NewRegistry())

	mainExprs := []ast.Expr{
		&ast.Require{Path: "lib.scm", Symbols: []string{"nonexistent"}, Syn: syn()},
	}
	_, err := mgr.CompileMain(mainExprs, "main.scm")
	require.Error(t, err)
	rep, ok := schemeerr.AsReport(err)
	require.True(t, ok)
	assert.Equal(t, schemeerr.MOD004, rep.Code)
}

func TestCompileModuleIsMemoized(t *testing.T) {
	libFile := &ast.File{
		Path:  "lib.scm",
		Exprs: []ast.Expr{&ast.Define{Name: ident("x"), Value: intLit(1), Syn: syn()}},
	}
	loader := &fakeLoader{files: map[string]*ast.File{"lib.scm": libFile}}
	mgr := New(loader, sources.New(), builtinreg.NewRegistry())

	mainExprs := []ast.Expr{
		&ast.Require{Path: "lib.scm", Syn: syn()},
		&ast.Require{Path: "lib.scm", Syn: syn()},
	}
	out, err := mgr.CompileMain(mainExprs, "main.scm")
	require.NoError(t, err)

	count := 0
	for _, e := range out {
		if _, ok := e.(*ast.Define); ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "lib.scm must be compiled exactly once despite two requires")
}
