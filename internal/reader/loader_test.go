package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/sources"
)

func TestFileLoaderReadsAndRegistersSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.scm")
	require.NoError(t, os.WriteFile(path, []byte(`(define (id x) x)`), 0o644))

	srcs := sources.New()
	loader := NewFileLoader(srcs)

	f, err := loader.Load(path)
	require.NoError(t, err)
	require.Len(t, f.Exprs, 1)
	_, ok := f.Exprs[0].(*ast.Define)
	assert.True(t, ok)
	assert.Equal(t, 1, srcs.Len())
}

func TestFileLoaderReportsMissingFile(t *testing.T) {
	srcs := sources.New()
	loader := NewFileLoader(srcs)
	_, err := loader.Load(filepath.Join(t.TempDir(), "nope.scm"))
	assert.Error(t, err)
}
