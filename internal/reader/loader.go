package reader

import (
	"os"

	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/sources"
)

// FileLoader implements module.Loader by reading required modules off disk,
// registering each file's text in srcs for later span-to-text rendering.
type FileLoader struct {
	srcs *sources.Sources
}

// NewFileLoader creates a FileLoader that records every loaded file's text
// in srcs.
func NewFileLoader(srcs *sources.Sources) *FileLoader {
	return &FileLoader{srcs: srcs}
}

// Load reads and parses the module at path.
func (fl *FileLoader) Load(path string) (*ast.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(data)
	id := fl.srcs.AddSource(text, path)
	return New(int(id)).ReadFile(text, path)
}
