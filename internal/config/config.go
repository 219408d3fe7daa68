// Package config loads the optional project manifest (schemecore.yaml)
// that configures search paths, the standard-library path, the
// optimization level, and whether to emit a debug build. Mirrors the
// teacher's project-manifest conventions (internal/manifest) using
// gopkg.in/yaml.v3 for decoding.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the decoded shape of schemecore.yaml.
type Manifest struct {
	SearchPaths      []string `yaml:"search_paths"`
	StdlibPath       string   `yaml:"stdlib_path"`
	OptimizationLevel int     `yaml:"optimization_level"`
	DebugBuild       bool     `yaml:"debug_build"`
}

// Default returns a Manifest with the conservative defaults used when no
// schemecore.yaml is present: no extra search paths, no stdlib override,
// full optimization, release (non-debug) build.
func Default() *Manifest {
	return &Manifest{OptimizationLevel: 10}
}

// Load reads and decodes the manifest at path. A missing file is not an
// error; Load returns Default() instead, matching the teacher's tolerant
// manifest-loading behavior for an optional config file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	m := Default()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return m, nil
}
