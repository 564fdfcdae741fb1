// Package manifest handles oir.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents an oir.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Source  Source       `toml:"source"`
	Engine  EngineConfig `toml:"engine"`
	Image   ImageConfig  `toml:"image"`

	// Dir is the directory containing the oir.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"` // qualified entry method, e.g. Main.Run
}

// EngineConfig configures execution limits and policies.
type EngineConfig struct {
	MaxCallDepth int    `toml:"max-call-depth"`
	DividePolicy string `toml:"divide-policy"` // "fault" (default) or "throw"
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output string `toml:"output"`
	Store  string `toml:"store"` // content store database path
}

// Load parses an oir.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "oir.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Engine.DividePolicy == "" {
		m.Engine.DividePolicy = "fault"
	}
	if m.Engine.DividePolicy != "fault" && m.Engine.DividePolicy != "throw" {
		return nil, fmt.Errorf("%s: divide-policy must be \"fault\" or \"throw\", got %q", path, m.Engine.DividePolicy)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an oir.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "oir.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source
// directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// SourceFiles lists every .oir file under the configured source
// directories, sorted within each directory.
func (m *Manifest) SourceFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SourceDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".oir" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	return files, nil
}
