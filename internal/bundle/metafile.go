package bundle

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Metafile represents the esbuild metafile JSON structure
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"`
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int              `json:"bytes"`
	Imports    []MetafileImport `json:"imports"`
	Exports    []string         `json:"exports"`
	EntryPoint string           `json:"entryPoint,omitempty"`
}

// ParseMetafile decodes esbuild's metafile output.
func ParseMetafile(data string) (*Metafile, error) {
	var m Metafile
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("parse metafile: %w", err)
	}
	return &m, nil
}

// ExternalImports returns the distinct external import paths kept by the
// outputs, sorted.
func (m *Metafile) ExternalImports() []string {
	var paths []string
	for _, out := range m.Outputs {
		for _, imp := range out.Imports {
			if imp.External {
				paths = append(paths, imp.Path)
			}
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths)
}

// InputCount returns the number of source files in the bundle.
func (m *Metafile) InputCount() int { return len(m.Inputs) }
