// Package manifest reads and writes package.json files without disturbing
// key order or formatting conventions.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/conciliate-app/wrapkit/internal/fsutil"
	"github.com/spf13/afero"
)

// Dependency sections of a manifest that hold name → reference maps.
const (
	Dependencies     = "dependencies"
	DevDependencies  = "devDependencies"
	PeerDependencies = "peerDependencies"
	Overrides        = "overrides"
	OverridesEmpty   = "overridesEmpty"
	Pnpm             = "pnpm"
	DependenciesMeta = "dependenciesMeta"
)

// Manifest is a package.json file loaded from disk.
type Manifest struct {
	Path string
	Root *Object
}

// Load reads and parses the manifest at path.
func Load(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(path, data)
}

// Parse parses manifest content read from path.
func Parse(path string, data []byte) (*Manifest, error) {
	root := NewObject()
	if err := root.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &Manifest{Path: path, Root: root}, nil
}

// Name returns the package name, or "" if absent.
func (m *Manifest) Name() string {
	name, _ := m.Root.GetString("name")
	return name
}

// Section returns a top-level object section such as "dependencies", or nil.
func (m *Manifest) Section(name string) *Object {
	return m.Root.GetObject(name)
}

// Encode renders the manifest with a 2-space indent and a trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	return Encode(m.Root)
}

// Save writes the manifest back to its path atomically.
func (m *Manifest) Save(fs afero.Fs) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(fs, m.Path, data, 0o644)
}

// Encode renders an object the way npm and pnpm write package.json.
func Encode(o *Object) ([]byte, error) {
	compact, err := o.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
