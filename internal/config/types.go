// Package config loads and validates the wrapkit project configuration.
//
// Values are layered, lowest to highest precedence: built-in defaults, the
// wrapkit.yaml file, WRAPKIT_ environment variables, then command-line flags.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/target"
)

// Config is the resolved project configuration.
type Config struct {
	// ProjectRoot is the absolute directory all relative paths resolve from.
	ProjectRoot string `koanf:"-"`
	// File is the config file that was loaded, if any.
	File string `koanf:"-"`

	MapsDir   string      `koanf:"maps_dir"`
	Manifest  string      `koanf:"manifest"`
	Workspace []string    `koanf:"workspace"`
	Isolation []string    `koanf:"isolation"`
	Hook      string      `koanf:"hook"`
	Parallel  int         `koanf:"parallel"`
	Verbose   bool        `koanf:"verbose"`
	LogFormat string      `koanf:"log_format"`
	Wrappers  []Wrapper   `koanf:"wrappers"`
	Patches   []PatchRule `koanf:"patches"`
}

// Wrapper describes one wrapper package and how to build it.
type Wrapper struct {
	Name string `koanf:"name"`
	// Dir is the package directory. Relative values resolve against the
	// project root; after loading it is absolute.
	Dir string `koanf:"dir"`
	// Entry is the source entry point relative to Dir.
	Entry string `koanf:"entry"`
	// OutDir holds the artifacts, relative to Dir.
	OutDir string `koanf:"out_dir"`
	// CompileCommand replaces the built-in transpile step when set. It runs
	// through the shell in Dir.
	CompileCommand string     `koanf:"compile_command"`
	Targets        []string   `koanf:"targets"`
	Externals      Externals  `koanf:"externals"`
	Native         []string   `koanf:"native"`
	Shims          []Shim     `koanf:"shims"`
	Patches        []string   `koanf:"patches"`
	Sourcemap      bool       `koanf:"sourcemap"`
	Minify         bool       `koanf:"minify"`
	Wasm           *Wasm      `koanf:"wasm"`
	Define         []KeyValue `koanf:"define"`
}

// Externals are the per-target allowlists of packages left as runtime
// imports.
type Externals struct {
	Server  []string `koanf:"server"`
	Browser []string `koanf:"browser"`
}

// Shim replaces a module in the browser artifact. Source is inline
// JavaScript; File is read relative to the wrapper directory.
type Shim struct {
	Name   string `koanf:"name"`
	Source string `koanf:"source"`
	File   string `koanf:"file"`
}

// Wasm configures the embedded WebAssembly loader of a wrapper.
type Wasm struct {
	Binary  string   `koanf:"binary"`
	Loader  string   `koanf:"loader"`
	Exports []string `koanf:"exports"`
}

// KeyValue is a single build-time substitution.
type KeyValue struct {
	Key   string `koanf:"key"`
	Value string `koanf:"value"`
}

// PatchRule is a project-defined post-bundle rewrite.
type PatchRule struct {
	Name           string   `koanf:"name"`
	Pattern        string   `koanf:"pattern"`
	Replacement    string   `koanf:"replacement"`
	Literal        bool     `koanf:"literal"`
	ChangeRequired bool     `koanf:"change_required"`
	Targets        []string `koanf:"targets"`
}

// Wrapper returns the wrapper named name.
func (c *Config) Wrapper(name string) (Wrapper, bool) {
	for _, w := range c.Wrappers {
		if w.Name == name {
			return w, true
		}
	}
	return Wrapper{}, false
}

// Select returns the named wrappers in the order given, or every wrapper
// when names is empty.
func (c *Config) Select(names []string) ([]Wrapper, error) {
	if len(c.Wrappers) == 0 {
		return nil, Errorf("wrappers", "no wrapper packages configured")
	}
	if len(names) == 0 {
		return c.Wrappers, nil
	}
	out := make([]Wrapper, 0, len(names))
	for _, n := range names {
		w, ok := c.Wrapper(n)
		if !ok {
			return nil, Errorf("wrappers", "unknown wrapper %q (configured: %s)", n, strings.Join(c.WrapperNames(), ", "))
		}
		out = append(out, w)
	}
	return out, nil
}

// WrapperNames lists the configured wrapper names.
func (c *Config) WrapperNames() []string {
	names := make([]string, len(c.Wrappers))
	for i, w := range c.Wrappers {
		names[i] = w.Name
	}
	return names
}

// Path resolves a project-relative path.
func (c *Config) Path(rel string) string {
	return resolvePathRelativeTo(rel, c.ProjectRoot)
}

// Rel returns path relative to the project root for display, or path
// unchanged when it lies elsewhere.
func (c *Config) Rel(path string) string {
	rel, err := filepath.Rel(c.ProjectRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// Path resolves a path relative to the wrapper directory.
func (w Wrapper) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir}, elem...)...)
}

// EntryPath is the absolute source entry point.
func (w Wrapper) EntryPath() string { return w.Path(w.Entry) }

// SrcDir is the directory holding the entry point.
func (w Wrapper) SrcDir() string { return filepath.Dir(w.EntryPath()) }

// CompiledDir holds the transpiled sources.
func (w Wrapper) CompiledDir() string { return w.Path(w.OutDir, "tsc") }

// CompiledEntry is the transpiled entry point both bundles start from.
func (w Wrapper) CompiledEntry() string {
	rel, err := filepath.Rel(w.SrcDir(), w.EntryPath())
	if err != nil {
		rel = filepath.Base(w.Entry)
	}
	return filepath.Join(w.CompiledDir(), strings.TrimSuffix(rel, filepath.Ext(rel))+".js")
}

// ArtifactPath is the output file for t.
func (w Wrapper) ArtifactPath(t target.Target) string {
	return w.Path(w.OutDir, t.OutputName())
}

// BuildTargets returns the parsed target list in build order.
func (w Wrapper) BuildTargets() ([]target.Target, error) {
	return target.ParseAll(w.Targets)
}

// Builds reports whether the wrapper is built for t.
func (w Wrapper) Builds(t target.Target) bool {
	targets, err := w.BuildTargets()
	if err != nil {
		return false
	}
	for _, bt := range targets {
		if bt == t {
			return true
		}
	}
	return false
}

// Allowlist returns the external allowlist for t.
func (w Wrapper) Allowlist(t target.Target) []string {
	if t == target.Browser {
		return w.Externals.Browser
	}
	return w.Externals.Server
}

// DefineMap returns the build-time substitutions as a map.
func (w Wrapper) DefineMap() map[string]string {
	m := make(map[string]string, len(w.Define))
	for _, kv := range w.Define {
		m[kv.Key] = kv.Value
	}
	return m
}

func (w Wrapper) String() string { return fmt.Sprintf("%s (%s)", w.Name, w.Dir) }
