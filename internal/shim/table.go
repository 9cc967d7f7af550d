// Package shim holds the browser replacements for Node.js core modules and
// the globals banner prepended to every browser artifact.
package shim

import (
	"embed"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

//go:embed js/*.js
var sources embed.FS

// ModuleShim is a named replacement module. Source is an ES module that is
// inlined into the browser bundle wherever Name is imported.
type ModuleShim struct {
	Name   string
	Source string
}

// builtinFiles maps each shimmed module name to its embedded source file.
var builtinFiles = map[string]string{
	"assert":      "js/assert.js",
	"buffer":      "js/buffer.js",
	"crypto":      "js/crypto.js",
	"events":      "js/events.js",
	"fs":          "js/fs.js",
	"fs/promises": "js/fs_promises.js",
	"os":          "js/os.js",
	"path":        "js/path.js",
	"process":     "js/process.js",
	"stream":      "js/stream.js",
	"util":        "js/util.js",
}

// Table is an immutable set of module shims keyed by module name.
type Table struct {
	shims map[string]ModuleShim
}

// Default returns the built-in shim table.
func Default() (*Table, error) {
	shims := make(map[string]ModuleShim, len(builtinFiles))
	for name, file := range builtinFiles {
		src, err := sources.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read shim %s: %w", name, err)
		}
		shims[name] = ModuleShim{Name: name, Source: string(src)}
	}
	return &Table{shims: shims}, nil
}

// MustDefault is like Default but panics if an embedded shim is missing.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// With returns a copy of the table with extra shims added. Extra entries
// replace built-in ones of the same name.
func (t *Table) With(extra map[string]string) *Table {
	shims := maps.Clone(t.shims)
	for name, src := range extra {
		name = normalize(name)
		shims[name] = ModuleShim{Name: name, Source: src}
	}
	return &Table{shims: shims}
}

// Lookup returns the shim for an import path. A "node:" prefix is ignored.
func (t *Table) Lookup(importPath string) (ModuleShim, bool) {
	s, ok := t.shims[normalize(importPath)]
	return s, ok
}

// Has reports whether importPath has a shim.
func (t *Table) Has(importPath string) bool {
	_, ok := t.Lookup(importPath)
	return ok
}

// Names returns the shimmed module names in sorted order.
func (t *Table) Names() []string {
	return slices.Sorted(maps.Keys(t.shims))
}

// Filter returns an esbuild-compatible resolve filter matching every shimmed
// name, bare or "node:"-prefixed.
func (t *Table) Filter() string {
	names := t.Names()
	// Longer names first so "fs/promises" is not shadowed by "fs".
	slices.SortStableFunc(names, func(a, b string) int { return len(b) - len(a) })
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return `^(?:node:)?(?:` + strings.Join(quoted, "|") + `)$`
}

func normalize(importPath string) string {
	return strings.TrimPrefix(importPath, "node:")
}
