package install

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/conciliate-app/wrapkit/internal/manifest"
	"github.com/spf13/afero"
)

// DefaultWorkspace is the package glob used when none is configured.
var DefaultWorkspace = []string{"packages/*"}

// LoadWorkspaceGraph reads the root package.json and the package.json of
// every directory matching the workspace globs under root.
func LoadWorkspaceGraph(fs afero.Fs, root string, workspace []string) (Graph, error) {
	if len(workspace) == 0 {
		workspace = DefaultWorkspace
	}
	paths := []string{filepath.Join(root, "package.json")}
	for _, pattern := range workspace {
		matches, err := afero.Glob(fs, filepath.Join(root, pattern, "package.json"))
		if err != nil {
			return Graph{}, fmt.Errorf("workspace pattern %q: %w", pattern, err)
		}
		slices.Sort(matches)
		paths = append(paths, matches...)
	}

	var g Graph
	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		m, err := manifest.Load(fs, p)
		if err != nil {
			return Graph{}, err
		}
		g.Nodes = append(g.Nodes, nodeFromManifest(m))
	}
	return g, nil
}

func nodeFromManifest(m *manifest.Manifest) Node {
	n := Node{Name: m.Name(), Path: m.Path}
	if n.Name == "" {
		n.Name = filepath.Base(filepath.Dir(m.Path))
	}
	deps := m.Section(manifest.Dependencies)
	if deps == nil {
		return n
	}
	for _, name := range deps.Keys() {
		spec, _ := deps.GetString(name)
		n.Dependencies = append(n.Dependencies, Dependency{Name: name, Spec: spec})
	}
	return n
}

// ApplyInjection marks every dependency of m as injected in its
// dependenciesMeta section. It reports whether the manifest changed.
func ApplyInjection(m *manifest.Manifest) bool {
	deps := m.Section(manifest.Dependencies)
	if deps == nil || deps.Len() == 0 {
		return false
	}
	changed := false
	meta := m.Root.GetObject(manifest.DependenciesMeta)
	if meta == nil {
		meta = m.Root.EnsureObject(manifest.DependenciesMeta)
		changed = true
	}
	for _, dep := range deps.Keys() {
		if !meta.Has(dep) {
			changed = true
		}
		entry := meta.EnsureObject(dep)
		if v, ok := entry.Get("injected"); !ok || v != true {
			entry.Set("injected", true)
			changed = true
		}
	}
	return changed
}

// ApplyPlan writes the injection metadata into the manifest of every
// isolated package in g and returns the paths it changed.
func ApplyPlan(fs afero.Fs, g Graph, p Policy) ([]string, error) {
	var changed []string
	for _, n := range g.Nodes {
		if !p.Isolates(n.Name) {
			continue
		}
		m, err := manifest.Load(fs, n.Path)
		if err != nil {
			return changed, err
		}
		if !ApplyInjection(m) {
			continue
		}
		if err := m.Save(fs); err != nil {
			return changed, err
		}
		changed = append(changed, n.Path)
	}
	return changed, nil
}
