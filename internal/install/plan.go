// Package install computes which dependency edges of the workspace must be
// installed as physically isolated copies instead of hoisted shared ones.
package install

import (
	"cmp"
	"slices"
	"strings"

	"github.com/coreos/go-semver/semver"
)

// Mode is how an installer places a dependency.
type Mode string

const (
	// Hoisted dependencies share one copy at the tree root.
	Hoisted Mode = "hoisted"
	// Injected dependencies get a private physical copy.
	Injected Mode = "injected"
)

// Dependency is a declared direct dependency.
type Dependency struct {
	Name string
	Spec string
}

// Node is one package in the workspace graph.
type Node struct {
	Name         string
	Path         string
	Dependencies []Dependency
}

// Graph is the set of workspace packages and their direct dependencies.
type Graph struct {
	Nodes []Node
}

// Lookup returns the node named name.
func (g Graph) Lookup(name string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Policy names the packages whose dependencies must be isolated.
type Policy struct {
	Isolate []string
}

// Isolates reports whether name is in the isolation set.
func (p Policy) Isolates(name string) bool {
	return slices.Contains(p.Isolate, name)
}

// Edge is a dependency edge with its placement.
type Edge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Spec string `yaml:"spec"`
	Mode Mode   `yaml:"mode"`
}

// Requirement is one wrapper's version requirement on a shared package.
type Requirement struct {
	Wrapper string `yaml:"wrapper"`
	Spec    string `yaml:"spec"`
	Major   int64  `yaml:"major"`
}

// Conflict is a package that isolated wrappers need at different major
// versions. Hoisting would collapse it to one version.
type Conflict struct {
	Package      string        `yaml:"package"`
	Requirements []Requirement `yaml:"requirements"`
}

// Plan is the placement decision for every edge of a graph.
type Plan struct {
	Edges     []Edge     `yaml:"edges"`
	Unmatched []string   `yaml:"unmatched,omitempty"`
	Conflicts []Conflict `yaml:"conflicts,omitempty"`
}

// Injected returns the injected edges.
func (p Plan) Injected() []Edge {
	var out []Edge
	for _, e := range p.Edges {
		if e.Mode == Injected {
			out = append(out, e)
		}
	}
	return out
}

// ComputeInstallPlan marks every direct dependency edge of an isolated
// package as injected and every other edge as hoisted. Isolation names that
// match no package are reported in Unmatched; the plan is still produced.
func ComputeInstallPlan(g Graph, p Policy) Plan {
	var plan Plan
	for _, n := range g.Nodes {
		mode := Hoisted
		if p.Isolates(n.Name) {
			mode = Injected
		}
		for _, d := range n.Dependencies {
			plan.Edges = append(plan.Edges, Edge{From: n.Name, To: d.Name, Spec: d.Spec, Mode: mode})
		}
	}
	slices.SortFunc(plan.Edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})

	for _, name := range p.Isolate {
		if _, ok := g.Lookup(name); !ok {
			plan.Unmatched = append(plan.Unmatched, name)
		}
	}
	slices.Sort(plan.Unmatched)
	plan.Unmatched = slices.Compact(plan.Unmatched)

	plan.Conflicts = findConflicts(plan.Edges)
	return plan
}

func findConflicts(edges []Edge) []Conflict {
	byPackage := make(map[string][]Requirement)
	for _, e := range edges {
		if e.Mode != Injected {
			continue
		}
		major, ok := MajorVersion(e.Spec)
		if !ok {
			continue
		}
		byPackage[e.To] = append(byPackage[e.To], Requirement{Wrapper: e.From, Spec: e.Spec, Major: major})
	}

	var conflicts []Conflict
	for pkg, reqs := range byPackage {
		majors := make(map[int64]bool)
		for _, r := range reqs {
			majors[r.Major] = true
		}
		if len(majors) < 2 {
			continue
		}
		slices.SortFunc(reqs, func(a, b Requirement) int { return cmp.Compare(a.Wrapper, b.Wrapper) })
		conflicts = append(conflicts, Conflict{Package: pkg, Requirements: reqs})
	}
	slices.SortFunc(conflicts, func(a, b Conflict) int { return cmp.Compare(a.Package, b.Package) })
	return conflicts
}

// MajorVersion extracts the major version a range like "^1.2.0", "~2.1",
// ">=3" or "v4.0.0-beta.1" requires. Non-registry specs such as
// "workspace:*", "file:..." or wildcards report false.
func MajorVersion(spec string) (int64, bool) {
	s := strings.TrimSpace(spec)
	if s == "" || strings.Contains(s, ":") || strings.Contains(s, "/") {
		return 0, false
	}
	if i := strings.IndexAny(s, " |"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimLeft(s, "^~>=<v")
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0, false
	}

	core, suffix := s, ""
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		core, suffix = s[:i], s[i:]
	}
	parts := strings.Split(core, ".")
	for i, p := range parts {
		if p == "x" || p == "X" || p == "*" {
			parts[i] = "0"
		}
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	v, err := semver.NewVersion(strings.Join(parts[:3], ".") + suffix)
	if err != nil {
		return 0, false
	}
	return v.Major, true
}
