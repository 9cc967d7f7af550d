// Package target models the runtime environments a wrapper package is built
// for. The server and browser artifacts of a wrapper are produced from the
// same source but are not interchangeable: each target carries its own
// capability set and external allowlist rules.
package target

import (
	"fmt"
	"slices"
	"strings"
)

// Target is a build target.
type Target string

const (
	// Server produces a module for a Node.js runtime.
	Server Target = "server"
	// Browser produces a module for a browser or worker runtime.
	Browser Target = "browser"
)

// All lists every target in build order. Browser builds start from the
// compiled server-oriented output, so server comes first.
var All = []Target{Server, Browser}

// Capabilities describes what a runtime environment provides.
type Capabilities struct {
	// Platform is the esbuild platform name ("node" or "browser").
	Platform string
	// OutputName is the artifact file name inside the wrapper's dist directory.
	OutputName string
	// BuiltinsAvailable is true when Node.js core modules resolve at runtime
	// and may stay external.
	BuiltinsAvailable bool
	// ShimBuiltins is true when Node.js core modules must be replaced by
	// shims from the module shim table.
	ShimBuiltins bool
	// GlobalsBanner is true when the environment shim banner is prepended.
	GlobalsBanner bool
}

var capabilities = map[Target]Capabilities{
	Server: {
		Platform:          "node",
		OutputName:        "index.js",
		BuiltinsAvailable: true,
	},
	Browser: {
		Platform:      "browser",
		OutputName:    "index.browser.js",
		ShimBuiltins:  true,
		GlobalsBanner: true,
	},
}

// Parse converts a string into a Target.
func Parse(s string) (Target, error) {
	t := Target(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := capabilities[t]; !ok {
		return "", fmt.Errorf("unknown build target %q (expected server or browser)", s)
	}
	return t, nil
}

// ParseAll converts a list of names into targets, keeping build order and
// dropping duplicates. An empty list yields every target.
func ParseAll(names []string) ([]Target, error) {
	if len(names) == 0 {
		return slices.Clone(All), nil
	}
	seen := make(map[Target]bool, len(names))
	for _, n := range names {
		t, err := Parse(n)
		if err != nil {
			return nil, err
		}
		seen[t] = true
	}
	var out []Target
	for _, t := range All {
		if seen[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

// String implements fmt.Stringer.
func (t Target) String() string { return string(t) }

// Capabilities returns the capability set of the target.
func (t Target) Capabilities() Capabilities { return capabilities[t] }

// OutputName returns the artifact file name for the target.
func (t Target) OutputName() string { return capabilities[t].OutputName }

// Allows reports whether an artifact for this target may keep importPath as
// a runtime import, given the wrapper's external allowlist for the target.
// Node.js core modules are allowed on the server and never in the browser.
func (t Target) Allows(importPath string, allowlist []string) bool {
	if IsNodeBuiltin(importPath) {
		return t.Capabilities().BuiltinsAvailable
	}
	if strings.HasPrefix(importPath, ".") || strings.HasPrefix(importPath, "/") {
		return false
	}
	pkg := PackageName(importPath)
	for _, allowed := range allowlist {
		if allowed == importPath || allowed == pkg {
			return true
		}
	}
	return false
}
