// Package scan finds the module specifiers a bundled artifact still imports
// at runtime.
//
// esbuild parses the artifact and reports every import, export-from and
// dynamic import it keeps. Calls to require and esbuild's __require helper
// are found on a copy of the artifact with comments and literals blanked,
// since server bundles bind require themselves and esbuild no longer sees
// those calls as imports.
package scan

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Kind is the syntactic form of an import.
type Kind string

const (
	Static  Kind = "import"
	Export  Kind = "export"
	Dynamic Kind = "dynamic"
	Require Kind = "require"
)

// Import is one module specifier found in an artifact. Line is 0 when the
// specifier could not be placed.
type Import struct {
	Path string
	Kind Kind
	Line int
}

// ParseError reports an artifact esbuild could not parse.
type ParseError struct {
	Messages []string
}

func (e *ParseError) Error() string {
	return "parse artifact: " + strings.Join(e.Messages, "\n")
}

// Patterns run on masked source, where every literal body is spaces.
const specifier = `["']( +)["']`

var patterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{Static, regexp.MustCompile(`(?m)(?:^|[;}\s])import\s*(?:[\w$*{}\s,]+?\s*from\s*)?` + specifier)},
	{Export, regexp.MustCompile(`(?m)(?:^|[;}\s])export\s*(?:\*(?:\s*as\s+[\w$]+)?|\{[^}]*\})\s*from\s*` + specifier)},
	{Dynamic, regexp.MustCompile(`\bimport\(\s*` + specifier + `\s*\)`)},
	{Require, regexp.MustCompile(`(?:^|[^\w$.])(?:__)?require\(\s*` + specifier + `\s*\)`)},
}

// record kinds from the esbuild metafile, mapped to the forms they can
// take in source.
var recordKinds = map[string][]Kind{
	"import-statement": {Static, Export},
	"dynamic-import":   {Dynamic},
	"require-call":     {Require},
	"require-resolve":  {Require},
}

// Scan returns every runtime import in src, ordered by line. The same path
// and kind appearing again is reported once, at its first line.
func Scan(src []byte) ([]Import, error) {
	records, err := importRecords(src)
	if err != nil {
		return nil, err
	}
	hits := locate(src, maskLiterals(src))

	var out []Import
	seen := make(map[Import]bool)
	add := func(imp Import) {
		key := Import{Path: imp.Path, Kind: imp.Kind}
		if !seen[key] {
			seen[key] = true
			out = append(out, imp)
		}
	}

	for _, r := range records {
		kinds := recordKinds[r.Kind]
		if kinds == nil {
			continue
		}
		imp := Import{Path: r.Path, Kind: kinds[0]}
		matched := false
		for _, h := range hits {
			if h.Path != r.Path || !slices.Contains(kinds, h.Kind) {
				continue
			}
			matched = true
			if !seen[Import{Path: h.Path, Kind: h.Kind}] {
				imp = h
				break
			}
		}
		if matched && seen[Import{Path: imp.Path, Kind: imp.Kind}] {
			continue
		}
		add(imp)
	}
	for _, h := range hits {
		if h.Kind == Require {
			add(h)
		}
	}

	slices.SortStableFunc(out, func(a, b Import) int {
		return cmp.Compare(sortLine(a), sortLine(b))
	})
	return out, nil
}

// Paths returns the distinct import paths in src, sorted.
func Paths(src []byte) ([]string, error) {
	imports, err := Scan(src)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, imp := range imports {
		paths = append(paths, imp.Path)
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

// Check returns the imports in src that allowed rejects.
func Check(src []byte, allowed func(path string) bool) ([]Import, error) {
	imports, err := Scan(src)
	if err != nil {
		return nil, err
	}
	var violations []Import
	for _, imp := range imports {
		if !allowed(imp.Path) {
			violations = append(violations, imp)
		}
	}
	return violations, nil
}

func sortLine(imp Import) int {
	if imp.Line == 0 {
		return math.MaxInt
	}
	return imp.Line
}

// locate finds import forms in masked code and reads their specifiers back
// from src. Each path and kind is reported once, in source order.
func locate(src, code []byte) []Import {
	type hit struct {
		Import
		offset int
	}
	var hits []hit
	seen := make(map[Import]bool)
	for _, p := range patterns {
		for _, m := range p.re.FindAllSubmatchIndex(code, -1) {
			path := strings.TrimSpace(string(src[m[2]:m[3]]))
			key := Import{Path: path, Kind: p.kind}
			if path == "" || seen[key] {
				continue
			}
			seen[key] = true
			line := 1 + bytes.Count(src[:m[2]], []byte("\n"))
			hits = append(hits, hit{Import: Import{Path: path, Kind: p.kind, Line: line}, offset: m[2]})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int { return cmp.Compare(a.offset, b.offset) })

	out := make([]Import, len(hits))
	for i, h := range hits {
		out[i] = h.Import
	}
	return out
}

type metafile struct {
	Inputs map[string]struct {
		Imports []importRecord `json:"imports"`
	} `json:"inputs"`
}

type importRecord struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// importRecords parses src with esbuild, keeping every import external,
// and returns the import records of the artifact in source order.
func importRecords(src []byte) ([]importRecord, error) {
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(src),
			Sourcefile: "artifact.js",
			Loader:     api.LoaderJS,
		},
		Bundle:      true,
		Write:       false,
		Metafile:    true,
		Format:      api.FormatESModule,
		Platform:    api.PlatformNeutral,
		Target:      api.ESNext,
		TreeShaking: api.TreeShakingFalse,
		LogLevel:    api.LogLevelSilent,
		Plugins:     []api.Plugin{externalPlugin()},
	})
	if len(result.Errors) > 0 {
		return nil, &ParseError{Messages: api.FormatMessages(result.Errors, api.FormatMessagesOptions{
			Kind: api.ErrorMessage,
		})}
	}

	var meta metafile
	if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("parse metafile: %w", err)
	}
	var records []importRecord
	for _, in := range meta.Inputs {
		for _, r := range in.Imports {
			if r.External {
				records = append(records, r)
			}
		}
	}
	return records, nil
}

// externalPlugin marks every import external so nothing is read from disk.
func externalPlugin() api.Plugin {
	return api.Plugin{
		Name: "wrapkit-scan",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{Path: args.Path, External: true}, nil
				})
		},
	}
}
