package refs

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/conciliate-app/wrapkit/internal/manifest"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/afero"
)

// Sections whose entries are rewritten, in manifest order of precedence.
var Sections = []string{
	manifest.Dependencies,
	manifest.DevDependencies,
	manifest.PeerDependencies,
	manifest.Overrides,
}

// Change is one rewritten reference.
type Change struct {
	Section string
	Name    string
	From    string
	To      string
}

// Result describes the outcome for one manifest.
type Result struct {
	Path     string
	Changes  []Change
	Restored []string
	Diff     string
	Written  bool
}

// Changed reports whether the manifest differs from its on-disk content.
func (r Result) Changed() bool { return len(r.Changes) > 0 || len(r.Restored) > 0 }

// Rewriter applies reference maps to manifests on disk.
type Rewriter struct {
	Fs      afero.Fs
	MapsDir string
	Logger  *slog.Logger
}

// NewRewriter creates a rewriter reading maps from mapsDir.
func NewRewriter(fs afero.Fs, mapsDir string, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Rewriter{Fs: fs, MapsDir: mapsDir, Logger: logger}
}

// Run rewrites every manifest in paths for mode. Maps and manifests are all
// loaded and validated before anything is written. With dryRun set nothing
// is written and each Result carries a unified diff instead.
func (r *Rewriter) Run(mode Mode, paths []string, dryRun bool) ([]Result, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	original, file, err := LoadMaps(r.Fs, r.MapsDir, mode)
	if err != nil {
		return nil, err
	}
	refMap := Resolve(mode, original, file)
	r.Logger.Debug("resolved reference map", "mode", mode, "entries", len(refMap))

	type pending struct {
		m      *manifest.Manifest
		before []byte
		result Result
	}
	var work []pending
	for _, path := range paths {
		before, err := afero.ReadFile(r.Fs, path)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		m, err := manifest.Parse(path, before)
		if err != nil {
			return nil, err
		}
		res := Apply(m, refMap)
		res.Path = path
		work = append(work, pending{m: m, before: before, result: res})
	}

	results := make([]Result, 0, len(work))
	for _, w := range work {
		res := w.result
		if !res.Changed() {
			r.Logger.Info("no changes needed", "manifest", res.Path)
			results = append(results, res)
			continue
		}
		after, err := w.m.Encode()
		if err != nil {
			return results, fmt.Errorf("encode %s: %w", res.Path, err)
		}
		if dryRun {
			res.Diff = Diff(res.Path, string(w.before), string(after), string(mode))
		} else {
			if err := w.m.Save(r.Fs); err != nil {
				return results, err
			}
			res.Written = true
			r.Logger.Info("updated manifest", "manifest", res.Path, "changes", len(res.Changes))
		}
		results = append(results, res)
	}
	return results, nil
}

// Apply rewrites m in place using refMap and reports what changed. A parked
// "overridesEmpty" section is restored to "overrides" first, at top level
// and under "pnpm".
func Apply(m *manifest.Manifest, refMap Map) Result {
	var res Result
	if restoreOverrides(m.Root) {
		res.Restored = append(res.Restored, manifest.Overrides)
	}
	for _, section := range Sections {
		res.Changes = append(res.Changes, rewriteSection(m.Root.GetObject(section), section, refMap)...)
	}
	if pnpm := m.Root.GetObject(manifest.Pnpm); pnpm != nil {
		if restoreOverrides(pnpm) {
			res.Restored = append(res.Restored, manifest.Pnpm+"."+manifest.Overrides)
		}
		section := manifest.Pnpm + "." + manifest.Overrides
		res.Changes = append(res.Changes, rewriteSection(pnpm.GetObject(manifest.Overrides), section, refMap)...)
	}
	return res
}

func restoreOverrides(o *manifest.Object) bool {
	if !o.Has(manifest.OverridesEmpty) {
		return false
	}
	if o.Has(manifest.Overrides) {
		return o.Delete(manifest.OverridesEmpty)
	}
	return o.Rename(manifest.OverridesEmpty, manifest.Overrides)
}

func rewriteSection(sec *manifest.Object, name string, refMap Map) []Change {
	if sec == nil {
		return nil
	}
	var changes []Change
	for _, key := range sec.Keys() {
		want := refMap[key]
		if want == "" {
			continue
		}
		have, ok := sec.GetString(key)
		if !ok || have == want {
			continue
		}
		sec.Set(key, want)
		changes = append(changes, Change{Section: name, Name: key, From: have, To: want})
	}
	return changes
}

// Diff renders a unified diff between two manifest versions.
func Diff(path, before, after, label string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path + " (" + label + ")",
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return out
}

// Names returns the package names touched by a set of results.
func Names(results []Result) []string {
	var names []string
	for _, r := range results {
		for _, c := range r.Changes {
			names = append(names, c.Name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}
