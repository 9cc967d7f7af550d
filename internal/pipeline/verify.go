package pipeline

import (
	"fmt"

	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/conciliate-app/wrapkit/internal/scan"
	"github.com/conciliate-app/wrapkit/internal/target"
	"github.com/spf13/afero"
)

// Finding is the verification result for one artifact on disk.
type Finding struct {
	Wrapper    string
	Target     target.Target
	Path       string
	Missing    bool
	Size       int
	Imports    []scan.Import
	Violations []scan.Import
	// Err is set when the artifact could not be parsed.
	Err error
}

// OK reports whether the artifact exists and is self-contained.
func (f Finding) OK() bool { return !f.Missing && f.Err == nil && len(f.Violations) == 0 }

// Verify scans the written artifacts of the named wrappers without
// building anything.
func Verify(fs afero.Fs, cfg *config.Config, names []string) ([]Finding, error) {
	wrappers, err := cfg.Select(names)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, w := range wrappers {
		targets, err := w.BuildTargets()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w.Name, err)
		}
		for _, t := range targets {
			findings = append(findings, verifyArtifact(fs, w, t))
		}
	}
	return findings, nil
}

func verifyArtifact(fs afero.Fs, w config.Wrapper, t target.Target) Finding {
	f := Finding{Wrapper: w.Name, Target: t, Path: w.ArtifactPath(t)}
	data, err := afero.ReadFile(fs, f.Path)
	if err != nil {
		f.Missing = true
		return f
	}
	allowlist := w.Allowlist(t)
	f.Size = len(data)
	imports, err := scan.Scan(data)
	if err != nil {
		f.Err = err
		return f
	}
	f.Imports = imports
	for _, imp := range imports {
		if !t.Allows(imp.Path, allowlist) {
			f.Violations = append(f.Violations, imp)
		}
	}
	return f
}

// Failed returns the findings that did not pass.
func Failed(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if !f.OK() {
			out = append(out, f)
		}
	}
	return out
}
