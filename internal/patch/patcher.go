package patch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conciliate-app/wrapkit/internal/fsutil"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/afero"
)

// Patcher applies rules to artifact files.
type Patcher struct {
	Fs     afero.Fs
	Rules  []Rule
	Logger *slog.Logger
}

// NewPatcher creates a patcher for rules.
func NewPatcher(fs afero.Fs, rules []Rule, logger *slog.Logger) *Patcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Patcher{Fs: fs, Rules: rules, Logger: logger}
}

// PatchFile patches the artifact at path in place. The file is rewritten
// atomically and only when all rules succeed.
func (p *Patcher) PatchFile(path string) ([]Result, error) {
	before, err := afero.ReadFile(p.Fs, path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	after, results, err := p.Patch(path, before)
	if err != nil {
		return results, err
	}
	if string(after) == string(before) {
		return results, nil
	}
	if err := fsutil.WriteFileAtomic(p.Fs, path, after, 0o644); err != nil {
		return results, err
	}
	return results, nil
}

// Patch applies the rules to in-memory content read from path.
func (p *Patcher) Patch(path string, content []byte) ([]byte, []Result, error) {
	out, results, err := Apply(content, p.Rules)
	var nc *NoChangeError
	if errors.As(err, &nc) {
		nc.Path = path
		return nil, results, nc
	}
	if err != nil {
		return nil, results, err
	}
	for _, r := range results {
		p.Logger.Debug("applied patch rule", "rule", r.Rule, "path", path, "matches", r.Matches)
	}
	if p.Logger.Enabled(context.Background(), slog.LevelDebug) && string(out) != string(content) {
		p.Logger.Debug("patch diff", "path", path, "diff", Diff(path, content, out))
	}
	return out, results, nil
}

// Diff renders a unified diff of an artifact before and after patching.
func Diff(path string, before, after []byte) string {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path,
		ToFile:   path + " (patched)",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return out
}
