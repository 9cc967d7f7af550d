// Package pipeline runs the full build of wrapper packages: WASM embedding,
// compile, bundling for each target, patching and the final import check.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/conciliate-app/wrapkit/internal/bundle"
	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/conciliate-app/wrapkit/internal/patch"
	"github.com/conciliate-app/wrapkit/internal/scan"
	"github.com/conciliate-app/wrapkit/internal/target"
	"github.com/conciliate-app/wrapkit/internal/wasmembed"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Options configures a Pipeline.
type Options struct {
	Config *config.Config
	Fs     afero.Fs
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
	// Targets restricts every wrapper to these targets. Empty builds each
	// wrapper's configured targets.
	Targets []target.Target
}

// Pipeline builds wrapper packages.
type Pipeline struct {
	cfg     *config.Config
	fs      afero.Fs
	logger  *slog.Logger
	bundler *bundle.Bundler
	encoder *wasmembed.Encoder
	targets []target.Target
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("pipeline: config is required")
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b, err := bundle.New(bundle.Options{
		Fs:     fs,
		Logger: logger,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	})
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     opts.Config,
		fs:      fs,
		logger:  logger,
		bundler: b,
		encoder: wasmembed.NewEncoder(fs, logger),
		targets: opts.Targets,
	}, nil
}

// ArtifactReport describes one written artifact.
type ArtifactReport struct {
	Target    target.Target  `json:"target"`
	Path      string         `json:"path"`
	Size      int            `json:"size"`
	Inputs    int            `json:"inputs"`
	Externals []string       `json:"externals,omitempty"`
	Patches   []patch.Result `json:"patches,omitempty"`
	Warnings  int            `json:"warnings"`
}

// WrapperReport describes one wrapper build.
type WrapperReport struct {
	Wrapper   string            `json:"wrapper"`
	Wasm      *wasmembed.Result `json:"-"`
	Artifacts []ArtifactReport  `json:"artifacts"`
	Duration  time.Duration     `json:"duration"`
}

// Report describes a build run.
type Report struct {
	RunID    string          `json:"run_id"`
	Wrappers []WrapperReport `json:"wrappers"`
	Duration time.Duration   `json:"duration"`
}

// BuildAll builds the named wrappers, or all of them when names is empty.
// Wrappers run one at a time unless the config allows more; with
// concurrency the first failure cancels the remaining builds.
func (p *Pipeline) BuildAll(ctx context.Context, names []string) (*Report, error) {
	wrappers, err := p.cfg.Select(names)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{
		RunID:    uuid.NewString(),
		Wrappers: make([]WrapperReport, len(wrappers)),
	}
	logger := p.logger.With("run", report.RunID)
	logger.Info("build started", "wrappers", len(wrappers), "parallel", p.cfg.Parallel)

	run := p.withLogger(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.Parallel, 1))
	for i, w := range wrappers {
		g.Go(func() error {
			wr, err := run.BuildWrapper(gctx, w)
			if err != nil {
				return err
			}
			report.Wrappers[i] = *wr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("build failed", "error", err)
		return nil, err
	}

	report.Duration = time.Since(start)
	logger.Info("build finished", "duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// BuildWrapper runs every stage for one wrapper, stopping at the first
// failure. Artifacts are only written once they are patched and checked.
func (p *Pipeline) BuildWrapper(ctx context.Context, w config.Wrapper) (*WrapperReport, error) {
	start := time.Now()
	logger := p.logger.With("wrapper", w.Name)
	report := &WrapperReport{Wrapper: w.Name}

	targets, err := p.targetsFor(w)
	if err != nil {
		return nil, &StepError{Wrapper: w.Name, Step: StepCompile, Err: err}
	}
	rules, err := p.Rules(w)
	if err != nil {
		return nil, &StepError{Wrapper: w.Name, Step: StepPatch, Err: err}
	}

	if w.Wasm != nil {
		res, err := p.encoder.Encode(ctx, wasmembed.Options{
			WasmPath: w.Path(w.Wasm.Binary),
			OutPath:  w.Path(w.Wasm.Loader),
			Exports:  w.Wasm.Exports,
		})
		if err != nil {
			return nil, &StepError{Wrapper: w.Name, Step: StepWasm, Err: err}
		}
		report.Wasm = res
	}

	if err := p.bundler.Compile(ctx, w); err != nil {
		return nil, &StepError{Wrapper: w.Name, Step: StepCompile, Err: err}
	}

	for _, t := range targets {
		ar, err := p.buildTarget(ctx, w, t, rules)
		if err != nil {
			return nil, err
		}
		logger.Info("artifact written",
			"target", t,
			"path", p.cfg.Rel(ar.Path),
			"size", humanize.Bytes(uint64(ar.Size)),
			"externals", ar.Externals)
		report.Artifacts = append(report.Artifacts, *ar)
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (p *Pipeline) buildTarget(ctx context.Context, w config.Wrapper, t target.Target, rules []patch.Rule) (*ArtifactReport, error) {
	art, err := p.bundler.Build(ctx, w, t)
	if err != nil {
		return nil, &StepError{Wrapper: w.Name, Step: StepBundle, Target: t, Err: err}
	}

	var applicable []patch.Rule
	for _, r := range rules {
		if r.AppliesTo(t) {
			applicable = append(applicable, r)
		}
	}
	results := []patch.Result{}
	if len(applicable) > 0 {
		patcher := patch.NewPatcher(p.fs, applicable, p.logger)
		art.Contents, results, err = patcher.Patch(art.Path, art.Contents)
		if err != nil {
			return nil, &StepError{Wrapper: w.Name, Step: StepPatch, Target: t, Err: err}
		}
	}

	allowlist := w.Allowlist(t)
	v, err := scan.Check(art.Contents, func(path string) bool { return t.Allows(path, allowlist) })
	if err != nil {
		return nil, &StepError{Wrapper: w.Name, Step: StepVerify, Target: t, Err: err}
	}
	if len(v) > 0 {
		return nil, &StepError{Wrapper: w.Name, Step: StepVerify, Target: t,
			Err: &ViolationError{Path: art.Path, Target: t, Violations: v}}
	}

	if err := bundle.Write(p.fs, art); err != nil {
		return nil, &StepError{Wrapper: w.Name, Step: StepWrite, Target: t, Err: err}
	}

	return &ArtifactReport{
		Target:    t,
		Path:      art.Path,
		Size:      art.Size(),
		Inputs:    art.Inputs,
		Externals: art.Externals,
		Patches:   results,
		Warnings:  len(art.Warnings),
	}, nil
}

// Rules resolves the wrapper's patch names. Project-defined rules take
// precedence over built-in rules of the same name.
func (p *Pipeline) Rules(w config.Wrapper) ([]patch.Rule, error) {
	return ResolveRules(p.cfg, w.Patches)
}

// ResolveRules turns rule names into rules, looking in the project's
// patches first and the built-in set second.
func ResolveRules(cfg *config.Config, names []string) ([]patch.Rule, error) {
	rules := make([]patch.Rule, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(cfg.Patches, func(pr config.PatchRule) bool { return pr.Name == name })
		if i < 0 {
			r, err := patch.Builtin(name)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
			continue
		}
		r, err := compileRule(cfg.Patches[i])
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func compileRule(pr config.PatchRule) (patch.Rule, error) {
	r, err := patch.New(pr.Name, pr.Pattern, pr.Replacement, pr.Literal, pr.ChangeRequired)
	if err != nil {
		return patch.Rule{}, err
	}
	if len(pr.Targets) > 0 {
		r.Targets, err = target.ParseAll(pr.Targets)
		if err != nil {
			return patch.Rule{}, fmt.Errorf("patch %q: %w", pr.Name, err)
		}
	}
	return r, nil
}

func (p *Pipeline) targetsFor(w config.Wrapper) ([]target.Target, error) {
	targets, err := w.BuildTargets()
	if err != nil {
		return nil, err
	}
	if len(p.targets) == 0 {
		return targets, nil
	}
	return slices.DeleteFunc(targets, func(t target.Target) bool {
		return !slices.Contains(p.targets, t)
	}), nil
}

func (p *Pipeline) withLogger(logger *slog.Logger) *Pipeline {
	cp := *p
	cp.logger = logger
	return &cp
}
