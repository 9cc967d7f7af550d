// Package bundle turns a wrapper's compiled sources into self-contained
// server and browser modules with esbuild.
package bundle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/conciliate-app/wrapkit/internal/shim"
	"github.com/conciliate-app/wrapkit/internal/target"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
)

// Format is the module format of every artifact.
const Format = "esm"

// serverBanner gives ESM server bundles a require function for the CommonJS
// code they inline.
const serverBanner = `import { createRequire as __wrapkit_createRequire } from "node:module";
const require = __wrapkit_createRequire(import.meta.url);`

// SuppressedWarnings are esbuild message IDs that third-party code trips
// routinely and that do not affect the artifact.
var SuppressedWarnings = []string{
	"this-is-undefined-in-esm",
	"commonjs-variable-in-esm",
	"empty-import-meta",
	"direct-eval",
	"duplicate-object-key",
	"equals-negative-zero",
	"unsupported-require-call",
	"require-resolve-not-external",
	"empty-glob",
}

// suppressedText drops warnings by message text when esbuild has no ID
// for them.
var suppressedText = []string{
	"circular",
	"deprecated",
	"before assignment",
	"before initialization",
}

// Options configures a Bundler.
type Options struct {
	Fs     afero.Fs
	Logger *slog.Logger
	// Stdout and Stderr receive compile command output verbatim.
	Stdout io.Writer
	Stderr io.Writer
	// Shims is the base module shim table; nil uses shim.Default.
	Shims *shim.Table
}

// Bundler compiles and bundles wrapper packages.
type Bundler struct {
	fs     afero.Fs
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	shims  *shim.Table
}

// New creates a Bundler.
func New(opts Options) (*Bundler, error) {
	b := &Bundler{
		fs:     opts.Fs,
		logger: opts.Logger,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
		shims:  opts.Shims,
	}
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	if b.stdout == nil {
		b.stdout = io.Discard
	}
	if b.stderr == nil {
		b.stderr = io.Discard
	}
	if b.shims == nil {
		table, err := shim.Default()
		if err != nil {
			return nil, err
		}
		b.shims = table
	}
	return b, nil
}

// Artifact is one bundled module held in memory until it has been patched
// and checked.
type Artifact struct {
	Wrapper   string
	Target    target.Target
	Path      string
	Format    string
	Contents  []byte
	SourceMap []byte
	// Externals are the runtime imports esbuild left in the bundle.
	Externals []string
	Inputs    int
	Warnings  []string
}

// Size returns the artifact size in bytes.
func (a *Artifact) Size() int { return len(a.Contents) }

// MapPath returns the sourcemap path, or "" when there is none.
func (a *Artifact) MapPath() string {
	if len(a.SourceMap) == 0 {
		return ""
	}
	return a.Path + ".map"
}

// Build bundles the compiled entry of w for t. The artifact is returned in
// memory; nothing is written.
func (b *Bundler) Build(ctx context.Context, w config.Wrapper, t target.Target) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := w.CompiledEntry()
	if _, err := b.fs.Stat(entry); err != nil {
		return nil, fmt.Errorf("bundle %s (%s): compiled entry missing, run the compile step first: %w", w.Name, t, err)
	}

	opts, err := b.buildOptions(w, t)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("bundling", "wrapper", w.Name, "target", t, "entry", entry, "externals", opts.External)
	result := api.Build(opts)

	if len(result.Errors) > 0 {
		return nil, &BuildError{
			Wrapper:  w.Name,
			Target:   t,
			Messages: api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage}),
		}
	}

	warnings := b.logWarnings(w, t, result.Warnings)

	art := &Artifact{
		Wrapper:  w.Name,
		Target:   t,
		Path:     w.ArtifactPath(t),
		Format:   Format,
		Warnings: warnings,
	}
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".map") {
			art.SourceMap = f.Contents
			continue
		}
		art.Contents = f.Contents
	}
	if art.Contents == nil {
		return nil, fmt.Errorf("bundle %s (%s): esbuild produced no output", w.Name, t)
	}

	meta, err := ParseMetafile(result.Metafile)
	if err != nil {
		return nil, fmt.Errorf("bundle %s (%s): %w", w.Name, t, err)
	}
	art.Externals = meta.ExternalImports()
	art.Inputs = meta.InputCount()

	allowlist := w.Allowlist(t)
	var disallowed []string
	for _, ext := range art.Externals {
		if !t.Allows(ext, allowlist) {
			disallowed = append(disallowed, ext)
		}
	}
	if len(disallowed) > 0 {
		return nil, &ExternalError{Wrapper: w.Name, Target: t, Disallowed: disallowed}
	}

	return art, nil
}

func (b *Bundler) buildOptions(w config.Wrapper, t target.Target) (api.BuildOptions, error) {
	caps := t.Capabilities()

	define := map[string]string{
		"process.env.NODE_ENV": `"production"`,
	}
	for k, v := range w.DefineMap() {
		define[k] = v
	}

	opts := api.BuildOptions{
		EntryPoints:   []string{w.CompiledEntry()},
		Outfile:       w.ArtifactPath(t),
		AbsWorkingDir: w.Dir,
		Bundle:        true,
		Write:         false,
		Metafile:      true,
		Format:        api.FormatESModule,
		Target:        api.ES2020,
		External:      slices.Clone(w.Allowlist(t)),
		Define:        define,
		LogLevel:      api.LogLevelSilent,
		LogOverride:   suppressedOverrides(),
		Loader: map[string]api.Loader{
			".json": api.LoaderJSON,
			".wasm": api.LoaderBinary,
		},
		MinifyWhitespace:  w.Minify,
		MinifyIdentifiers: w.Minify,
		MinifySyntax:      w.Minify,
	}
	if w.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}

	switch caps.Platform {
	case "node":
		opts.Platform = api.PlatformNode
		opts.Banner = map[string]string{"js": serverBanner}
	default:
		opts.Platform = api.PlatformBrowser
		table, err := b.tableFor(w)
		if err != nil {
			return api.BuildOptions{}, err
		}
		opts.Plugins = []api.Plugin{shimPlugin(table)}
		opts.Define["global"] = "globalThis"
		if caps.GlobalsBanner {
			opts.Banner = map[string]string{"js": shim.Banner()}
		}
	}
	return opts, nil
}

// tableFor extends the base shim table with the wrapper's own shims.
func (b *Bundler) tableFor(w config.Wrapper) (*shim.Table, error) {
	if len(w.Shims) == 0 {
		return b.shims, nil
	}
	extra := make(map[string]string, len(w.Shims))
	for _, s := range w.Shims {
		src := s.Source
		if s.File != "" {
			data, err := afero.ReadFile(b.fs, w.Path(s.File))
			if err != nil {
				return nil, fmt.Errorf("shim %q for %s: %w", s.Name, w.Name, err)
			}
			src = string(data)
		}
		extra[s.Name] = src
	}
	return b.shims.With(extra), nil
}

func (b *Bundler) logWarnings(w config.Wrapper, t target.Target, msgs []api.Message) []string {
	var kept []api.Message
	for _, m := range msgs {
		if isSuppressed(m) {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return nil
	}
	formatted := api.FormatMessages(kept, api.FormatMessagesOptions{Kind: api.WarningMessage})
	for i, text := range formatted {
		attrs := []any{"wrapper", w.Name, "target", t, "id", kept[i].ID}
		if loc := kept[i].Location; loc != nil {
			attrs = append(attrs, "file", filepath.ToSlash(loc.File), "line", loc.Line)
		}
		b.logger.Warn(strings.TrimSpace(kept[i].Text), attrs...)
		formatted[i] = strings.TrimRight(text, "\n")
	}
	return formatted
}

func isSuppressed(m api.Message) bool {
	if slices.Contains(SuppressedWarnings, m.ID) {
		return true
	}
	text := strings.ToLower(m.Text)
	for _, s := range suppressedText {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func suppressedOverrides() map[string]api.LogLevel {
	m := make(map[string]api.LogLevel, len(SuppressedWarnings))
	for _, id := range SuppressedWarnings {
		m[id] = api.LogLevelSilent
	}
	return m
}
