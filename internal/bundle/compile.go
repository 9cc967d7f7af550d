package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/conciliate-app/wrapkit/internal/fsutil"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
)

// sourceExts are transpiled by the built-in compile step.
var sourceExts = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".mts": api.LoaderTS,
	".tsx": api.LoaderTSX,
	".js":  api.LoaderJS,
	".mjs": api.LoaderJS,
	".jsx": api.LoaderJSX,
}

// Compile produces the wrapper's compiled sources under its CompiledDir.
// A configured compile command runs through the shell with its output
// passed through unchanged; otherwise the sources are transpiled file by
// file with esbuild.
func (b *Bundler) Compile(ctx context.Context, w config.Wrapper) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.CompileCommand != "" {
		return b.runCompileCommand(ctx, w)
	}
	return b.transpile(w)
}

func (b *Bundler) runCompileCommand(ctx context.Context, w config.Wrapper) error {
	b.logger.Info("compiling", "wrapper", w.Name, "command", w.CompileCommand)

	cmd := exec.CommandContext(ctx, "sh", "-c", w.CompileCommand)
	cmd.Dir = w.Dir
	cmd.Env = os.Environ()

	var output bytes.Buffer
	cmd.Stdout = io.MultiWriter(b.stdout, &output)
	cmd.Stderr = io.MultiWriter(b.stderr, &output)

	if err := cmd.Run(); err != nil {
		return &CompileError{Wrapper: w.Name, Command: w.CompileCommand, Output: output.String(), Err: err}
	}

	if !fsutil.Exists(b.fs, w.CompiledEntry()) {
		return &CompileError{
			Wrapper: w.Name,
			Command: w.CompileCommand,
			Output:  output.String(),
			Err:     fmt.Errorf("expected compiled entry %s was not produced", w.CompiledEntry()),
		}
	}
	return nil
}

func (b *Bundler) transpile(w config.Wrapper) error {
	srcDir := w.SrcDir()
	outDir := w.CompiledDir()
	outRoot := w.Path(w.OutDir)

	var sources, assets []string
	err := afero.Walk(b.fs, srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path != srcDir && (name == "node_modules" || strings.HasPrefix(name, ".") || path == outRoot) {
				return filepath.SkipDir
			}
			return nil
		}
		switch ext := filepath.Ext(path); {
		case strings.HasSuffix(path, ".d.ts"):
		case sourceExts[ext] != api.LoaderNone:
			sources = append(sources, path)
		case ext == ".json":
			assets = append(assets, path)
		}
		return nil
	})
	if err != nil {
		return &CompileError{Wrapper: w.Name, Err: err}
	}
	if len(sources) == 0 {
		return &CompileError{Wrapper: w.Name, Err: fmt.Errorf("no sources under %s", srcDir)}
	}

	b.logger.Info("transpiling", "wrapper", w.Name, "files", len(sources))

	result := api.Build(api.BuildOptions{
		EntryPoints:   sources,
		AbsWorkingDir: w.Dir,
		Outdir:        outDir,
		Outbase:       srcDir,
		Bundle:        false,
		Write:         false,
		Format:        api.FormatESModule,
		Platform:      api.PlatformNeutral,
		Target:        api.ES2020,
		Loader:        sourceExts,
		LogLevel:      api.LogLevelSilent,
		LogOverride:   suppressedOverrides(),
	})
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return &CompileError{Wrapper: w.Name, Output: strings.Join(msgs, ""), Err: fmt.Errorf("%d transpile error(s)", len(result.Errors))}
	}

	if err := b.fs.RemoveAll(outDir); err != nil {
		return &CompileError{Wrapper: w.Name, Err: err}
	}
	for _, f := range result.OutputFiles {
		if err := fsutil.WriteFileAtomic(b.fs, f.Path, f.Contents, 0o644); err != nil {
			return &CompileError{Wrapper: w.Name, Err: err}
		}
	}
	for _, src := range assets {
		rel, err := filepath.Rel(srcDir, src)
		if err != nil {
			return &CompileError{Wrapper: w.Name, Err: err}
		}
		data, err := afero.ReadFile(b.fs, src)
		if err != nil {
			return &CompileError{Wrapper: w.Name, Err: err}
		}
		if err := fsutil.WriteFileAtomic(b.fs, filepath.Join(outDir, rel), data, 0o644); err != nil {
			return &CompileError{Wrapper: w.Name, Err: err}
		}
	}
	return nil
}

// Write stores an artifact and its sourcemap atomically.
func Write(fs afero.Fs, a *Artifact) error {
	if err := fsutil.WriteFileAtomic(fs, a.Path, a.Contents, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", a.Path, err)
	}
	if p := a.MapPath(); p != "" {
		if err := fsutil.WriteFileAtomic(fs, p, a.SourceMap, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	return nil
}
