package bundle

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/conciliate-app/wrapkit/internal/target"
	"github.com/conciliate-app/wrapkit/internal/testutil"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexTS = `import { readFileSync } from "fs";
import { html } from "lit";
import { greet } from "./greet";

export function read(path: string): string {
  return readFileSync(path, "utf8");
}

export function render(name: string) {
  return html` + "`<p>${greet(name)}</p>`" + `;
}
`

const greetTS = `export const greet = (name: string): string => "hello " + name;
`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newWrapper(t *testing.T, files map[string]string) config.Wrapper {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, files)
	return config.Wrapper{
		Name:   "lit-wrapper",
		Dir:    dir,
		Entry:  "src/index.ts",
		OutDir: "dist",
		Externals: config.Externals{
			Server:  []string{"lit"},
			Browser: []string{"lit"},
		},
	}
}

func newBundler(t *testing.T, stdout, stderr *bytes.Buffer) *Bundler {
	t.Helper()
	opts := Options{Fs: afero.NewOsFs(), Logger: testutil.NewTestLogger(t)}
	if stdout != nil {
		opts.Stdout = stdout
	}
	if stderr != nil {
		opts.Stderr = stderr
	}
	b, err := New(opts)
	require.NoError(t, err)
	return b
}

func compiled(t *testing.T, b *Bundler, w config.Wrapper) {
	t.Helper()
	require.NoError(t, b.Compile(context.Background(), w))
}

func TestCompileTranspilesSources(t *testing.T) {
	w := newWrapper(t, map[string]string{
		"src/index.ts":      indexTS,
		"src/greet.ts":      greetTS,
		"src/types.d.ts":    "export type Name = string;\n",
		"src/data/cfg.json": `{"a":1}`,
	})
	b := newBundler(t, nil, nil)
	compiled(t, b, w)

	entry, err := os.ReadFile(w.CompiledEntry())
	require.NoError(t, err)
	assert.NotContains(t, string(entry), ": string", "type annotations must be stripped")
	assert.FileExists(t, filepath.Join(w.CompiledDir(), "greet.js"))
	assert.FileExists(t, filepath.Join(w.CompiledDir(), "data", "cfg.json"))
	assert.NoFileExists(t, filepath.Join(w.CompiledDir(), "types.d.js"))
}

func TestCompileReportsTranspileErrors(t *testing.T) {
	w := newWrapper(t, map[string]string{"src/index.ts": "export const = ;\n"})
	b := newBundler(t, nil, nil)

	err := b.Compile(context.Background(), w)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Output, "index.ts")
}

func TestCompileCommandPassesOutputThrough(t *testing.T) {
	w := newWrapper(t, nil)
	w.CompileCommand = `mkdir -p dist/tsc && echo "compiled ok" && printf 'export const x = 1;\n' > dist/tsc/index.js`

	var stdout bytes.Buffer
	b := newBundler(t, &stdout, nil)
	compiled(t, b, w)

	assert.Equal(t, "compiled ok\n", stdout.String())
	assert.FileExists(t, w.CompiledEntry())
}

func TestCompileCommandFailure(t *testing.T) {
	w := newWrapper(t, nil)
	w.CompileCommand = `echo "src/index.ts(1,7): error TS1134" >&2; exit 2`

	var stderr bytes.Buffer
	b := newBundler(t, nil, &stderr)
	err := b.Compile(context.Background(), w)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "src/index.ts(1,7): error TS1134\n", stderr.String())
	assert.Equal(t, stderr.String(), ce.Output)
	assert.Contains(t, ce.Error(), "lit-wrapper")
}

func TestCompileCommandMissingOutput(t *testing.T) {
	w := newWrapper(t, nil)
	w.CompileCommand = "true"

	err := newBundler(t, nil, nil).Compile(context.Background(), w)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Err.Error(), "was not produced")
}

func TestBuildServer(t *testing.T) {
	w := newWrapper(t, map[string]string{"src/index.ts": indexTS, "src/greet.ts": greetTS})
	b := newBundler(t, nil, nil)
	compiled(t, b, w)

	art, err := b.Build(context.Background(), w, target.Server)
	require.NoError(t, err)

	src := string(art.Contents)
	assert.Equal(t, w.ArtifactPath(target.Server), art.Path)
	assert.Equal(t, "esm", art.Format)
	assert.True(t, strings.HasPrefix(src, serverBanner), "server artifact starts with the require banner")
	assert.Contains(t, src, `"hello "`, "relative imports are inlined")
	assert.ElementsMatch(t, []string{"fs", "lit"}, art.Externals)
	assert.Greater(t, art.Size(), 0)
	assert.Empty(t, art.MapPath())

	_, err = os.Stat(art.Path)
	assert.True(t, os.IsNotExist(err), "Build must not write the artifact")
}

func TestBuildBrowserShimsBuiltins(t *testing.T) {
	w := newWrapper(t, map[string]string{"src/index.ts": indexTS, "src/greet.ts": greetTS})
	b := newBundler(t, nil, nil)
	compiled(t, b, w)

	art, err := b.Build(context.Background(), w, target.Browser)
	require.NoError(t, err)

	src := string(art.Contents)
	assert.Equal(t, []string{"lit"}, art.Externals)
	assert.Contains(t, src, "__wrapkit_g")
	assert.Contains(t, src, "is not available in the browser build")
	assert.NotContains(t, src, `from "fs"`)
	assert.True(t, strings.HasSuffix(art.Path, "index.browser.js"))
}

func TestBuildBrowserUnshimmedBuiltinFails(t *testing.T) {
	w := newWrapper(t, map[string]string{
		"src/index.ts": `import { execSync } from "child_process";
export const run = () => execSync("ls");
`,
	})
	b := newBundler(t, nil, nil)
	compiled(t, b, w)

	_, err := b.Build(context.Background(), w, target.Browser)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, target.Browser, be.Target)
	assert.Contains(t, be.Error(), "child_process")
}

func TestBuildWrapperShimFromFile(t *testing.T) {
	w := newWrapper(t, map[string]string{
		"src/index.ts": `import WebSocket from "ws";
export const open = (url: string) => new WebSocket(url);
`,
		"shims/ws.js": "export default globalThis.WebSocket; // wrapper ws shim\n",
	})
	w.Shims = []config.Shim{{Name: "ws", File: "shims/ws.js"}}
	b := newBundler(t, nil, nil)
	compiled(t, b, w)

	art, err := b.Build(context.Background(), w, target.Browser)
	require.NoError(t, err)
	assert.Contains(t, string(art.Contents), "globalThis.WebSocket")
	assert.Empty(t, art.Externals)
}

func TestBuildRequiresCompiledEntry(t *testing.T) {
	w := newWrapper(t, map[string]string{"src/index.ts": indexTS})
	_, err := newBundler(t, nil, nil).Build(context.Background(), w, target.Server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile step")
}

func TestBuildCancelled(t *testing.T) {
	w := newWrapper(t, map[string]string{"src/index.ts": indexTS})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newBundler(t, nil, nil).Build(ctx, w, target.Server)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBuildDefinesAndSourcemap(t *testing.T) {
	w := newWrapper(t, map[string]string{
		"src/index.ts": `export const env = process.env.NODE_ENV;
export const flavor = __FLAVOR__;
`,
	})
	w.Sourcemap = true
	w.Define = []config.KeyValue{{Key: "__FLAVOR__", Value: `"lite"`}}
	b := newBundler(t, nil, nil)
	compiled(t, b, w)

	art, err := b.Build(context.Background(), w, target.Server)
	require.NoError(t, err)
	src := string(art.Contents)
	assert.Contains(t, src, `"production"`)
	assert.Contains(t, src, `"lite"`)
	assert.Contains(t, src, "sourceMappingURL=index.js.map")
	assert.NotEmpty(t, art.SourceMap)

	mem := afero.NewMemMapFs()
	require.NoError(t, Write(mem, art))
	ok, err := afero.Exists(mem, art.Path+".map")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsSuppressed(t *testing.T) {
	tests := []struct {
		msg  api.Message
		want bool
	}{
		{api.Message{ID: "this-is-undefined-in-esm", Text: "Top-level \"this\" will be replaced"}, true},
		{api.Message{ID: "x", Text: "Import cycle: circular dependency detected"}, true},
		{api.Message{ID: "x", Text: "This API is deprecated"}, true},
		{api.Message{ID: "x", Text: "\"a\" is used before initialization"}, true},
		{api.Message{ID: "assign-to-constant", Text: "This assignment will throw"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.msg.Text, func(t *testing.T) {
			assert.Equal(t, tt.want, isSuppressed(tt.msg))
		})
	}
}

func TestMetafileExternalImports(t *testing.T) {
	m, err := ParseMetafile(`{
  "inputs": {"a.js": {"bytes": 10, "imports": []}},
  "outputs": {
    "out.js": {"bytes": 5, "imports": [
      {"path": "lit", "kind": "import-statement", "external": true},
      {"path": "fs", "kind": "require-call", "external": true},
      {"path": "lit", "kind": "dynamic-import", "external": true},
      {"path": "a.js", "kind": "import-statement"}
    ], "exports": ["x"]}
  }
}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"fs", "lit"}, m.ExternalImports())
	assert.Equal(t, 1, m.InputCount())

	_, err = ParseMetafile("{")
	assert.Error(t, err)
}

func TestExternalErrorMessage(t *testing.T) {
	err := &ExternalError{Wrapper: "w", Target: target.Browser, Disallowed: []string{"fs", "react"}}
	assert.Equal(t, "bundle w (browser) keeps imports outside its browser allowlist: fs, react", err.Error())
}
