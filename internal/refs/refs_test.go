package refs

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/conciliate-app/wrapkit/internal/manifest"
	"github.com/conciliate-app/wrapkit/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	scenarioOriginal = Map{"sdk-a": "workspace:*", "sdk-b": "^1.2.0"}
	scenarioFile     = Map{"sdk-a": "file:../sdk-a"}
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		want Map
	}{
		{"original", Original, Map{"sdk-a": "workspace:*", "sdk-b": "^1.2.0"}},
		{"file overlays original", File, Map{"sdk-a": "file:../sdk-a", "sdk-b": "^1.2.0"}},
		{"skip-wrappers drops workspace entries", SkipWrappers, Map{"sdk-b": "^1.2.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.mode, scenarioOriginal, scenarioFile)
			assert.Equal(t, tt.want, got)
		})
	}

	// Inputs are untouched.
	assert.Equal(t, "workspace:*", scenarioOriginal["sdk-a"])
	assert.Len(t, scenarioFile, 1)
}

func TestResolveSkipWrappersFilter(t *testing.T) {
	original := Map{
		"lit-wrapper":         "workspace:*",
		"web-storage-wrapper": "workspace:^",
		"lilypad-wrapper":     "link:packages/lilypad-wrapper",
		"multiformats":        "^13.0.0",
	}
	file := Map{
		"lit-wrapper":     "file:dist-packages/lit-wrapper",
		"lilypad-wrapper": "file:dist-packages/lilypad-wrapper",
		"extra":           "file:extra",
	}
	merged := Resolve(File, original, file)
	got := Resolve(SkipWrappers, original, file)

	for name, ref := range got {
		assert.False(t, strings.HasPrefix(original[name], WorkspacePrefix), name)
		assert.Equal(t, merged[name], ref, name)
	}
	for name := range merged {
		if !strings.HasPrefix(original[name], WorkspacePrefix) {
			assert.Contains(t, got, name)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("empty")
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "mode", cfgErr.Key)
}

const rootManifest = `{
  "name": "web-app",
  "private": true,
  "dependencies": {
    "next": "15.0.0",
    "sdk-a": "workspace:*",
    "sdk-b": "^1.0.0"
  },
  "devDependencies": {
    "typescript": "^5.4.0"
  },
  "overridesEmpty": {
    "sdk-a": "workspace:*"
  },
  "pnpm": {
    "overrides": {
      "sdk-b": "^1.0.0"
    }
  }
}
`

func newProject(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/repo/package.json", []byte(rootManifest), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/dist-packages/"+OriginalMapFile,
		[]byte(`{"sdk-a": "workspace:*", "sdk-b": "^1.2.0"}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/dist-packages/"+FileMapFile,
		[]byte(`{"sdk-a": "file:../sdk-a"}`), 0o644))
	return fs
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func TestRewriterFileMode(t *testing.T) {
	fs := newProject(t)
	rw := NewRewriter(fs, "/repo/dist-packages", testutil.NewTestLogger(t))

	results, err := rw.Run(File, []string{"/repo/package.json"}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Written)
	assert.Equal(t, []string{"overrides"}, results[0].Restored)

	out := readFile(t, fs, "/repo/package.json")
	assert.Contains(t, out, `"sdk-a": "file:../sdk-a"`)
	assert.Contains(t, out, `"sdk-b": "^1.2.0"`)
	assert.Contains(t, out, `"next": "15.0.0"`)
	assert.NotContains(t, out, "overridesEmpty")
	// Position of the restored section is kept.
	assert.Less(t, strings.Index(out, `"devDependencies"`), strings.Index(out, `"overrides"`))
	assert.Less(t, strings.Index(out, `"overrides"`), strings.Index(out, `"pnpm"`))
	assert.Equal(t, []string{"sdk-a", "sdk-b"}, Names(results))
}

func TestRewriterIdempotent(t *testing.T) {
	for _, mode := range Modes {
		t.Run(string(mode), func(t *testing.T) {
			fs := newProject(t)
			rw := NewRewriter(fs, "/repo/dist-packages", nil)

			_, err := rw.Run(mode, []string{"/repo/package.json"}, false)
			require.NoError(t, err)
			first := readFile(t, fs, "/repo/package.json")

			results, err := rw.Run(mode, []string{"/repo/package.json"}, false)
			require.NoError(t, err)
			assert.False(t, results[0].Changed())
			assert.False(t, results[0].Written)
			assert.Equal(t, first, readFile(t, fs, "/repo/package.json"))
		})
	}
}

func TestRewriterRoundTrip(t *testing.T) {
	fs := newProject(t)
	rw := NewRewriter(fs, "/repo/dist-packages", nil)

	_, err := rw.Run(File, []string{"/repo/package.json"}, false)
	require.NoError(t, err)
	_, err = rw.Run(Original, []string{"/repo/package.json"}, false)
	require.NoError(t, err)

	out := readFile(t, fs, "/repo/package.json")
	assert.Contains(t, out, `"sdk-a": "workspace:*"`)
	assert.Contains(t, out, `"sdk-b": "^1.2.0"`)
}

func TestRewriterDryRun(t *testing.T) {
	fs := newProject(t)
	rw := NewRewriter(fs, "/repo/dist-packages", nil)

	results, err := rw.Run(File, []string{"/repo/package.json"}, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Written)
	assert.Contains(t, results[0].Diff, `-    "sdk-a": "workspace:*",`)
	assert.Contains(t, results[0].Diff, `+    "sdk-a": "file:../sdk-a",`)
	assert.Equal(t, rootManifest, readFile(t, fs, "/repo/package.json"))
}

func TestRewriterConfigErrorsTouchNothing(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		setup func(fs afero.Fs)
	}{
		{"invalid mode", Mode("empty"), func(afero.Fs) {}},
		{"missing file map", File, func(fs afero.Fs) {
			_ = fs.Remove(filepath.Join("/repo/dist-packages", FileMapFile))
		}},
		{"missing original map", SkipWrappers, func(fs afero.Fs) {
			_ = fs.Remove(filepath.Join("/repo/dist-packages", OriginalMapFile))
		}},
		{"malformed map", Original, func(fs afero.Fs) {
			_ = afero.WriteFile(fs, filepath.Join("/repo/dist-packages", OriginalMapFile), []byte(`{"a": 1}`), 0o644)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newProject(t)
			tt.setup(fs)

			_, err := NewRewriter(fs, "/repo/dist-packages", nil).Run(tt.mode, []string{"/repo/package.json"}, false)
			var cfgErr *config.Error
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, rootManifest, readFile(t, fs, "/repo/package.json"))
		})
	}
}

func TestRewriterOriginalModeIgnoresMissingFileMap(t *testing.T) {
	fs := newProject(t)
	require.NoError(t, fs.Remove(filepath.Join("/repo/dist-packages", FileMapFile)))

	_, err := NewRewriter(fs, "/repo/dist-packages", nil).Run(Original, []string{"/repo/package.json"}, false)
	require.NoError(t, err)
}

func TestRewriterMissingManifestWritesNothing(t *testing.T) {
	fs := newProject(t)
	rw := NewRewriter(fs, "/repo/dist-packages", nil)

	_, err := rw.Run(File, []string{"/repo/package.json", "/repo/packages/missing/package.json"}, false)
	require.Error(t, err)
	assert.Equal(t, rootManifest, readFile(t, fs, "/repo/package.json"))
}

func TestApplySkipsNonStringAndEmptyValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/package.json", []byte(`{
  "dependencies": {"a": "1.0.0", "b": "1.0.0"},
  "overrides": {"a": {"nested": "1.0.0"}}
}`), 0o644))

	m, err := manifest.Load(fs, "/p/package.json")
	require.NoError(t, err)

	res := Apply(m, Map{"a": "2.0.0", "b": ""})
	require.Len(t, res.Changes, 1)
	assert.Equal(t, Change{Section: "dependencies", Name: "a", From: "1.0.0", To: "2.0.0"}, res.Changes[0])
}
