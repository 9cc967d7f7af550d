package config

import "github.com/conciliate-app/wrapkit/internal/patch"

// Default configuration values.
const (
	ConfigFileName    = "wrapkit.yaml"
	ConfigFileNameAlt = "wrapkit.yml"
	DefaultMapsDir    = "dist-packages"
	DefaultManifest   = "package.json"
	DefaultHook       = ".pnpmfile.cjs"
	DefaultEntry      = "src/index.ts"
	DefaultOutDir     = "dist"
	DefaultLogFormat  = "text"
	DefaultParallel   = 1
)

// DefaultWorkspace is the package glob list used when none is configured.
var DefaultWorkspace = []string{"packages/*"}

// DefaultWrappers returns the wrapper packages built when the config file
// declares none.
func DefaultWrappers() []Wrapper {
	litExternals := []string{
		"@lit-protocol/contracts",
		"@lit-protocol/accs-schemas",
		"browser-headers",
		"@lit-protocol/crypto",
		"js-sha256",
		"blakejs",
	}
	return []Wrapper{
		{
			Name:      "lilypad-wrapper",
			Externals: Externals{},
			Wasm: &Wasm{
				Binary:  "go/mymodule.wasm",
				Loader:  "src/wasm.js",
				Exports: []string{"processData"},
			},
		},
		{
			Name:      "lit-wrapper",
			Externals: Externals{Server: litExternals, Browser: litExternals},
			Patches:   []string{patch.StripSessionSigLog},
			Sourcemap: true,
		},
		{
			Name: "web-storage-wrapper",
			Patches: []string{
				"web-storage-digest-buffer",
				"web-storage-legacy-endpoint",
				"web-storage-legacy-did",
			},
		},
	}
}

// defaultValues seeds the koanf tree before any file is read.
func defaultValues() map[string]any {
	return map[string]any{
		"maps_dir":   DefaultMapsDir,
		"manifest":   DefaultManifest,
		"workspace":  DefaultWorkspace,
		"hook":       DefaultHook,
		"parallel":   DefaultParallel,
		"verbose":    false,
		"log_format": DefaultLogFormat,
	}
}

// ApplyDefaults fills unset fields. Wrappers are replaced by the defaults
// only when none are configured; the isolation set defaults to every
// wrapper.
func (c *Config) ApplyDefaults() {
	if len(c.Wrappers) == 0 {
		c.Wrappers = DefaultWrappers()
	}
	if c.Parallel < 1 {
		c.Parallel = DefaultParallel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if len(c.Workspace) == 0 {
		c.Workspace = DefaultWorkspace
	}
	for i := range c.Wrappers {
		w := &c.Wrappers[i]
		if w.Dir == "" {
			w.Dir = "packages/" + w.Name
		}
		if w.Entry == "" {
			w.Entry = DefaultEntry
		}
		if w.OutDir == "" {
			w.OutDir = DefaultOutDir
		}
	}
	if len(c.Isolation) == 0 {
		c.Isolation = c.WrapperNames()
	}
}
