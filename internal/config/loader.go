package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment variable overrides, e.g. WRAPKIT_MAPS_DIR.
const EnvPrefix = "WRAPKIT_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// flags that select the config itself rather than set a value in it.
var locatorFlags = map[string]bool{"config": true, "project-dir": true}

// configExistsIn returns the config file in dir, or "".
func configExistsIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a wrapkit config
// file. Returns "" if none is found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Explicit --project-dir flag
//  2. Directory of an explicit config file
//  3. Search upward from CWD for wrapkit.yaml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Lookup("project-dir") != nil && flags.Changed("project-dir") {
		if dir, _ := flags.GetString("project-dir"); dir != "" {
			return absPath(dir)
		}
	}
	if cfgFile != "" {
		return filepath.Dir(absPath(cfgFile))
	}
	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Load reads the configuration. cfgFile may be empty, in which case the
// project root is searched for wrapkit.yaml. flags may be nil; only flags
// that were explicitly set override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	projectRoot := inferProjectRoot(cfgFile, flags)

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		cfgFile = configExistsIn(projectRoot)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, &Error{Key: "file", Err: fmt.Errorf("error reading config file %s: %w", cfgFile, err)}
		}
	}

	// 3. Environment variables: WRAPKIT_MAPS_DIR -> maps_dir
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || locatorFlags[f.Name] {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &Error{Key: "file", Err: fmt.Errorf("unable to decode config: %w", err)}
	}
	cfg.ProjectRoot = projectRoot
	if cfgFile != "" {
		cfg.File = absPath(cfgFile)
	}

	cfg.ApplyDefaults()
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths makes project-level paths and wrapper directories absolute.
func (c *Config) resolvePaths() {
	c.MapsDir = c.Path(c.MapsDir)
	c.Manifest = c.Path(c.Manifest)
	c.Hook = c.Path(c.Hook)
	for i := range c.Wrappers {
		c.Wrappers[i].Dir = c.Path(c.Wrappers[i].Dir)
	}
}

// Default returns the configuration used when no file, environment or
// flags are present, rooted at projectRoot.
func Default(projectRoot string) *Config {
	cfg := &Config{
		ProjectRoot: projectRoot,
		MapsDir:     DefaultMapsDir,
		Manifest:    DefaultManifest,
		Hook:        DefaultHook,
		Parallel:    DefaultParallel,
		LogFormat:   DefaultLogFormat,
	}
	cfg.ApplyDefaults()
	cfg.resolvePaths()
	return cfg
}
