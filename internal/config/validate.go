package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/conciliate-app/wrapkit/internal/patch"
	"github.com/conciliate-app/wrapkit/internal/shim"
	"github.com/conciliate-app/wrapkit/internal/target"
	"github.com/conciliate-app/wrapkit/internal/wasmembed"
	"github.com/hashicorp/go-multierror"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(key, format string, args ...any) {
		result = multierror.Append(result, Errorf(key, format, args...))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		add("log_format", "must be text or json, got %q", c.LogFormat)
	}
	if c.Parallel < 1 {
		add("parallel", "must be at least 1, got %d", c.Parallel)
	}

	ruleNames := make(map[string]bool)
	for i, p := range c.Patches {
		key := fmt.Sprintf("patches[%d]", i)
		if p.Name == "" {
			add(key, "name is required")
			continue
		}
		if ruleNames[p.Name] {
			add(key, "duplicate rule name %q", p.Name)
		}
		ruleNames[p.Name] = true
		if _, err := regexp.Compile(p.Pattern); err != nil || p.Pattern == "" {
			add(key, "invalid pattern %q", p.Pattern)
		}
		if _, err := target.ParseAll(p.Targets); err != nil {
			add(key+".targets", "%v", err)
		}
	}

	shims := shim.MustDefault()
	seen := make(map[string]bool)
	for _, w := range c.Wrappers {
		key := "wrappers." + w.Name
		if w.Name == "" {
			add("wrappers", "wrapper name is required")
			continue
		}
		if seen[w.Name] {
			add(key, "duplicate wrapper")
		}
		seen[w.Name] = true

		if _, err := w.BuildTargets(); err != nil {
			add(key+".targets", "%v", err)
		}
		for _, name := range w.Patches {
			if ruleNames[name] {
				continue
			}
			if _, err := patch.Builtin(name); err != nil {
				add(key+".patches", "%v", err)
			}
		}
		for _, s := range w.Shims {
			if s.Name == "" || (s.Source == "" && s.File == "") {
				add(key+".shims", "shim needs a name and a source or file")
			}
		}

		for _, ext := range w.Externals.Browser {
			if target.IsNodeBuiltin(ext) {
				add(key+".externals.browser", "%q is a Node.js built-in and cannot stay external in a browser build", ext)
			}
			if slices.Contains(w.Native, ext) {
				add(key+".externals.browser", "%q has native bindings and cannot stay external in a browser build", ext)
			}
		}
		if w.Builds(target.Browser) {
			for _, n := range w.Native {
				if !shims.Has(n) && !slices.ContainsFunc(w.Shims, func(s Shim) bool { return s.Name == n }) {
					add(key+".native", "%q has native bindings and is not shimmed; the browser build cannot include it", n)
				}
			}
		}

		if w.Wasm != nil {
			if w.Wasm.Binary == "" || w.Wasm.Loader == "" {
				add(key+".wasm", "binary and loader are required")
			}
			for _, e := range w.Wasm.Exports {
				if !wasmembed.ValidExportName(e) {
					add(key+".wasm.exports", "%q is not a usable JavaScript function name", e)
				}
			}
		}
	}

	return result.ErrorOrNil()
}

// IsConfigError reports whether err is, or aggregates, a configuration
// error.
func IsConfigError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}
