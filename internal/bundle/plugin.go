package bundle

import (
	"fmt"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/shim"
	"github.com/evanw/esbuild/pkg/api"
)

// shimNamespace holds the virtual modules the shim plugin serves.
const shimNamespace = "wrapkit-shim"

// shimPlugin resolves every name in table, bare or "node:"-prefixed, to the
// table's inline source.
func shimPlugin(table *shim.Table) api.Plugin {
	return api.Plugin{
		Name: "wrapkit-shims",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: table.Filter()},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      strings.TrimPrefix(args.Path, "node:"),
						Namespace: shimNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: shimNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					s, ok := table.Lookup(args.Path)
					if !ok {
						return api.OnLoadResult{}, fmt.Errorf("no shim registered for %q", args.Path)
					}
					src := s.Source
					return api.OnLoadResult{Contents: &src, Loader: api.LoaderJS}, nil
				})
		},
	}
}
