package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/wasmembed"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type embedOptions struct {
	wasm    string
	out     string
	exports []string
	wrapper string
}

// NewEmbedWasmCommand creates the embed-wasm command.
func NewEmbedWasmCommand() *cobra.Command {
	opts := &embedOptions{}

	cmd := &cobra.Command{
		Use:   "embed-wasm",
		Short: "Generate an ES module that embeds a WebAssembly binary",
		Long: `Generate a self-contained ES module loader for a WebAssembly binary.

The binary is validated and its imports and exports are read from the
module itself. The loader inlines the binary as base64, stubs every import,
instantiates the module once on first use and exposes one async function per
requested export.`,
		Example: `  # Embed an explicit binary
  wrapkit embed-wasm --wasm go/mymodule.wasm --out src/wasm.js --export processData

  # Use a wrapper's configured wasm settings
  wrapkit embed-wasm --wrapper lilypad-wrapper`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmbedWasm(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.wasm, "wasm", "", "Path to the .wasm binary")
	cmd.Flags().StringVar(&opts.out, "out", "", "Path of the generated loader")
	cmd.Flags().StringSliceVar(&opts.exports, "export", nil, "Exported function to wrap (default: all)")
	cmd.Flags().StringVar(&opts.wrapper, "wrapper", "", "Take the settings from this wrapper's config")
	cmd.MarkFlagsMutuallyExclusive("wrapper", "wasm")
	cmd.MarkFlagsMutuallyExclusive("wrapper", "out")

	return cmd
}

func runEmbedWasm(cmd *cobra.Command, opts *embedOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	eo := wasmembed.Options{WasmPath: opts.wasm, OutPath: opts.out, Exports: opts.exports}
	if opts.wrapper != "" {
		w, ok := cc.Cfg.Wrapper(opts.wrapper)
		if !ok {
			return fmt.Errorf("unknown wrapper %q", opts.wrapper)
		}
		if w.Wasm == nil {
			return fmt.Errorf("wrapper %q has no wasm settings", opts.wrapper)
		}
		eo.WasmPath = w.Path(w.Wasm.Binary)
		eo.OutPath = w.Path(w.Wasm.Loader)
		if len(eo.Exports) == 0 {
			eo.Exports = w.Wasm.Exports
		}
	}
	if eo.WasmPath == "" || eo.OutPath == "" {
		return fmt.Errorf("--wasm and --out are required unless --wrapper is given")
	}
	if eo.WasmPath, err = filepath.Abs(eo.WasmPath); err != nil {
		return err
	}
	if eo.OutPath, err = filepath.Abs(eo.OutPath); err != nil {
		return err
	}

	res, err := wasmembed.NewEncoder(cc.Fs, cc.Logger).Encode(cmd.Context(), eo)
	if err != nil {
		return err
	}

	cc.Renderer.Success("%s (%s) -> %s (%s)",
		cc.Cfg.Rel(eo.WasmPath), humanize.Bytes(uint64(res.WasmSize)),
		cc.Cfg.Rel(res.OutPath), humanize.Bytes(uint64(res.Size)))
	cc.Renderer.Muted("  exports: %s", strings.Join(res.Exports, ", "))
	if len(res.Module.Imports) > 0 {
		imports := make([]string, len(res.Module.Imports))
		for i, imp := range res.Module.Imports {
			imports[i] = imp.Module + "." + imp.Name
		}
		cc.Renderer.Muted("  stubbed imports: %s", strings.Join(imports, ", "))
	}
	return nil
}
