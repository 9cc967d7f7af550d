package wasmembed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/conciliate-app/wrapkit/internal/fsutil"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// Options configures one encoding.
type Options struct {
	WasmPath string
	OutPath  string
	// Exports are the functions to wrap. Empty wraps every exported
	// function with a usable name.
	Exports []string
}

// Result describes a written loader.
type Result struct {
	OutPath  string
	WasmSize int
	Size     int
	Module   *Module
	Exports  []string
}

// Encoder writes WASM loaders.
type Encoder struct {
	Fs     afero.Fs
	Logger *slog.Logger
}

// NewEncoder creates an encoder.
func NewEncoder(fs afero.Fs, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Encoder{Fs: fs, Logger: logger}
}

// Encode validates the binary, checks the requested exports exist and
// atomically writes the loader.
func (e *Encoder) Encode(ctx context.Context, opts Options) (*Result, error) {
	wasm, err := afero.ReadFile(e.Fs, opts.WasmPath)
	if err != nil {
		return nil, fmt.Errorf("read wasm: %w", err)
	}
	mod, err := Inspect(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.WasmPath, err)
	}

	exports := opts.Exports
	if len(exports) == 0 {
		for _, name := range mod.Exports {
			if ValidExportName(name) {
				exports = append(exports, name)
			}
		}
		if len(exports) == 0 {
			return nil, fmt.Errorf("%s exports no functions", opts.WasmPath)
		}
	}
	for _, name := range exports {
		if !mod.HasExport(name) {
			return nil, fmt.Errorf("%s does not export function %q (exports: %v)", opts.WasmPath, name, mod.Exports)
		}
	}

	src, err := Render(filepath.Base(opts.WasmPath), wasm, mod.Imports, exports)
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(e.Fs, opts.OutPath, src, 0o644); err != nil {
		return nil, err
	}

	e.Logger.Info("wrote wasm loader",
		"out", opts.OutPath,
		"wasm", humanize.Bytes(uint64(len(wasm))),
		"loader", humanize.Bytes(uint64(len(src))),
		"imports", len(mod.Imports),
	)
	return &Result{
		OutPath:  opts.OutPath,
		WasmSize: len(wasm),
		Size:     len(src),
		Module:   mod,
		Exports:  exports,
	}, nil
}
