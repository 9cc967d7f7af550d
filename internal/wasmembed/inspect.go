// Package wasmembed turns a compiled WebAssembly binary into a plain ES
// module that carries the binary inline and instantiates it on first use.
package wasmembed

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero"
)

// Import is a host function a module expects to be provided.
type Import struct {
	Module string
	Name   string
}

// Module is the linkage surface of a compiled binary.
type Module struct {
	Imports []Import
	Exports []string
}

// HasExport reports whether name is an exported function.
func (m *Module) HasExport(name string) bool {
	_, found := slices.BinarySearch(m.Exports, name)
	return found
}

// Inspect validates wasm and lists its imported and exported functions.
// Imports and exports are sorted.
func Inspect(ctx context.Context, wasm []byte) (*Module, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer func() { _ = rt.Close(ctx) }()

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("invalid wasm module: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	m := &Module{}
	for _, fn := range compiled.ImportedFunctions() {
		modName, name, _ := fn.Import()
		m.Imports = append(m.Imports, Import{Module: modName, Name: name})
	}
	slices.SortFunc(m.Imports, func(a, b Import) int {
		return cmp.Or(cmp.Compare(a.Module, b.Module), cmp.Compare(a.Name, b.Name))
	})
	for name := range compiled.ExportedFunctions() {
		m.Exports = append(m.Exports, name)
	}
	slices.Sort(m.Exports)
	return m, nil
}
