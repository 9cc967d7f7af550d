package wasmembed

import (
	"context"
	"strings"
	"testing"

	"github.com/conciliate-app/wrapkit/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processDataWasm is a minimal module importing env.log and exporting a
// no-op processData function.
var processDataWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: () -> ()
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	// import section: env.log
	0x02, 0x0b, 0x01, 0x03, 'e', 'n', 'v', 0x03, 'l', 'o', 'g', 0x00, 0x00,
	// function section
	0x03, 0x02, 0x01, 0x00,
	// export section: processData = func 1
	0x07, 0x0f, 0x01, 0x0b, 'p', 'r', 'o', 'c', 'e', 's', 's', 'D', 'a', 't', 'a', 0x00, 0x01,
	// code section
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

func TestInspect(t *testing.T) {
	mod, err := Inspect(context.Background(), processDataWasm)
	require.NoError(t, err)

	assert.Equal(t, []Import{{Module: "env", Name: "log"}}, mod.Imports)
	assert.Equal(t, []string{"processData"}, mod.Exports)
	assert.True(t, mod.HasExport("processData"))
	assert.False(t, mod.HasExport("missing"))
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect(context.Background(), []byte("not wasm"))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	src, err := Render("mymodule.wasm", processDataWasm, []Import{{Module: "env", Name: "log"}}, []string{"processData"})
	require.NoError(t, err)
	out := string(src)

	assert.True(t, strings.HasPrefix(out, "// Code generated by wrapkit embed-wasm from mymodule.wasm. DO NOT EDIT."))
	assert.Contains(t, out, `const wasmBase64 = "AGFzbQEAAAAB`)
	assert.Contains(t, out, `Buffer.from(wasmBase64, "base64")`)
	assert.Contains(t, out, "atob(wasmBase64)")
	for _, name := range []string{`"log"`, `"syscall/js.valueGet"`, `"syscall/js.valuePrepareString"`, `"syscall/js.valueSetIndex"`} {
		assert.Contains(t, out, "    "+name+": noop,")
	}
	assert.Equal(t, 1, strings.Count(out, `"env": {`))
	assert.Contains(t, out, "export async function processData(...args) {")
	assert.Contains(t, out, "return exports.processData(...args);")
	assert.Contains(t, out, "export default { init, processData };")
}

func TestRenderRejectsBadExportNames(t *testing.T) {
	for _, name := range []string{"process-data", "1fn", "default", "init", ""} {
		_, err := Render("m.wasm", processDataWasm, nil, []string{name})
		assert.Error(t, err, name)
	}
}

func TestEncode(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lilypad/go/mymodule.wasm", processDataWasm, 0o644))
	enc := NewEncoder(fs, testutil.NewTestLogger(t))

	res, err := enc.Encode(context.Background(), Options{
		WasmPath: "/lilypad/go/mymodule.wasm",
		OutPath:  "/lilypad/src/wasm.js",
		Exports:  []string{"processData"},
	})
	require.NoError(t, err)
	assert.Equal(t, len(processDataWasm), res.WasmSize)
	assert.Equal(t, []string{"processData"}, res.Exports)

	written, err := afero.ReadFile(fs, "/lilypad/src/wasm.js")
	require.NoError(t, err)
	assert.Equal(t, res.Size, len(written))
	assert.Contains(t, string(written), "export async function processData")
}

func TestEncodeDefaultsToAllExports(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/m.wasm", processDataWasm, 0o644))

	res, err := NewEncoder(fs, nil).Encode(context.Background(), Options{WasmPath: "/m.wasm", OutPath: "/out/loader.js"})
	require.NoError(t, err)
	assert.Equal(t, []string{"processData"}, res.Exports)
}

func TestEncodeMissingExport(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/m.wasm", processDataWasm, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/out/loader.js", []byte("previous"), 0o644))

	_, err := NewEncoder(fs, nil).Encode(context.Background(), Options{
		WasmPath: "/m.wasm",
		OutPath:  "/out/loader.js",
		Exports:  []string{"runInference"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"runInference"`)

	prev, err := afero.ReadFile(fs, "/out/loader.js")
	require.NoError(t, err)
	assert.Equal(t, "previous", string(prev))
}

func TestEncodeMissingBinary(t *testing.T) {
	_, err := NewEncoder(afero.NewMemMapFs(), nil).Encode(context.Background(), Options{WasmPath: "/nope.wasm", OutPath: "/x.js"})
	assert.Error(t, err)
}
