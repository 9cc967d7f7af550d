package wasmembed

import (
	"bytes"
	"cmp"
	"encoding/base64"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"text/template"
)

// DefaultImports are the host calls a TinyGo binary built for js/wasm
// requests even when unused. They are always stubbed.
var DefaultImports = []Import{
	{Module: "env", Name: "syscall/js.valueGet"},
	{Module: "env", Name: "syscall/js.valuePrepareString"},
	{Module: "env", Name: "syscall/js.valueSetIndex"},
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// reserved names the loader defines itself or JavaScript forbids as
// function names.
var reserved = []string{
	"decode", "init", "importObject", "noop", "wasmBase64", "instance",
	"default", "function", "return", "export", "import", "await", "async",
	"var", "let", "const", "new", "delete", "class", "this", "typeof",
}

// ValidExportName reports whether name can be exported from the loader.
func ValidExportName(name string) bool {
	return identifier.MatchString(name) && !slices.Contains(reserved, name)
}

type importModule struct {
	Name  string
	Funcs []string
}

type loaderData struct {
	Source  string
	Base64  string
	Modules []importModule
	Exports []string
}

var loaderTemplate = template.Must(template.New("loader").Funcs(template.FuncMap{
	"quote": strconv.Quote,
}).Parse(`// Code generated by wrapkit embed-wasm from {{.Source}}. DO NOT EDIT.

const wasmBase64 = "{{.Base64}}";

function decode() {
  if (typeof Buffer !== "undefined") {
    return Buffer.from(wasmBase64, "base64");
  }
  const binary = atob(wasmBase64);
  const bytes = new Uint8Array(binary.length);
  for (let i = 0; i < binary.length; i++) {
    bytes[i] = binary.charCodeAt(i);
  }
  return bytes;
}

const noop = () => {};

const importObject = {
{{- range .Modules}}
  {{quote .Name}}: {
{{- range .Funcs}}
    {{quote .}}: noop,
{{- end}}
  },
{{- end}}
};

let instance;

export function init() {
  if (!instance) {
    instance = WebAssembly.instantiate(decode(), importObject)
      .then((result) => result.instance.exports)
      .catch((err) => {
        instance = undefined;
        throw err;
      });
  }
  return instance;
}
{{range .Exports}}
export async function {{.}}(...args) {
  const exports = await init();
  return exports.{{.}}(...args);
}
{{end}}
export default { init{{range .Exports}}, {{.}}{{end}} };
`))

// Render produces the loader source for wasm. imports are stubbed in
// addition to DefaultImports; exports get one async wrapper each.
func Render(source string, wasm []byte, imports []Import, exports []string) ([]byte, error) {
	for _, e := range exports {
		if !ValidExportName(e) {
			return nil, fmt.Errorf("export %q is not a usable JavaScript function name", e)
		}
	}

	byModule := make(map[string][]string)
	for _, imp := range append(slices.Clone(DefaultImports), imports...) {
		if !slices.Contains(byModule[imp.Module], imp.Name) {
			byModule[imp.Module] = append(byModule[imp.Module], imp.Name)
		}
	}
	var modules []importModule
	for name, funcs := range byModule {
		slices.Sort(funcs)
		modules = append(modules, importModule{Name: name, Funcs: funcs})
	}
	slices.SortFunc(modules, func(a, b importModule) int { return cmp.Compare(a.Name, b.Name) })

	exports = slices.Clone(exports)
	slices.Sort(exports)
	exports = slices.Compact(exports)

	var buf bytes.Buffer
	err := loaderTemplate.Execute(&buf, loaderData{
		Source:  source,
		Base64:  base64.StdEncoding.EncodeToString(wasm),
		Modules: modules,
		Exports: exports,
	})
	if err != nil {
		return nil, fmt.Errorf("render loader: %w", err)
	}
	return buf.Bytes(), nil
}
