package install

import (
	"slices"
	"strconv"
	"strings"
)

// PnpmfileName is the file pnpm reads install hooks from.
const PnpmfileName = ".pnpmfile.cjs"

// RenderPnpmfile renders a readPackage hook that applies p during pnpm
// installs. It is generated from the same policy the plan uses.
func RenderPnpmfile(p Policy) string {
	names := slices.Clone(p.Isolate)
	slices.Sort(names)
	names = slices.Compact(names)

	var b strings.Builder
	b.WriteString("// Code generated by wrapkit plan --write-hook. DO NOT EDIT.\n\n")
	b.WriteString("const ISOLATED = new Set([\n")
	for _, n := range names {
		b.WriteString("  " + strconv.Quote(n) + ",\n")
	}
	b.WriteString("]);\n\n")
	b.WriteString(`module.exports = {
  hooks: {
    readPackage(pkg) {
      if (ISOLATED.has(pkg.name) && pkg.dependencies) {
        pkg.dependenciesMeta = pkg.dependenciesMeta || {};
        for (const dep of Object.keys(pkg.dependencies)) {
          pkg.dependenciesMeta[dep] = pkg.dependenciesMeta[dep] || {};
          pkg.dependenciesMeta[dep].injected = true;
        }
      }
      return pkg;
    },
  },
};
`)
	return b.String()
}
