package scan

import (
	"bytes"
	"errors"
	"testing"

	"github.com/conciliate-app/wrapkit/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverBundle = `import { createRequire } from "node:module";
import * as contracts from "@lit-protocol/contracts";
import sha256 from 'js-sha256';
import "./side-effect.js";
export * from "@lit-protocol/accs-schemas";
export { a as b } from "browser-headers";
const crypto = __require("crypto");
const fs = require('fs');
const later = await import("blakejs");
const notAnImport = obj.require("ignored");
const s = "import x from 'quoted-text-is-not-an-import'";
var __defProp = Object.defineProperty;
`

func TestScan(t *testing.T) {
	got, err := Scan([]byte(serverBundle))
	require.NoError(t, err)

	want := []Import{
		{Path: "node:module", Kind: Static, Line: 1},
		{Path: "@lit-protocol/contracts", Kind: Static, Line: 2},
		{Path: "js-sha256", Kind: Static, Line: 3},
		{Path: "./side-effect.js", Kind: Static, Line: 4},
		{Path: "@lit-protocol/accs-schemas", Kind: Export, Line: 5},
		{Path: "browser-headers", Kind: Export, Line: 6},
		{Path: "crypto", Kind: Require, Line: 7},
		{Path: "fs", Kind: Require, Line: 8},
		{Path: "blakejs", Kind: Dynamic, Line: 9},
	}
	assert.Equal(t, want, got)
}

func TestScanDeduplicates(t *testing.T) {
	src := "require('fs');\nrequire('fs');\nimport('fs');\n"
	got, err := Scan([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, []Import{
		{Path: "fs", Kind: Require, Line: 1},
		{Path: "fs", Kind: Dynamic, Line: 3},
	}, got)

	paths, err := Paths([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"fs"}, paths)
}

func TestScanMinified(t *testing.T) {
	src := `import{a as b}from"x-lib";export*from"y-lib";var c=require("z-lib");`
	paths, err := Paths([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"x-lib", "y-lib", "z-lib"}, paths)
}

func TestCheckBrowserArtifact(t *testing.T) {
	allowlist := []string{"@lit-protocol/contracts"}
	allowed := func(p string) bool { return target.Browser.Allows(p, allowlist) }

	clean := `import c from "@lit-protocol/contracts";
const shim = { readFileSync() { throw new Error("fs.readFileSync is not available in the browser build"); } };
`
	got, err := Check([]byte(clean), allowed)
	require.NoError(t, err)
	assert.Empty(t, got)

	dirty := "import fs from \"node:fs\";\nimport c from \"@lit-protocol/contracts\";\nconst p = require(\"path\");\n"
	got, err = Check([]byte(dirty), allowed)
	require.NoError(t, err)
	assert.Equal(t, []Import{
		{Path: "node:fs", Kind: Static, Line: 1},
		{Path: "path", Kind: Require, Line: 3},
	}, got)
}

func TestCheckServerArtifact(t *testing.T) {
	allowed := func(p string) bool { return target.Server.Allows(p, []string{"js-sha256"}) }
	got, err := Check([]byte(serverBundle), allowed)
	require.NoError(t, err)

	var paths []string
	for _, v := range got {
		paths = append(paths, v.Path)
	}
	assert.Equal(t, []string{
		"@lit-protocol/contracts",
		"./side-effect.js",
		"@lit-protocol/accs-schemas",
		"browser-headers",
		"blakejs",
	}, paths)
}

func TestScanIgnoresLiteralsAndComments(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "error message",
			src:  `throw new Error("Failed to import 'ipfs-unixfs' in this context");`,
		},
		{
			name: "concatenated message",
			src:  `const name = "x"; throw new Error("Failed to import '" + name + "' dynamically: use import 'x' instead");`,
		},
		{
			name: "line comment",
			src:  "// Use require(\"fs\") in Node only\nexport const a = 1;\n",
		},
		{
			name: "block comment",
			src:  "/* import fs from \"fs\"; export * from \"path\" */\nexport const a = 1;\n",
		},
		{
			name: "helper in string",
			src:  `const hint = "__require('buffer')";`,
		},
		{
			name: "template text",
			src:  "const doc = `import x from \"y\" and require(\"z\")`;",
		},
		{
			name: "template substitution is code",
			src:  "const doc = `loaded ${require(\"z\").name} from \"y\"`;",
			want: []string{"z"},
		},
		{
			name: "regular expression",
			src:  `const re = /require\("fs"\)|import\("os"\)/g; export { re };`,
		},
		{
			name: "division is not a regular expression",
			src:  `const q = a / b; const r = require("lodash"); const w = c / d;`,
			want: []string{"lodash"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Paths([]byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckIgnoresErrorMessages(t *testing.T) {
	src := `import { a } from "@lit-protocol/contracts";
function load(name) {
  throw new Error("Failed to import '" + name + "' dynamically: use import 'x' instead");
}
// Use require("fs") in Node only
export { a, load };
`
	allowed := func(p string) bool { return target.Browser.Allows(p, []string{"@lit-protocol/contracts"}) }
	got, err := Check([]byte(src), allowed)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanParseError(t *testing.T) {
	_, err := Scan([]byte("import {"))
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.NotEmpty(t, parseErr.Messages)
}

func TestMaskLiteralsKeepsOffsets(t *testing.T) {
	src := []byte("const a = 'x\\'y'; // note\n/* multi\nline */ const b = `t${'q'}u`;\n")
	got := maskLiterals(src)

	require.Len(t, got, len(src))
	assert.Equal(t, bytes.Count(src, []byte("\n")), bytes.Count(got, []byte("\n")))
	assert.NotContains(t, string(got), "note")
	assert.NotContains(t, string(got), "multi")
	assert.NotContains(t, string(got), "x")
	assert.Contains(t, string(got), "const b = `")
}
