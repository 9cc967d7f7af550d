// Package testutil provides fixtures for CLI tests.
package testutil

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

// RootManifest is the fixture's root package.json, in the exact format
// the manifest encoder writes.
const RootManifest = `{
  "name": "app",
  "private": true,
  "dependencies": {
    "lit-wrapper": "workspace:*",
    "web-storage-wrapper": "workspace:*",
    "next": "14.2.0"
  }
}
`

// LitSource is the lit-wrapper entry point. It carries the diagnostic the
// default patch rule removes.
const LitSource = `import { html } from "lit";

export function connect(sigs: Record<string, string>) {
  console.log("sessionSigs", JSON.stringify(sigs));
  return Object.keys(sigs).length;
}

export const badge = () => html` + "`<b>lit</b>`" + `;
`

// StorageSource is the web-storage-wrapper entry point.
const StorageSource = `export const endpoint = "https://up.storacha.network";
export async function upload(data: Uint8Array): Promise<number> {
  return data.byteLength;
}
`

var fixture = map[string]string{
	"wrapkit.yaml": `wrappers:
  - name: lit-wrapper
    externals:
      server: [lit]
      browser: [lit]
    patches: [strip-session-sig-log]
  - name: web-storage-wrapper
    targets: [browser]
`,
	"package.json": RootManifest,
	"dist-packages/package-map.original.json": `{
  "lit-wrapper": "workspace:*",
  "web-storage-wrapper": "workspace:*"
}
`,
	"dist-packages/package-map.file.json": `{
  "lit-wrapper": "file:dist-packages/lit-wrapper-1.0.0.tgz",
  "web-storage-wrapper": "file:dist-packages/web-storage-wrapper-1.0.0.tgz"
}
`,
	"packages/lit-wrapper/package.json": `{
  "name": "lit-wrapper",
  "version": "1.0.0",
  "dependencies": {
    "@lit-protocol/lit-node-client": "^6.4.0",
    "multiformats": "^12.1.3"
  }
}
`,
	"packages/lit-wrapper/src/index.ts": LitSource,
	"packages/web-storage-wrapper/package.json": `{
  "name": "web-storage-wrapper",
  "version": "1.0.0",
  "dependencies": {
    "@web3-storage/w3up-client": "^16.0.0",
    "multiformats": "^13.1.0"
  }
}
`,
	"packages/web-storage-wrapper/src/index.ts": StorageSource,
}

// SetupTestProject creates a temporary wrapkit project with two wrapper
// packages and both reference maps, and returns its root.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	for rel, content := range fixture {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes content to rel under root, creating directories.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
	return path
}

// ReadFile returns the content of rel under root.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// AssertNoANSI fails if s contains ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("output contains ANSI escape codes: %q", s)
	}
}
