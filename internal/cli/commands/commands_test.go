package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRefsCommand(t *testing.T) {
	cmd := NewRefsCommand()

	assert.Equal(t, "refs <original|file|skip-wrappers>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.Equal(t, []string{"original", "file", "skip-wrappers"}, cmd.ValidArgs)

	for _, flag := range []string{"dry-run", "manifest"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewBuildCommand(t *testing.T) {
	cmd := NewBuildCommand()

	assert.Equal(t, "build [wrapper...]", cmd.Use)
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	for _, flag := range []string{"target", "parallel", "watch"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "w", cmd.Flags().Lookup("watch").Shorthand)
}

func TestNewPatchCommand(t *testing.T) {
	cmd := NewPatchCommand()

	assert.Equal(t, "patch <artifact>...", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("rule"))
	assert.Error(t, cmd.Args(cmd, nil), "at least one artifact is required")
}

func TestNewEmbedWasmCommand(t *testing.T) {
	cmd := NewEmbedWasmCommand()

	assert.Equal(t, "embed-wasm", cmd.Use)
	for _, flag := range []string{"wasm", "out", "export", "wrapper"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewPlanCommand(t *testing.T) {
	cmd := NewPlanCommand()

	assert.Equal(t, "plan", cmd.Use)
	assert.Equal(t, "table", cmd.Flags().Lookup("format").DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("write-hook"))
	assert.NotNil(t, cmd.Flags().Lookup("apply"))
}

func TestNewVerifyCommand(t *testing.T) {
	cmd := NewVerifyCommand()

	assert.Equal(t, "verify [wrapper...]", cmd.Use)
	assert.NotEmpty(t, cmd.Long)
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 replacement", pluralize(1, "replacement"))
	assert.Equal(t, "3 replacements", pluralize(3, "replacement"))
}
