package commands

import (
	"fmt"
	"path/filepath"

	"github.com/conciliate-app/wrapkit/internal/refs"
	"github.com/spf13/cobra"
)

// NewRefsCommand creates the refs command.
func NewRefsCommand() *cobra.Command {
	var (
		dryRun    bool
		manifests []string
	)

	modes := make([]string, len(refs.Modes))
	for i, m := range refs.Modes {
		modes[i] = string(m)
	}

	cmd := &cobra.Command{
		Use:   "refs <original|file|skip-wrappers>",
		Short: "Rewrite dependency references in package manifests",
		Long: `Rewrite the dependency references of package manifests from the reference
maps in the maps directory.

Modes:
  original        linked references as recorded (workspace:, link:)
  file            file: paths to packed packages, falling back to linked
  skip-wrappers   like file, but in-repo wrapper packages stay untouched

Both maps are read fresh on every run. A missing map or unknown mode fails
before any manifest is touched; a manifest is written only when a value
actually changes.`,
		Example: `  # Point the app at packed wrapper tarballs
  wrapkit refs file

  # Show what would change without writing
  wrapkit refs original --dry-run

  # Rewrite wrapper manifests too
  wrapkit refs skip-wrappers --manifest package.json --manifest packages/lit-wrapper/package.json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: modes,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefs(cmd, args[0], manifests, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print a unified diff instead of writing")
	cmd.Flags().StringArrayVar(&manifests, "manifest", nil, "Manifest to rewrite, repeatable (default: the project package.json)")

	return cmd
}

func runRefs(cmd *cobra.Command, modeArg string, manifests []string, dryRun bool) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg, r := cc.Cfg, cc.Renderer

	mode, err := refs.ParseMode(modeArg)
	if err != nil {
		return err
	}

	paths := []string{cfg.Manifest}
	if len(manifests) > 0 {
		paths = make([]string, len(manifests))
		for i, m := range manifests {
			if filepath.IsAbs(m) {
				paths[i] = m
			} else {
				paths[i] = cfg.Path(m)
			}
		}
	}

	results, err := refs.NewRewriter(cc.Fs, cfg.MapsDir, cc.Logger).Run(mode, paths, dryRun)
	if err != nil {
		return err
	}

	for _, res := range results {
		rel := cfg.Rel(res.Path)
		switch {
		case !res.Changed():
			r.Muted("%s: no changes needed", rel)
		case dryRun:
			_, _ = fmt.Fprint(r.Writer(), res.Diff)
		default:
			r.Success("%s: %d reference(s) set to %s", rel, len(res.Changes), mode)
			for _, sec := range res.Restored {
				r.Muted("  restored %s from its parked copy", sec)
			}
		}
	}
	return nil
}
