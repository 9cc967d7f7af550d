package commands

import (
	"fmt"
	"path/filepath"

	"github.com/conciliate-app/wrapkit/internal/patch"
	"github.com/conciliate-app/wrapkit/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewPatchCommand creates the patch command.
func NewPatchCommand() *cobra.Command {
	var rules []string

	cmd := &cobra.Command{
		Use:   "patch <artifact>...",
		Short: "Apply patch rules to built artifacts",
		Long: `Apply patch rules to artifacts in place.

Rules are looked up in the project's patches first, then in the built-in
set. Without --rule the built-in default set is applied. A rule marked
change_required fails when it leaves an artifact unchanged, so a rule that
silently stops matching after an SDK upgrade is caught.`,
		Example: `  # Strip the session diagnostic from a bundle
  wrapkit patch packages/lit-wrapper/dist/index.js

  # Apply specific rules
  wrapkit patch dist/index.browser.js --rule web-storage-legacy-endpoint --rule web-storage-legacy-did`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatch(cmd, args, rules)
		},
	}

	cmd.Flags().StringArrayVar(&rules, "rule", nil, "Rule to apply, repeatable (default: built-in default set)")
	_ = cmd.RegisterFlagCompletionFunc("rule", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return patch.BuiltinNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runPatch(cmd *cobra.Command, artifacts, ruleNames []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	rules := patch.DefaultRules()
	if len(ruleNames) > 0 {
		if rules, err = pipeline.ResolveRules(cc.Cfg, ruleNames); err != nil {
			return err
		}
	}

	p := patch.NewPatcher(cc.Fs, rules, cc.Logger)
	for _, a := range artifacts {
		path, err := filepath.Abs(a)
		if err != nil {
			return err
		}
		results, err := p.PatchFile(path)
		if err != nil {
			return err
		}
		total := 0
		for _, res := range results {
			total += res.Matches
			if cc.Cfg.Verbose {
				cc.Renderer.Muted("  %s: %d match(es)", res.Rule, res.Matches)
			}
		}
		if total == 0 {
			cc.Renderer.Muted("%s: no changes", a)
			continue
		}
		cc.Renderer.Success("%s: %s", a, pluralize(total, "replacement"))
	}
	return nil
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
