package commands

import (
	"fmt"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/cli/output"
	"github.com/conciliate-app/wrapkit/internal/fsutil"
	"github.com/conciliate-app/wrapkit/internal/install"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type planOptions struct {
	format    string
	writeHook bool
	apply     bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how workspace dependencies are installed",
		Long: `Compute the install plan for the workspace: every direct dependency of an
isolated wrapper package is injected (installed privately) and every other
edge is hoisted.

The plan also lists isolation names that match no workspace package and
packages that isolated wrappers require at different major versions.

--write-hook regenerates the package manager hook from the same policy, and
--apply writes the injection metadata into the isolated manifests.`,
		Example: `  # Show the plan
  wrapkit plan

  # Machine-readable plan
  wrapkit plan --format yaml

  # Regenerate .pnpmfile.cjs and mark isolated dependencies injected
  wrapkit plan --write-hook --apply`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format (table|yaml)")
	cmd.Flags().BoolVar(&opts.writeHook, "write-hook", false, "Write the package manager hook file")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write injection metadata into isolated manifests")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runPlan(cmd *cobra.Command, opts *planOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg, r := cc.Cfg, cc.Renderer

	if opts.format != "table" && opts.format != "yaml" {
		return fmt.Errorf("invalid format %q (expected table or yaml)", opts.format)
	}

	graph, err := install.LoadWorkspaceGraph(cc.Fs, cfg.ProjectRoot, cfg.Workspace)
	if err != nil {
		return err
	}
	policy := install.Policy{Isolate: cfg.Isolation}
	plan := install.ComputeInstallPlan(graph, policy)

	for _, name := range plan.Unmatched {
		cc.Logger.Warn("isolation name matches no workspace package", "package", name)
	}

	if opts.format == "yaml" {
		enc := yaml.NewEncoder(r.Writer())
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	} else {
		renderPlan(r, plan, policy)
	}

	if opts.writeHook {
		if err := fsutil.WriteFileAtomic(cc.Fs, cfg.Hook, []byte(install.RenderPnpmfile(policy)), 0o644); err != nil {
			return fmt.Errorf("write hook: %w", err)
		}
		r.Success("wrote %s", cfg.Rel(cfg.Hook))
	}

	if opts.apply {
		changed, err := install.ApplyPlan(cc.Fs, graph, policy)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			r.Muted("injection metadata already up to date")
		}
		for _, path := range changed {
			r.Success("marked dependencies injected in %s", cfg.Rel(path))
		}
	}
	return nil
}

func renderPlan(r *output.Renderer, plan install.Plan, policy install.Policy) {
	rows := make([]table.Row, 0, len(plan.Edges))
	for _, e := range plan.Edges {
		rows = append(rows, table.Row{e.From, e.To, e.Spec, e.Mode})
	}
	r.Header("Install plan")
	r.Table(table.Row{"From", "To", "Spec", "Mode"}, rows)

	if len(plan.Unmatched) > 0 {
		r.Warning("isolation names not found in the workspace: %s", strings.Join(plan.Unmatched, ", "))
	}

	if len(plan.Conflicts) > 0 {
		r.Header("Version conflicts between isolated packages")
		var crow []table.Row
		for _, c := range plan.Conflicts {
			for _, req := range c.Requirements {
				crow = append(crow, table.Row{c.Package, req.Wrapper, req.Spec, req.Major})
			}
		}
		r.Table(table.Row{"Package", "Required by", "Spec", "Major"}, crow)
	}

	if len(policy.Isolate) > 0 {
		r.Muted("Reminder: the application bundler must treat these packages as external: %s",
			strings.Join(policy.Isolate, ", "))
	}
}
