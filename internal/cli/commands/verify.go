package commands

import (
	"fmt"

	"github.com/conciliate-app/wrapkit/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [wrapper...]",
		Short: "Check built artifacts for disallowed runtime imports",
		Long: `Scan the artifacts on disk for every import, export-from, dynamic import and
require call. Browser artifacts may only import their browser allowlist;
server artifacts may import their server allowlist and Node.js built-ins.
Nothing is rebuilt.`,
		Example: `  # Verify every wrapper
  wrapkit verify

  # Verify one wrapper
  wrapkit verify web-storage-wrapper`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args)
		},
	}
}

func runVerify(cmd *cobra.Command, names []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg, r := cc.Cfg, cc.Renderer

	findings, err := pipeline.Verify(cc.Fs, cfg, names)
	if err != nil {
		return err
	}

	rows := make([]table.Row, 0, len(findings))
	for _, f := range findings {
		status := "ok"
		size := "-"
		switch {
		case f.Missing:
			status = "missing"
		case f.Err != nil:
			status = "unparsable"
		case len(f.Violations) > 0:
			status = fmt.Sprintf("%d violation(s)", len(f.Violations))
		}
		if !f.Missing {
			size = humanize.Bytes(uint64(f.Size))
		}
		rows = append(rows, table.Row{f.Wrapper, f.Target, size, len(f.Imports), status})
	}
	r.Table(table.Row{"Wrapper", "Target", "Size", "Imports", "Status"}, rows)

	failed := pipeline.Failed(findings)
	for _, f := range failed {
		if f.Missing {
			r.Failure("%s (%s): %s not found, run wrapkit build", f.Wrapper, f.Target, cfg.Rel(f.Path))
			continue
		}
		if f.Err != nil {
			r.Failure("%s (%s): %v", f.Wrapper, f.Target, f.Err)
			continue
		}
		for _, v := range f.Violations {
			r.Failure("%s (%s): %s %q at line %d", f.Wrapper, f.Target, v.Kind, v.Path, v.Line)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d artifact(s) failed verification", len(failed), len(findings))
	}
	r.Success("%d artifact(s) verified", len(findings))
	return nil
}
