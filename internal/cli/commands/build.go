package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/conciliate-app/wrapkit/internal/cli/output"
	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/conciliate-app/wrapkit/internal/pipeline"
	"github.com/conciliate-app/wrapkit/internal/target"
	"github.com/conciliate-app/wrapkit/internal/watch"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	targets  []string
	parallel int
	watch    bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build [wrapper...]",
		Short: "Compile and bundle wrapper packages",
		Long: `Build self-contained server and browser artifacts for wrapper packages.

For each wrapper, in order: embed the WASM loader (when configured), compile
the sources, bundle each target, apply the wrapper's patch rules and verify
that only allowed runtime imports remain. Artifacts are written only after
they pass; a failure leaves the previous artifacts in place.`,
		Example: `  # Build every configured wrapper
  wrapkit build

  # Build one wrapper for the browser only
  wrapkit build lit-wrapper --target browser

  # Rebuild on source changes
  wrapkit build --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.targets, "target", nil, "Build only these targets (server, browser)")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0, "Number of wrappers built concurrently")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Rebuild wrappers when their sources change")

	_ = cmd.RegisterFlagCompletionFunc("target", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(target.Server), string(target.Browser)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runBuild(cmd *cobra.Command, names []string, opts *buildOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	var targets []target.Target
	if len(opts.targets) > 0 {
		if targets, err = target.ParseAll(opts.targets); err != nil {
			return err
		}
	}

	cfg := *cc.Cfg
	if cmd.Flags().Changed("parallel") {
		if opts.parallel < 1 {
			return config.Errorf("parallel", "must be at least 1, got %d", opts.parallel)
		}
		cfg.Parallel = opts.parallel
	}

	p, err := pipeline.New(pipeline.Options{
		Config:  &cfg,
		Fs:      cc.Fs,
		Logger:  cc.Logger,
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
		Targets: targets,
	})
	if err != nil {
		return err
	}

	report, err := p.BuildAll(cmd.Context(), names)
	if err != nil {
		return err
	}
	renderReport(cc.Renderer, &cfg, report.Wrappers)
	cc.Renderer.Success("built %d wrapper(s) in %s", len(report.Wrappers), report.Duration.Round(time.Millisecond))

	if !opts.watch {
		return nil
	}
	return watchAndRebuild(cmd, cc, &cfg, p, names)
}

func watchAndRebuild(cmd *cobra.Command, cc *CommandContext, cfg *config.Config, p *pipeline.Pipeline, names []string) error {
	wrappers, err := cfg.Select(names)
	if err != nil {
		return err
	}

	var ignore []string
	for _, w := range wrappers {
		if w.Wasm != nil {
			ignore = append(ignore, w.Path(w.Wasm.Loader))
		}
	}

	watcher, err := watch.New(watch.Options{Logger: cc.Logger, Ignore: ignore})
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, w := range wrappers {
		dirs := []string{w.SrcDir()}
		if w.Wasm != nil {
			dirs = append(dirs, filepath.Dir(w.Path(w.Wasm.Binary)))
		}
		if err := watcher.Add(w.Name, dirs...); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc.Renderer.Muted("watching %s, press Ctrl+C to stop", strings.Join(watcher.Groups(), ", "))

	return watcher.Run(ctx, func(ctx context.Context, name string) error {
		w, ok := cfg.Wrapper(name)
		if !ok {
			return fmt.Errorf("unknown wrapper %q", name)
		}
		wr, err := p.BuildWrapper(ctx, w)
		if err != nil {
			cc.Renderer.Failure("%v", err)
			return err
		}
		renderReport(cc.Renderer, cfg, []pipeline.WrapperReport{*wr})
		cc.Renderer.Success("rebuilt %s in %s", w.Name, wr.Duration.Round(time.Millisecond))
		return nil
	})
}

func renderReport(r *output.Renderer, cfg *config.Config, wrappers []pipeline.WrapperReport) {
	var rows []table.Row
	for _, wr := range wrappers {
		for _, a := range wr.Artifacts {
			externals := "-"
			if len(a.Externals) > 0 {
				externals = strings.Join(a.Externals, ", ")
			}
			patched := 0
			for _, pr := range a.Patches {
				patched += pr.Matches
			}
			rows = append(rows, table.Row{
				wr.Wrapper,
				a.Target,
				humanize.Bytes(uint64(a.Size)),
				a.Inputs,
				externals,
				patched,
				cfg.Rel(a.Path),
			})
		}
	}
	if len(rows) == 0 {
		return
	}
	r.Table(table.Row{"Wrapper", "Target", "Size", "Inputs", "Externals", "Patched", "Artifact"}, rows)
}
