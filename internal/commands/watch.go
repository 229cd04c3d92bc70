package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moasq/storecheck/internal/report"
	"github.com/moasq/storecheck/internal/source"
	"github.com/moasq/storecheck/internal/watch"
)

func newWatchCommand(a *app) *cobra.Command {
	var flags auditFlags
	cmd := &cobra.Command{
		Use:   "watch [project]",
		Short: "Re-run the audit whenever project files change",
		Long: "Runs the audit once, then again each time files under the project change. " +
			"Changes are batched until the tree has been quiet for --debounce.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, cmd, &flags, root)
		},
	}
	flags.register(cmd)
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before re-running")
	return cmd
}

func (a *app) watch(ctx context.Context, cmd *cobra.Command, flags *auditFlags, root string) error {
	ui := a.status(cmd)
	run := func(ctx context.Context) error {
		findings, err := a.audit(ctx, cmd, flags, root)
		if err != nil {
			// A target deleted mid-edit is reported and the watch goes on.
			ui.Error(err.Error())
			return nil
		}
		r := report.Aggregate(findings)
		if err := a.write(cmd, r); err != nil {
			return err
		}
		ui.Info(fmt.Sprintf("%s. Watching %s for changes (Ctrl+C to stop)", r.Verdict, root))
		return nil
	}

	if err := run(ctx); err != nil {
		return err
	}

	w, err := watch.New(root, a.watchOptions())
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.Run(ctx, func(ctx context.Context, paths []string) error {
		ui.Divider()
		ui.Detail("Changed", fmt.Sprintf("%d file(s)", len(paths)))
		return run(ctx)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchOptions ignores the same directories the source scan skips, plus the
// report file when it is written into the project.
func (a *app) watchOptions() watch.Options {
	var ignore []string
	if a.cfg.Output != "" {
		ignore = append(ignore, a.cfg.Output)
	}
	return watch.Options{
		Debounce:    a.cfg.Watch.Debounce,
		ExcludeDirs: append(slices.Clone(source.DefaultExcludeDirs), a.cfg.Source.ExcludeDirs...),
		Ignore:      ignore,
		Logger:      a.log,
	}
}
