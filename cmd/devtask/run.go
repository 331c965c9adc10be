// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/internal/engine"
	"github.com/devtask/devtask/internal/issue"
	"github.com/devtask/devtask/internal/watch"
	"github.com/devtask/devtask/pkg/types"
)

type runFlags struct {
	watch    bool
	patterns []string
	ignore   []string
}

func newRunCommand(app *App) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <id|composite:id>",
		Short: "Run a command or composite",
		Long: `Run a command and stream its progress.

A bare id runs whatever the catalog holds under it. The composite:<id> form
only accepts composites. Children of a sequential composite all run even when
one fails; children of a parallel composite start together. The exit status
is 0 when everything succeeded and 1 otherwise. Interrupting devtask cancels
every running leaf.

With --watch the command runs again whenever a file below the catalog's
directory changes, until devtask is interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.context(cmd.Context())
			eng := app.newEngine()
			if flags.watch {
				return app.watchRun(ctx, eng, args[0], flags)
			}
			return app.runOnce(ctx, eng, args[0])
		},
	}
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "re-run when files below the catalog directory change")
	cmd.Flags().StringSliceVar(&flags.patterns, "watch-pattern", nil, "glob of files that trigger a re-run (default: all files)")
	cmd.Flags().StringSliceVar(&flags.ignore, "watch-ignore", nil, "glob of files that never trigger a re-run")
	return cmd
}

// runOnce plans ref, streams the run's messages to stdout and maps a failed
// run to its exit code.
func (a *App) runOnce(ctx context.Context, eng *engine.Engine, ref string) error {
	planned, err := eng.Plan(ctx, ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.renderIssue(issue.CatalogNotFoundId)
		} else {
			a.renderIssue(issue.CatalogParseErrorId)
		}
		return err
	}
	if planned.Plan.Kind == engine.PlanNotFound {
		a.renderIssue(issue.CommandNotFoundId)
	}

	r := eng.Execute(ctx, planned)
	var code types.ExitCode
	for m := range r.Messages() {
		if m.Done {
			code = m.Code
			continue
		}
		a.printf("%s", m.Line)
	}

	if runErr := r.Err(); runErr != nil {
		a.logger.Debug("Run finished with errors", "run", r.ID(), "state", r.State(), "error", runErr)
		switch {
		case errors.Is(runErr, engine.ErrCycleDetected):
			a.renderIssue(issue.CompositeCycleId)
		case errors.Is(runErr, backend.ErrUnknownComponent), errors.Is(runErr, engine.ErrBackend):
			a.renderIssue(issue.ComponentUnreachableId)
		}
	}
	if code != types.ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

// watchRun runs ref once, then again after every burst of changes. Failed
// runs are reported and do not stop the watch.
func (a *App) watchRun(ctx context.Context, eng *engine.Engine, ref string, flags runFlags) error {
	abs, err := filepath.Abs(a.cfg.Catalog.Path)
	if err != nil {
		return err
	}
	w, err := watch.New(watch.Config{
		BaseDir:  filepath.Dir(abs),
		Patterns: flags.patterns,
		Ignore:   flags.ignore,
		Logger:   a.logger.WithPrefix("watch"),
		OnChange: func(ctx context.Context, changed []string) error {
			a.printf("%s %d file(s) changed, running %s again\n", WarningStyle.Render("↻"), len(changed), ref)
			return ignoreRunFailure(a.runOnce(ctx, eng, ref))
		},
	})
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("watch for changes").
			WithResource(a.cfg.Catalog.Path).
			WithSuggestion("Check the --watch-pattern and --watch-ignore globs").
			Wrap(err).
			BuildError()
	}

	if err := ignoreRunFailure(a.runOnce(ctx, eng, ref)); err != nil {
		return err
	}
	a.printf("%s watching %s (Ctrl+C to stop)\n", SubtitleStyle.Render("…"), w.BaseDir())
	return w.Run(ctx)
}

// ignoreRunFailure swallows run failures, which are already on stdout, and
// passes catalog errors through.
func ignoreRunFailure(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
