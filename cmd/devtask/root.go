// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/devtask/devtask/internal/issue"
	"github.com/devtask/devtask/pkg/types"
)

// skipSetupAnnotation marks commands that must run without loading
// configuration (e.g. writing a fresh config file).
const skipSetupAnnotation = "devtask.skip-setup"

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "devtask",
		Short: "Run devfile commands and composites",
		Long: TitleStyle.Render("devtask") + SubtitleStyle.Render(" - run devfile commands and composites") + `

devtask reads the commands of a flattened devfile and runs them on the
local shell or on remote component agents over SSH. Composite commands
expand into their children, sequentially or in parallel.

` + SubtitleStyle.Render("Examples:") + `
  devtask list                   List runnable commands
  devtask run build              Run the 'build' command
  devtask run composite:ci       Run 'ci', which must be a composite
  devtask validate               Check composites for missing children and cycles
  devtask agent serve            Serve this machine as a component agent`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSetupAnnotation] == "true" {
				return nil
			}
			return app.setup(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is $HOME/.config/devtask/config.cue)")
	flags.StringVar(&app.flags.catalogPath, "catalog", "", "flattened devfile to read commands from (overrides catalog.path)")
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.flags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")

	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	root.AddCommand(
		newListCommand(app),
		newRunCommand(app),
		newValidateCommand(app),
		newAgentCommand(app),
		newConfigCommand(app),
	)
	return root
}

// Execute runs the CLI with os.Args and exits with its status.
// This is called by main.main().
func Execute() {
	os.Exit(Main())
}

// Main runs the CLI with os.Args and returns the process exit code.
func Main() int {
	return run(context.Background(), NewApp(Dependencies{}), os.Args[1:])
}

func run(ctx context.Context, app *App, args []string) int {
	root := newRootCommand(app)
	root.SetArgs(args)

	err := fang.Execute(
		ctx,
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler(app)),
	)
	if err == nil {
		return int(types.ExitSuccess)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.Code)
	}
	return int(types.ExitFailure)
}

// errorHandler prints actionable errors with their suggestions and stays
// quiet for bare exit codes, whose command already reported the failure.
func errorHandler(app *App) fang.ErrorHandler {
	return func(w io.Writer, styles fang.Styles, err error) {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Err == nil {
			return
		}
		var ae *issue.ActionableError
		if errors.As(err, &ae) {
			_, _ = fmt.Fprintln(w, ErrorStyle.Render("Error: ")+ae.Format(app.flags.verbose))
			return
		}
		fang.DefaultErrorHandler(w, styles, err)
	}
}

// renderIssue prints the long-form help for a failure class in verbose mode.
func (a *App) renderIssue(id issue.Id) {
	if !a.flags.verbose {
		return
	}
	is := issue.Get(id)
	if is == nil {
		return
	}
	rendered, err := is.Render("notty")
	if err != nil {
		a.logger.Debug("failed to render issue help", "error", err)
		return
	}
	a.errorf("%s", rendered)
}
