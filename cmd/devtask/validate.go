// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/issue"
	"github.com/devtask/devtask/pkg/types"
)

func newValidateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check composites for missing children and cycles",
		Long: `Check the catalog without running anything. Every composite child
must exist, and no composite may reach itself through its children.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := app.context(cmd.Context())
			cat, err := app.newEngine().Catalog(ctx)
			if err != nil {
				app.renderIssue(issue.CatalogNotFoundId)
				return err
			}

			problems := cat.Validate()
			if len(problems) == 0 {
				app.printf("%s %d command(s), no problems found\n", SuccessStyle.Render("✓"), cat.Len())
				return nil
			}

			cycles := false
			for _, p := range problems {
				app.printf("%s %s\n", ErrorStyle.Render("✗"), p)
				cycles = cycles || p.Kind == catalog.ProblemCycle
			}
			if cycles {
				app.renderIssue(issue.CompositeCycleId)
			}
			return &ExitError{Code: types.ExitFailure}
		},
	}
}
