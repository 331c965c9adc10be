// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/issue"
)

func newListCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runnable commands",
		Long: `List the runnable commands of the catalog: leaves first, then
composites, each in definition order. Commands imported from other devfiles
and internal bootstrap commands are not listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := app.context(cmd.Context())
			summaries, err := app.newEngine().ListRunnableCommands(ctx)
			if err != nil {
				app.renderIssue(issue.CatalogNotFoundId)
				return err
			}
			if asJSON {
				return writeJSON(app, summaries)
			}
			app.printf("%s", renderSummaries(summaries))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the listing as JSON")
	return cmd
}

func writeJSON(app *App, summaries []catalog.Summary) error {
	if summaries == nil {
		summaries = []catalog.Summary{}
	}
	enc := json.NewEncoder(app.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		return fmt.Errorf("failed to encode listing: %w", err)
	}
	return nil
}

// renderSummaries lays the listing out as an aligned ID / NAME / KIND table.
func renderSummaries(summaries []catalog.Summary) string {
	if len(summaries) == 0 {
		return SubtitleStyle.Render("No runnable commands.") + "\n"
	}

	header := []string{"ID", "NAME", "KIND"}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{s.ID.String(), s.DisplayName, string(s.Kind)})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var sb strings.Builder
	sb.WriteString(renderRow(header, widths, tableHeaderStyle, tableHeaderStyle))
	for _, row := range rows {
		sb.WriteString(renderRow(row, widths, tableCellStyle.Foreground(ColorHighlight), tableCellStyle))
	}
	return sb.String()
}

// renderRow styles the first cell with first and the rest with rest. Each
// cell is padded to its column width plus two spaces of gutter.
func renderRow(cells []string, widths []int, first, rest lipgloss.Style) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		style := rest
		if i == 0 {
			style = first
		}
		parts[i] = style.Width(widths[i] + 2).Render(cell)
	}
	return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ") + "\n"
}
