// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/devtask/devtask/internal/config"
)

// newConfigCommand creates the `devtask config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage devtask configuration",
		Long: `Manage devtask configuration.

Configuration is stored in:
  - Linux: ~/.config/devtask/config.cue
  - macOS: ~/Library/Application Support/devtask/config.cue
  - Windows: %APPDATA%\devtask\config.cue

DEVTASK_* environment variables override file values, e.g.
DEVTASK_LOG_LEVEL=debug or DEVTASK_BACKEND_DEFAULT=ssh.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			source := app.cfg.Source()
			if source == "" {
				source = "(defaults)"
			}
			app.printf("// source: %s\n", source)
			app.printf("%s", config.GenerateCUE(app.cfg))
			return nil
		},
	})

	var dir string
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetupAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, created, err := config.CreateDefaultConfig(dir)
			if err != nil {
				return err
			}
			if created {
				app.printf("%s %s\n", SuccessStyle.Render("Created"), path)
			} else {
				app.printf("%s %s\n", WarningStyle.Render("Already exists:"), path)
			}
			return nil
		},
	}
	initCmd.Flags().StringVar(&dir, "dir", "", "directory to write config.cue into (default is the user config directory)")
	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}
