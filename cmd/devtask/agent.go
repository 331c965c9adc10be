// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devtask/devtask/internal/agent"
	"github.com/devtask/devtask/internal/issue"
	"github.com/devtask/devtask/pkg/types"
)

type agentFlags struct {
	host     string
	port     int
	shell    string
	token    string
	tokenTTL time.Duration
}

func newAgentCommand(app *App) *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Run this machine as a component agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var flags agentFlags
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve commands over SSH until interrupted",
		Long: `Start an SSH server that runs the command lines devtask sends to this
component. Clients authenticate with a password token: the configured
agent.token, or a token generated at startup and printed on stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveAgent(cmd, app, flags)
		},
	}
	f := serve.Flags()
	f.StringVar(&flags.host, "host", "", "address to bind (overrides agent.host)")
	f.IntVar(&flags.port, "port", -1, "port to listen on, 0 picks a free one (overrides agent.port)")
	f.StringVar(&flags.shell, "shell", "", "run lines with '<shell> -c' instead of the built-in interpreter")
	f.StringVar(&flags.token, "token", "", "static token to accept (overrides agent.token)")
	f.DurationVar(&flags.tokenTTL, "token-ttl", 0, "lifetime of generated tokens (overrides agent.token_ttl)")

	agentCmd.AddCommand(serve)
	return agentCmd
}

func serveAgent(cmd *cobra.Command, app *App, flags agentFlags) error {
	ctx := app.context(cmd.Context())
	cfg := app.cfg.Agent

	acfg := agent.DefaultConfig()
	acfg.Host = firstNonEmpty(flags.host, cfg.Host, acfg.Host)
	acfg.Port = cfg.Port
	if flags.port >= 0 {
		acfg.Port = types.ListenPort(flags.port)
	}
	acfg.Shell = firstNonEmpty(flags.shell, cfg.Shell)
	acfg.StaticToken = agent.TokenValue(firstNonEmpty(flags.token, cfg.Token))
	if flags.tokenTTL > 0 {
		acfg.TokenTTL = flags.tokenTTL
	} else if cfg.TokenTTL > 0 {
		acfg.TokenTTL = cfg.TokenTTL
	}
	acfg.Logger = app.logger

	srv, err := agent.New(acfg)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		app.renderIssue(issue.AgentStartFailedId)
		return issue.NewErrorContext().
			WithOperation("start component agent").
			WithResource(acfg.Port.Address(acfg.Host)).
			WithSuggestion("Check that the port is free, or pass --port 0 to pick one").
			Wrap(err).
			BuildError()
	}

	app.printf("%s %s\n", TitleStyle.Render("Agent listening on"), CmdStyle.Render(srv.Address()))
	if acfg.StaticToken == "" {
		info, err := srv.ConnectionInfo("cli")
		if err != nil {
			_ = srv.Stop()
			return err
		}
		app.printf("token: %s\n", info.Token)
		app.printf("%s\n", SubtitleStyle.Render(fmt.Sprintf("expires %s", info.ExpireAt.Format(time.RFC3339))))
	}

	var serveErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Shutting down agent")
	case serveErr = <-srv.Err():
	}
	if err := srv.Stop(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
