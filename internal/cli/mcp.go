package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/proptech-copilot/internal/config"
	"github.com/evcraddock/proptech-copilot/internal/logging"
	"github.com/evcraddock/proptech-copilot/internal/mcptools"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve scenario tools over MCP stdio",
		Long:  "Runs an MCP server on stdin/stdout for the configured user. It opens the database directly; no API server is needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.DevMode)

			st, err := buildStack(cfg, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return mcptools.Run(ctx, st.svc, user, Version)
		},
	}
}
