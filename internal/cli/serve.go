package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/proptech-copilot/internal/config"
	"github.com/evcraddock/proptech-copilot/internal/logging"
	"github.com/evcraddock/proptech-copilot/internal/metrics"
	"github.com/evcraddock/proptech-copilot/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		addr    string
		dev     bool
		origins []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the HTTP API server. Settings come from PTC_* environment variables; flags override them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("dev") {
				cfg.DevMode = dev
			}
			return runServe(cfg, origins)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().BoolVar(&dev, "dev", false, "development mode (text logs, panic stacks)")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origins (default: any)")

	return cmd
}

func runServe(cfg *config.Config, origins []string) error {
	logging.Setup(cfg.DevMode)

	m := metrics.New(nil)
	st, err := buildStack(cfg, m)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []web.Option{web.WithDevMode(cfg.DevMode)}
	if len(origins) > 0 {
		opts = append(opts, web.WithAllowedOrigins(origins...))
	}
	srv := web.NewServer(st.svc, m, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, cfg.Addr)
}
