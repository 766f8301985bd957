package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docquery/internal/server"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := buildEngineWithConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("docquery server listening on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			return server.New(eng, cfg.Server).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "bind address (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}
