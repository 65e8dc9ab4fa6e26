package main

import (
	"context"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/configuration"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				config.AdminPort = port
			}
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Admin API port (overrides ADMIN_PORT)")
	return cmd
}

func runServe(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	api, err := configuration.NewAPI(config, reg)
	if err != nil {
		return err
	}
	if _, err := configuration.ServeAdminAPI(config, api); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	configuration.ShutdownAllServers(shutdownCtx)
	return nil
}
