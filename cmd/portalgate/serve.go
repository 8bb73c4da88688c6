package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/portalgate"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long:  `Starts an instance serving the REST API and answering sibling lookups until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		gw, err := portalgate.New(cfg, portalgate.WithLogger(logger))
		if err != nil {
			return err
		}
		defer gw.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return gw.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (default from configuration, :8080)")
}
