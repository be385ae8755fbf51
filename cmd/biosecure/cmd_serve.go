package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"biosecure/internal/gateway/app"
	"biosecure/internal/logging"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Connect, websocket and metrics gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			log := logging.New("serve")
			g, gctx := errgroup.WithContext(ctx)
			g.Go(a.Start)
			g.Go(func() error {
				<-gctx.Done()
				log.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return a.Shutdown(shutdownCtx)
			})
			if err := g.Wait(); err != nil {
				return err
			}
			log.Info("Server exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen address; default $PORT or :8081")
	return cmd
}
