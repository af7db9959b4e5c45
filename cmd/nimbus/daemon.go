package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/nimbus/internal/api"
	"github.com/oriys/nimbus/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func daemonCmd(opts *rootOptions) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the local HTTP API",
		Long:  "Serve the cache and pass-through commands over a local JSON HTTP API until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ln, err := net.Listen("tcp", cfg.Daemon.HTTPAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Daemon.HTTPAddr, err)
			}
			logging.Op().Info("HTTP API started",
				"addr", ln.Addr().String(),
				"backend", cfg.Backend.BaseURL,
				"store_driver", cfg.Store.Driver)

			return serve(ctx, a, ln)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "127.0.0.1:7420", "HTTP listen address")
	return cmd
}

// serve runs the API on ln until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, a *app, ln net.Listener) error {
	server := api.NewHTTPServer(ln.Addr().String(), api.ServerConfig{Commands: a.commands})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Op().Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
