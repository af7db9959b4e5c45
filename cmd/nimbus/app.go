package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/nimbus/internal/backend"
	"github.com/oriys/nimbus/internal/config"
	"github.com/oriys/nimbus/internal/keystore"
	"github.com/oriys/nimbus/internal/logging"
	"github.com/oriys/nimbus/internal/metrics"
	"github.com/oriys/nimbus/internal/observability"
	"github.com/oriys/nimbus/internal/probe"
	"github.com/oriys/nimbus/internal/proxy"
	"github.com/oriys/nimbus/internal/service"
)

// loadConfig applies defaults, the config file, environment variables and
// finally explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Observability.Logging.Level = opts.logLevel
	}
	if cmd.Flags().Changed("store-root") {
		cfg.Store.Root = opts.storeRoot
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app is the wired core for one CLI invocation or daemon run.
type app struct {
	cfg       *config.Config
	commands  *service.Commands
	cmdLogger *logging.CommandLogger
	closers   []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		StoreDriver: cfg.Store.Driver,
		BackendURL:  cfg.Backend.BaseURL,
	}); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if cfg.Observability.Metrics.Enabled {
		metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, nil)
	}

	a := &app{cfg: cfg}

	store, storeCloser, err := keystore.Open(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, storeCloser)

	client, err := backend.New(backend.Config{
		BaseURL:     cfg.Backend.BaseURL,
		APIKey:      cfg.Backend.APIKey,
		Timeout:     cfg.Backend.Timeout,
		ReadRetries: cfg.Backend.ReadRetries,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.cmdLogger = logging.NewCommandLogger()
	if path := cfg.Observability.Logging.CommandLogFile; path != "" {
		if err := a.cmdLogger.SetOutput(path); err != nil {
			logging.Op().Warn("failed to open command log", "path", path, "error", err)
		}
	}
	if cfg.Observability.Logging.CommandConsole {
		a.cmdLogger.SetConsole(os.Stderr)
	}
	a.closers = append(a.closers, a.cmdLogger)

	pr := probe.New(probe.Config{URL: cfg.Probe.URL, Timeout: cfg.Probe.Timeout})
	a.commands = service.New(store, proxy.New(store, client), pr,
		service.WithCommandLogger(a.cmdLogger),
		service.WithBackendInfo(service.BackendInfo{
			BaseURL:   client.BaseURL(),
			HasAPIKey: client.HasAPIKey(),
		}),
	)
	return a, nil
}

// Close releases the store, the command log and the tracer provider.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	if err := observability.Shutdown(context.Background()); err != nil && first == nil {
		first = err
	}
	return first
}

// withApp loads config, wires the core, runs fn and tears everything down.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
