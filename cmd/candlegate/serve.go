package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"candlegate/internal/config"
	"candlegate/internal/logging"
	"candlegate/internal/metrics"
	"candlegate/internal/observability"
	"candlegate/internal/proxy"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		listenAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the candle proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if listenAddr != "" {
				cfg.Server.Address = listenAddr
			}

			logger := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Tracing.Enabled,
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: cfg.Tracing.ServiceName,
				SampleRate:  cfg.TraceSampleRate(),
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}

			metrics.Init()

			srv, _, err := proxy.NewBuilder(cfg, logger).Build(ctx)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("candlegate listening",
					"addr", srv.Addr,
					"upstream", cfg.Upstream.BaseURL,
					"cache_ttl", cfg.Cache.TTL.String(),
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("shutting down", "signal", sig.String())
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", "err", err)
			}
			if err := observability.Shutdown(shutdownCtx); err != nil {
				logger.Error("tracing shutdown error", "err", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file (optional)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides server.address and PORT")

	return cmd
}
