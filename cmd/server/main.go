// dirserve serves a directory tree over HTTP.
//
// Features:
// - JSON snapshots of a directory, shallow or recursive
// - Chunked file streaming with bounded memory
// - Glob search and an HTML listing
// - Prometheus metrics & structured logging (zap)
// - Per-client rate limiting
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirserve/internal/api"
	"github.com/fruitsalade/dirserve/internal/config"
	"github.com/fruitsalade/dirserve/internal/logging"
	"github.com/fruitsalade/dirserve/internal/metrics"
	"github.com/fruitsalade/dirserve/internal/workers"
)

const (
	exitOK = iota
	exitFailure
	exitBaseDirNotDir
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		// Can't use structured logging yet
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return exitFailure
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		return exitFailure
	}
	defer logging.Sync()

	if err := cfg.Validate(); err != nil {
		logging.Error("invalid configuration", zap.Error(err))
		if errors.Is(err, config.ErrBaseDirNotDir) {
			return exitBaseDirNotDir
		}
		return exitFailure
	}

	logging.Info("dirserve starting",
		zap.String("root", cfg.BaseDir),
		zap.String("listen", cfg.Addr()),
		zap.String("metrics", cfg.MetricsAddr),
		zap.Int("workers", cfg.Workers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := workers.New(cfg.Workers)
	pool.Start(context.Background())
	defer pool.Stop()

	srv := api.NewServer(cfg, pool)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// No write timeout; large downloads stream for as long as they need.
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Forget idle rate-limit clients
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := srv.PruneClients(time.Hour); n > 0 {
					logging.Debug("pruned rate limiter clients", zap.Int("count", n))
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logging.Error("server error", zap.Error(err))
			return exitFailure
		}
	case <-ctx.Done():
		logging.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("graceful shutdown failed", zap.Error(err))
		httpServer.Close()
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	logging.Info("server stopped")
	return exitOK
}
