// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/coapfs"
	"github.com/absmach/coapfs/pkg/breaker"
	"github.com/absmach/coapfs/pkg/handler"
	"github.com/absmach/coapfs/pkg/health"
	"github.com/absmach/coapfs/pkg/metrics"
	"github.com/absmach/coapfs/pkg/parser/coap"
	"github.com/absmach/coapfs/pkg/ratelimit"
	"github.com/absmach/coapfs/pkg/resolver"
	"github.com/absmach/coapfs/pkg/server/udp"
	"github.com/absmach/coapfs/pkg/storage"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const svcName = "coapfs"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := coapfs.NewConfig(env.Options{Prefix: coapfs.EnvPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	store, err := storage.NewFS(cfg.StorageDir)
	if err != nil {
		logger.Error("failed to resolve storage directory", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := store.EnsureRoot(); err != nil {
		logger.Error("failed to create storage directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := metrics.New(svcName, prometheus.DefaultRegisterer)

	checker := health.NewChecker(health.DefaultCacheTTL)
	checker.RegisterCritical("storage", store.Check)
	checker.Register("goroutines", health.GoroutineCheck(cfg.MaxGoroutines, func(n int) {
		m.GoroutinesActive.Set(float64(n))
	}))

	var backend storage.Store = store
	if cfg.BreakerMaxFailures > 0 {
		cb := breaker.New(breaker.Config{
			MaxFailures:  cfg.BreakerMaxFailures,
			ResetTimeout: cfg.BreakerResetTimeout,
		})
		cb.OnStateChange(func(from, to breaker.State) {
			logger.Warn("storage circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			m.BreakerStateChanged(int(to), to == breaker.StateOpen)
		})
		backend = breaker.NewStore(store, cb)
	}

	var h handler.Handler = handler.NewDispatcher(resolver.New(store.Root(), cfg.AllowedHosts), backend, logger)
	h = handler.NewInstrumented(h, m)
	h = handler.NewLogging(h, logger)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitCapacity > 0 {
		limiter = ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, 0, 0)
		defer limiter.Close()
	}

	srv := udp.New(udp.Config{
		Address:         cfg.Address(),
		ShutdownTimeout: cfg.ShutdownTimeout,
		BufferSize:      cfg.BufferSize,
		WorkerPoolSize:  cfg.WorkerPoolSize,
		QueueSize:       cfg.QueueSize,
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		RateLimiter:     limiter,
		Metrics:         m,
		Logger:          logger,
	}, &coap.Parser{}, h)

	logger.Info("starting coapfs",
		slog.String("address", cfg.Address()),
		slog.String("storage", store.Root()),
		slog.Any("allowed_hosts", cfg.AllowedHosts))

	g.Go(func() error {
		return srv.Listen(ctx)
	})

	g.Go(func() error {
		select {
		case <-srv.Ready():
			checker.SetReady(true)
		case <-ctx.Done():
		}
		return nil
	})

	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		startHTTPServer(ctx, g, "metrics", cfg.MetricsPort, mux, logger)
	}

	if cfg.HealthPort > 0 {
		startHTTPServer(ctx, g, "health", cfg.HealthPort, checker.Handler(), logger)
	}

	// Signal handler
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, checker, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("coapfs service terminated with error: %s", err))
		os.Exit(1)
	}
	logger.Info("coapfs service stopped")
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// startHTTPServer serves h on port until ctx is cancelled.
func startHTTPServer(ctx context.Context, g *errgroup.Group, name string, port int, h http.Handler, logger *slog.Logger) {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting "+name+" server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, checker *health.Checker, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	select {
	case sig := <-c:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		checker.SetReady(false)
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
