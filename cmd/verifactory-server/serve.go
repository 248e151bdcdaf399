package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pendergraft/verifactory/internal/chains/evm"
	"github.com/pendergraft/verifactory/internal/compiler"
	"github.com/pendergraft/verifactory/internal/config"
	"github.com/pendergraft/verifactory/internal/observability/metrics"
	"github.com/pendergraft/verifactory/internal/server"
	"github.com/pendergraft/verifactory/internal/sourcify"
	"github.com/pendergraft/verifactory/internal/storage"
	"github.com/pendergraft/verifactory/internal/verification/domain"
)

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting verifactory-server", "version", version)

	metrics.Init(cfg.Metrics.Enabled, "verifactory-server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	registry := compiler.NewRegistry(cfg.Compilers.Dir, logger)
	if err := registry.Refresh(ctx); err != nil {
		return fmt.Errorf("scanning compilers: %w", err)
	}
	go registry.Run(ctx, time.Duration(cfg.Compilers.RefreshIntervalSeconds)*time.Second)

	invoker, closeCache, err := newInvoker(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	opts := []domain.Option{
		domain.WithStore(store),
		domain.WithLogger(logger),
		domain.WithVerifyTimeout(time.Duration(cfg.Server.VerifyTimeout) * time.Second),
	}
	if cfg.RPC.URL != "" {
		opts = append(opts, domain.WithCodeFetcher(evm.NewChain(cfg.RPC.URL,
			evm.WithTimeout(time.Duration(cfg.RPC.TimeoutSeconds)*time.Second))))
		logger.Info("reading deployed code from rpc")
	}
	if cfg.Sourcify.Enabled {
		opts = append(opts, domain.WithSourcify(sourcify.New(cfg.Sourcify.URL,
			sourcify.WithTimeout(time.Duration(cfg.Sourcify.TimeoutSeconds)*time.Second))))
		logger.Info("sourcify passthrough enabled", "url", cfg.Sourcify.URL)
	}

	svc := domain.LoggingMiddleware(logger)(domain.NewService(invoker, registry, opts...))
	srv := server.New(cfg, store, svc, logger, server.WithReadinessCheck(func(context.Context) error {
		if len(registry.Versions(compiler.Solidity)) == 0 && len(registry.Versions(compiler.Vyper)) == 0 {
			return errors.New("no compilers installed")
		}
		return nil
	}))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	// Verifications in flight may be compiling; give them the verify timeout.
	grace := time.Duration(cfg.Server.VerifyTimeout) * time.Second
	if grace < 30*time.Second {
		grace = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newInvoker builds the compiler invoker with the configured result cache.
// The returned func releases the cache.
func newInvoker(ctx context.Context, cfg *config.Config, registry *compiler.Registry, logger *slog.Logger) (compiler.Invoker, func(), error) {
	execOpts := []compiler.ExecOption{compiler.WithLogger(logger)}
	if cfg.Compilers.TempDir != "" {
		execOpts = append(execOpts, compiler.WithTempDir(cfg.Compilers.TempDir))
	}
	exec := compiler.NewExecInvoker(registry, cfg.Compilers.MaxConcurrency, execOpts...)

	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	compileTimeout := compiler.WithCompileTimeout(time.Duration(cfg.Server.VerifyTimeout) * time.Second)
	switch cfg.Cache.Type {
	case "none":
		return exec, func() {}, nil
	case "redis":
		cache, err := compiler.NewRedisCache(ctx, compiler.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TTL:      ttl,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("compilation cache", "type", "redis", "addr", cfg.Cache.Redis.Addr)
		return compiler.NewCachedInvoker(exec, cache, logger, compileTimeout), func() { cache.Close() }, nil
	default:
		logger.Info("compilation cache", "type", "memory", "size", cfg.Cache.Size)
		return compiler.NewCachedInvoker(exec, compiler.NewMemoryCache(cfg.Cache.Size, ttl), logger, compileTimeout), func() {}, nil
	}
}

func setupLogger(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.Logging)
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
