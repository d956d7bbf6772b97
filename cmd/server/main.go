package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ryandielhenn/proxycache/internal/config"
	"github.com/ryandielhenn/proxycache/internal/telemetry"
	"github.com/ryandielhenn/proxycache/pkg/kv"
	"github.com/ryandielhenn/proxycache/pkg/node"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := telemetry.NewLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer log.Sync()
	telemetry.SetBuildInfo(cfg.Version, cfg.GitSHA)

	// 2. Cache
	cache := newCache(cfg, log)
	defer cache.Destroy()

	n := node.NewNode(cache, cfg.NodeID, int64(cfg.CapacityBytes), log)

	// 3. HTTP endpoints
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	n.Routes(mux, func(h http.Handler) http.Handler {
		return telemetry.InstrumentFunc(func(r *http.Request) string {
			return telemetry.OpForMethod(r.Method)
		}, h)
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: telemetry.AccessLog(log, mux),
	}

	// 4. Serve until signalled
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("proxycache node listening",
			zap.String("node", cfg.NodeID),
			zap.String("addr", cfg.Addr),
			zap.Int("capacity_bytes", cfg.CapacityBytes),
			zap.Int("buckets", cfg.Buckets),
			zap.Int("shards", cfg.Shards),
			zap.String("hash", cfg.Hash),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newCache builds the single-lock store, or the sharded variant when more
// than one shard is configured.
func newCache(cfg config.Config, log *zap.Logger) kv.Cache {
	hash, _ := kv.HasherByName(cfg.Hash)
	opts := []kv.Option{
		kv.WithHasher(hash),
		kv.WithLogger(log.Named("kv")),
	}
	if cfg.Shards > 1 {
		return kv.NewSharded(cfg.CapacityBytes, cfg.Buckets, cfg.Shards, opts...)
	}
	return kv.NewStore(cfg.CapacityBytes, cfg.Buckets, opts...)
}
