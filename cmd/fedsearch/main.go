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

	"github.com/kailas-cloud/fedsearch/internal/app"
	"github.com/kailas-cloud/fedsearch/internal/config"
	logpkg "github.com/kailas-cloud/fedsearch/internal/logger"
	chiTransport "github.com/kailas-cloud/fedsearch/internal/transport/chi"
	"github.com/kailas-cloud/fedsearch/internal/version"
)

// Run modes.
const (
	modeAll    = "all"
	modeServer = "server"
	modeWorker = "worker"
)

func main() {
	mode := flag.String("mode", modeAll, "what to run: all, server or worker")
	flag.Parse()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting fedsearch",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("mode", *mode),
		zap.String("engine", cfg.Engine.Driver),
		zap.String("queue", cfg.Queue.Driver),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}
	defer a.Close()

	errc := make(chan error, 2)

	if *mode == modeAll || *mode == modeWorker {
		go func() {
			logger.Info("Starting indexing workers", zap.Int("workers", cfg.Queue.Workers))
			err := a.Worker(ctx)
			if errors.Is(err, app.ErrIndexingDisabled) && *mode == modeAll {
				logger.Warn("Workers not started", zap.Error(err))
				return
			}
			errc <- err
		}()
	}

	var srv *http.Server
	if *mode == modeAll || *mode == modeServer {
		srv = newHTTPServer(cfg, a, logger)
		go func() {
			logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Component stopped", zap.Error(err))
		}
		stop()
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	}

	logger.Info("Stopped gracefully")
}

func newHTTPServer(cfg config.Config, a *app.App, logger *zap.Logger) *http.Server {
	var indexer chiTransport.Indexer
	if a.Indexing != nil {
		indexer = a.Indexing
	}
	server := chiTransport.NewServer(a.Federation, indexer, a.Health, logger)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}
}
