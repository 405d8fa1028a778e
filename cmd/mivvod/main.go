// Command mivvod runs the analysis engine daemon: the HTTP API, the worker
// pool, and the stale-report reclaimer.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"mivvo/internal/api"
	"mivvo/internal/config"
	"mivvo/internal/logging"
	"mivvo/internal/notifications"
	"mivvo/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	// A second daemon against the same data directory would race claims and
	// heartbeats, so take an exclusive lock before touching the stores.
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "mivvod.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("acquire daemon lock: %v", err)
	}
	if !locked {
		log.Fatalf("another mivvod instance already holds %s", lock.Path())
	}
	defer lock.Unlock() //nolint:errcheck

	engine, err := bootstrap(cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer engine.Close()

	manager := workflow.NewManager(cfg, engine.reports, engine.orchestrator, engine.saga,
		notifications.NewService(cfg), logger)
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("start workflow manager: %v", err)
	}

	server := api.NewServer(api.Options{
		Config:       cfg,
		Orchestrator: engine.orchestrator,
		Ledger:       engine.ledger,
		Reports:      engine.reports,
		Metrics:      engine.metrics,
		Queue:        manager,
		Logger:       logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Paths.APIBind,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("api listening", logging.String("addr", cfg.Paths.APIBind))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server stopped", logging.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("mivvod shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", logging.Error(err))
	}
	manager.Stop()
}
