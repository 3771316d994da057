// Package main is the entry point for the coordination room server.
// One binary runs the WebSocket ingress, the room actors, the task
// service, and the maintenance scheduler with shared infrastructure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/docs"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/events"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/gateway"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/maintenance"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/room"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/service"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/tracing"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("Starting coordination room server...")

	// 3. Signal-aware root context
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Event bus (in-memory unless NATS is configured)
	provided, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer func() { _ = busCleanup() }()
	eventBus := provided.Bus
	if provided.NATS != nil {
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		log.Info("Using in-memory event bus")
	}

	// 5. Task store
	var store repository.Store
	if cfg.Database.Driver == "memory" {
		store = repository.NewRetryingStore(
			repository.NewMemoryStore(), cfg.Store.RetryAttempts, cfg.Store.RetryBase(), cfg.Store.RetryFactor, log)
		log.Info("Using in-memory task store")
	} else {
		pool, poolCleanup, perr := db.OpenPool(cfg.Database, log)
		if perr != nil {
			log.Fatal("Failed to open database", zap.Error(perr))
		}
		defer func() { _ = poolCleanup() }()

		sqlStore, _, serr := repository.Provide(pool, cfg.Store, log)
		if serr != nil {
			log.Fatal("Failed to initialize task store", zap.Error(serr))
		}
		store = sqlStore
	}

	// 6. Docs tool (optional)
	var docsTool docs.Tool
	if cfg.Docs.CatalogPath != "" {
		catalog, derr := docs.LoadCatalog(cfg.Docs.CatalogPath, cfg.Docs.MaxResults)
		if derr != nil {
			log.Fatal("Failed to load docs catalog",
				zap.String("path", cfg.Docs.CatalogPath),
				zap.Error(derr))
		}
		docsTool = catalog
		log.Info("Docs catalog loaded", zap.String("path", cfg.Docs.CatalogPath))
	} else {
		log.Info("Docs tool disabled (no catalog configured)")
	}

	// 7. Task service, reflecting mutations through the broadcast endpoint
	broadcastURL := cfg.Server.BroadcastURL
	if broadcastURL == "" {
		broadcastURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}
	svc := service.New(store, eventBus, service.NewHTTPBroadcaster(broadcastURL), log)

	// 8. Room registry and ingress
	mgr := room.NewManager(cfg.Room, svc, docsTool, log)
	srv := gateway.New(cfg.Server, mgr, store, eventBus, log)

	bridge, err := gateway.StartFrameBridge(eventBus, mgr, log)
	if err != nil {
		log.Fatal("Failed to start frame bridge", zap.Error(err))
	}

	// 9. Maintenance scheduler
	scheduler, err := maintenance.NewScheduler(cfg.Maintenance, mgr, store, log)
	if err != nil {
		log.Fatal("Failed to configure maintenance scheduler", zap.Error(err))
	}
	scheduler.Start(ctx)

	log.Info("Server listening",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver))

	// 10. Serve until a signal arrives, then drain in order: stop the
	// listener, stop background work, stop the rooms, flush traces.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		scheduler.Stop()
		bridge.Stop()
		mgr.Shutdown(shutdownCtx)
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("Trace flush incomplete", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Server stopped")
}
