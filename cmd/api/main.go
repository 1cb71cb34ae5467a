package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/detscore/internal/adapters/http"
	natsadapter "github.com/samirrijal/detscore/internal/adapters/nats"
	"github.com/samirrijal/detscore/internal/adapters/postgres"
	"github.com/samirrijal/detscore/internal/adapters/valkey"
	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/ports"
	"github.com/samirrijal/detscore/internal/core/usecases"
	"github.com/samirrijal/detscore/internal/pkg/config"
	"github.com/samirrijal/detscore/internal/pkg/logging"
	"github.com/samirrijal/detscore/internal/pkg/metrics"
	"github.com/samirrijal/detscore/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("detscore-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Cache. Interface values stay nil when a backend is missing.
	var cachePort ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		cachePort = cache
	}

	// NATS
	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
		natsConn = nil
	} else {
		defer natsConn.Close()
	}

	evaluations := usecases.NewEvaluationService(postgres.NewEvaluationRepo(db), cachePort, events, usecases.Defaults{
		ToleranceM:      cfg.Evaluation.ToleranceM,
		Strategy:        domain.Strategy(cfg.Evaluation.Strategy),
		GTPrefix:        cfg.Evaluation.GTPrefix,
		DETPrefix:       cfg.Evaluation.DETPrefix,
		SectorBufferM:   cfg.Evaluation.SectorBufferM,
		Workers:         cfg.Evaluation.Workers,
		CacheTTLSeconds: cfg.Valkey.TTLHours * 3600,
	})

	// Completion events from the evaluator worker warm the cache.
	if cachePort != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribeEvaluationsCompleted(ctx, evaluations.Warm); err != nil {
				slog.Warn("subscribe evaluation events", "error", err)
			}
		}
	}

	deps := &http.Dependencies{
		Evaluations:    evaluations,
		NATS:           natsConn,
		DB:             db,
		Cache:          cache,
		RequestTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		AppName:      "detscore API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Evaluations can run long; give them the write timeout to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.WriteTimeout)*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
