package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/detscore/internal/adapters/nats"
	"github.com/samirrijal/detscore/internal/adapters/postgres"
	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/ports"
	"github.com/samirrijal/detscore/internal/core/usecases"
	"github.com/samirrijal/detscore/internal/pkg/config"
	"github.com/samirrijal/detscore/internal/pkg/logging"
	"github.com/samirrijal/detscore/internal/workflows"
)

func main() {
	cfg, err := config.Load("detscore-evaluator")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := postgres.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, evaluations will not be announced", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	// Publication is its own activity, so the service does not publish.
	evaluations := usecases.NewEvaluationService(postgres.NewEvaluationRepo(db), nil, nil, usecases.Defaults{
		ToleranceM:    cfg.Evaluation.ToleranceM,
		Strategy:      domain.Strategy(cfg.Evaluation.Strategy),
		GTPrefix:      cfg.Evaluation.GTPrefix,
		DETPrefix:     cfg.Evaluation.DETPrefix,
		SectorBufferM: cfg.Evaluation.SectorBufferM,
		Workers:       cfg.Evaluation.Workers,
	})

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.EvaluationWorkflow)
	w.RegisterActivity(&workflows.EvaluationActivities{
		Evaluations: evaluations,
		Events:      events,
	})

	slog.Info("evaluator worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
