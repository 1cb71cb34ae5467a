//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/detscore/internal/adapters/http"
	"github.com/samirrijal/detscore/internal/adapters/postgres"
	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/usecases"
	"github.com/samirrijal/detscore/internal/pkg/config"
)

// setupTestDB connects to the database named by DETSCORE_DATABASE_*.
// The migrations must already be applied.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("detscore-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}
	return &postgres.DB{Pool: pool}
}

func setupIntegrationApp(t *testing.T) *fiber.App {
	db := setupTestDB(t)
	deps := &http.Dependencies{
		Evaluations: usecases.NewEvaluationService(postgres.NewEvaluationRepo(db), nil, nil, testDefaults()),
		DB:          db,
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	http.SetupRoutes(app, deps)
	return app
}

func TestIntegration_EvaluationRoundTrip(t *testing.T) {
	app := setupIntegrationApp(t)

	resp, err := post(app, "/v1/evaluations", twoTreesOneDetection)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var created domain.Evaluation
	json.NewDecoder(resp.Body).Decode(&created)

	req := httptest.NewRequest("GET", "/v1/evaluations/"+created.ID+"?result=true", nil)
	got, _ := app.Test(req, -1)
	if got.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", got.StatusCode)
	}
	var stored domain.Evaluation
	json.NewDecoder(got.Body).Decode(&stored)
	if stored.Metrics != created.Metrics {
		t.Errorf("metrics changed on round trip: %+v vs %+v", stored.Metrics, created.Metrics)
	}
	if stored.Result == nil || len(stored.Result.GT) != 2 || len(stored.Result.DET) != 1 {
		t.Fatalf("expected stored objects, got %+v", stored.Result)
	}
	if stored.Result.GT[0].Charge.TP.RatString() != "1" {
		t.Errorf("expected exact TP charge 1, got %s", stored.Result.GT[0].Charge.TP.RatString())
	}

	req = httptest.NewRequest("GET", "/v1/evaluations/"+created.ID+"/objects?source=det", nil)
	objs, _ := app.Test(req, -1)
	if objs.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", objs.StatusCode)
	}
	var tagged []domain.TaggedObject
	json.NewDecoder(objs.Body).Decode(&tagged)
	if len(tagged) != 1 || tagged[0].Source != domain.SourceDET {
		t.Errorf("unexpected det objects %+v", tagged)
	}
}

func TestIntegration_ListIncludesNewEvaluation(t *testing.T) {
	app := setupIntegrationApp(t)

	resp, _ := post(app, "/v1/evaluations", twoTreesOneDetection)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created domain.Evaluation
	json.NewDecoder(resp.Body).Decode(&created)

	req := httptest.NewRequest("GET", "/v1/evaluations?limit=5", nil)
	list, _ := app.Test(req, -1)
	var page struct {
		Data []domain.Evaluation `json:"data"`
	}
	json.NewDecoder(list.Body).Decode(&page)
	if len(page.Data) == 0 || page.Data[0].ID != created.ID {
		t.Errorf("expected newest evaluation %s first", created.ID)
	}
}

func TestIntegration_Ready(t *testing.T) {
	app := setupIntegrationApp(t)

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
}
