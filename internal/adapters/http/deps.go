package http

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/detscore/internal/adapters/postgres"
	"github.com/samirrijal/detscore/internal/adapters/valkey"
	"github.com/samirrijal/detscore/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Evaluations *usecases.EvaluationService
	NATS        *nats.Conn
	DB          *postgres.DB
	Cache       *valkey.Cache
	// RequestTimeout bounds REST handlers. Zero means 60s.
	RequestTimeout time.Duration
}
