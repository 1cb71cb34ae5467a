package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "detscore",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "detscore",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "evaluation",
		Name:      "runs_total",
		Help:      "Total evaluations completed",
	}, []string{"strategy"})

	EvaluationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "evaluation",
		Name:      "errors_total",
		Help:      "Total evaluations rejected or failed",
	}, []string{"reason"})

	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "detscore",
		Subsystem: "evaluation",
		Name:      "duration_seconds",
		Help:      "Duration of a full evaluation including sector breakdown",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"strategy"})

	EvaluationGroups = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "detscore",
		Subsystem: "evaluation",
		Name:      "groups",
		Help:      "Number of overlap groups per grouped evaluation",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	EvaluationObjects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "evaluation",
		Name:      "objects_total",
		Help:      "Total objects scored",
	}, []string{"source"})

	ChargeImbalances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "evaluation",
		Name:      "charge_imbalances_total",
		Help:      "Evaluations whose GT-side and DET-side TP totals disagreed",
	}, []string{"strategy"})

	LastF1 = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "detscore",
		Subsystem: "evaluation",
		Name:      "last_f1",
		Help:      "F1 score of the most recent evaluation",
	}, []string{"strategy"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "detscore",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "detscore",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "detscore",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "detscore",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "db",
		Name:      "pool_empty_acquires_total",
		Help:      "Total times a connection had to be established when acquiring from pool",
	})

	DBPoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "detscore",
		Subsystem: "db",
		Name:      "pool_wait_count_total",
		Help:      "Total times waiting for a connection from pool",
	})

	DBPoolWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "detscore",
		Subsystem: "db",
		Name:      "pool_wait_duration_seconds",
		Help:      "Duration waiting for a database connection",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool gauges from a *pgxpool.Stat.
// It takes any so this package does not import pgxpool.
func UpdateDBPoolMetrics(stat any) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}

// ObserveEvaluation records a finished evaluation.
func ObserveEvaluation(strategy string, seconds float64, groups, nGT, nDET int, f1 float64, balanced bool) {
	EvaluationsTotal.WithLabelValues(strategy).Inc()
	EvaluationDuration.WithLabelValues(strategy).Observe(seconds)
	EvaluationObjects.WithLabelValues("gt").Add(float64(nGT))
	EvaluationObjects.WithLabelValues("det").Add(float64(nDET))
	LastF1.WithLabelValues(strategy).Set(f1)
	if strategy == "grouped" {
		EvaluationGroups.Observe(float64(groups))
	}
	if !balanced {
		ChargeImbalances.WithLabelValues(strategy).Inc()
	}
}
