package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/encoding/wkt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/matching"
	"github.com/samirrijal/detscore/internal/core/ports"
	"github.com/samirrijal/detscore/internal/pkg/metrics"
	"github.com/samirrijal/detscore/internal/pkg/telemetry"
)

// Defaults are applied to request fields left unset.
type Defaults struct {
	ToleranceM      float64
	Strategy        domain.Strategy
	GTPrefix        string
	DETPrefix       string
	SectorBufferM   float64
	Workers         int
	CacheTTLSeconds int
}

// EvaluationService runs, stores and serves evaluations.
type EvaluationService struct {
	repo     ports.EvaluationRepository
	cache    ports.CacheService
	events   ports.EventPublisher
	defaults Defaults
	logger   *slog.Logger
	now      func() time.Time
}

// NewEvaluationService creates a new EvaluationService. repo, cache and
// events may be nil; the evaluation then simply skips that step.
func NewEvaluationService(repo ports.EvaluationRepository, cache ports.CacheService, events ports.EventPublisher, defaults Defaults) *EvaluationService {
	if defaults.CacheTTLSeconds <= 0 {
		defaults.CacheTTLSeconds = 86400
	}
	return &EvaluationService{
		repo:     repo,
		cache:    cache,
		events:   events,
		defaults: defaults,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

func (s *EvaluationService) options(req *domain.EvaluationRequest) (matching.Options, float64) {
	opts := matching.Options{
		ToleranceM: s.defaults.ToleranceM,
		Strategy:   s.defaults.Strategy,
		GTPrefix:   s.defaults.GTPrefix,
		DETPrefix:  s.defaults.DETPrefix,
		Workers:    s.defaults.Workers,
		Logger:     s.logger,
	}
	if req.ToleranceM != nil {
		opts.ToleranceM = *req.ToleranceM
	}
	if req.Strategy != "" {
		opts.Strategy = req.Strategy
	}
	if req.GTPrefix != "" {
		opts.GTPrefix = req.GTPrefix
	}
	if req.DETPrefix != "" {
		opts.DETPrefix = req.DETPrefix
	}
	if opts.Strategy == "" {
		opts.Strategy = domain.StrategyGrouped
	}
	buf := s.defaults.SectorBufferM
	if req.SectorBufM != nil {
		buf = *req.SectorBufM
	}
	return opts, buf
}

// Run scores a request. Identical requests return the cached or stored
// evaluation instead of scoring again.
func (s *EvaluationService) Run(ctx context.Context, req *domain.EvaluationRequest) (*domain.Evaluation, error) {
	opts, bufM := s.options(req)
	if err := opts.Validate(); err != nil {
		metrics.EvaluationErrors.WithLabelValues("options").Inc()
		return nil, err
	}
	if bufM < 0 {
		metrics.EvaluationErrors.WithLabelValues("options").Inc()
		return nil, fmt.Errorf("%w: sector buffer must be >= 0, got %v", domain.ErrInvalidOptions, bufM)
	}

	// Non-finite coordinates cannot be digested. Skip the cache and let
	// Evaluate report the offending record.
	digest, err := Digest(req, opts, bufM)
	cacheKey := ""
	if err == nil {
		cacheKey = "evaluation:digest:" + digest
		if cached := s.cached(ctx, cacheKey); cached != nil {
			return cached, nil
		}
		// A stored run of the same input is reused, so a retried request
		// never stores a second copy.
		if s.repo != nil {
			prev, err := s.repo.FindByDigest(ctx, digest)
			switch {
			case err == nil:
				s.logger.Debug("reusing stored evaluation", "evaluation_id", prev.ID, "digest", digest)
				s.store(ctx, cacheKey, prev)
				return prev, nil
			case !errors.Is(err, domain.ErrNotFound):
				return nil, fmt.Errorf("find evaluation by digest: %w", err)
			}
		}
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanEvaluate)
	defer span.End()
	span.SetAttributes(
		attribute.String("strategy", string(opts.Strategy)),
		attribute.Float64("tolerance_m", opts.ToleranceM),
		attribute.Int("gt", len(req.GT)),
		attribute.Int("det", len(req.DET)),
	)

	start := time.Now()
	oc, err := matching.Evaluate(ctx, req.GT, req.DET, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate")
		if domain.IsInputError(err) {
			metrics.EvaluationErrors.WithLabelValues("input").Inc()
		} else {
			metrics.EvaluationErrors.WithLabelValues("internal").Inc()
		}
		return nil, err
	}

	var sectors []domain.SectorMetrics
	if len(req.Sectors) > 0 {
		sctx, sspan := telemetry.Tracer().Start(ctx, telemetry.SpanEvaluateSectors)
		sspan.SetAttributes(attribute.Int("sectors", len(req.Sectors)))
		sectors, err = matching.EvaluateSectors(sctx, req.GT, req.DET, req.Sectors, bufM, opts)
		sspan.End()
		if err != nil {
			metrics.EvaluationErrors.WithLabelValues("internal").Inc()
			return nil, err
		}
	}

	eval := &domain.Evaluation{
		ID:         uuid.NewString(),
		Strategy:   opts.Strategy,
		ToleranceM: opts.ToleranceM,
		Digest:     digest,
		Metrics:    oc.Metrics,
		Sectors:    sectors,
		NumGroups:  len(oc.Result.Groups),
		NumGT:      len(oc.Result.GT),
		NumDET:     len(oc.Result.DET),
		Balanced:   oc.Balanced,
		Result:     oc.Result,
		CreatedAt:  s.now().UTC(),
	}
	metrics.ObserveEvaluation(string(eval.Strategy), time.Since(start).Seconds(),
		eval.NumGroups, eval.NumGT, eval.NumDET, eval.Metrics.F1, eval.Balanced)

	if s.repo != nil {
		pctx, pspan := telemetry.Tracer().Start(ctx, telemetry.SpanPersist)
		err := s.repo.Save(pctx, eval)
		pspan.End()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("save evaluation: %w", err)
		}
	}

	if cacheKey != "" {
		s.store(ctx, cacheKey, eval)
	}

	if s.events != nil {
		ev := &domain.EvaluationCompleted{
			EvaluationID: eval.ID,
			Strategy:     eval.Strategy,
			Metrics:      eval.Metrics,
			CompletedAt:  eval.CreatedAt,
		}
		if err := s.events.PublishEvaluationCompleted(ctx, ev); err != nil {
			s.logger.Warn("publish evaluation completed", "evaluation_id", eval.ID, "error", err)
		}
	}

	s.logger.Info("evaluation completed",
		"evaluation_id", eval.ID,
		"strategy", eval.Strategy,
		"groups", eval.NumGroups,
		"f1", eval.Metrics.F1,
		"balanced", eval.Balanced,
	)
	return eval, nil
}

func (s *EvaluationService) cached(ctx context.Context, key string) *domain.Evaluation {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("evaluation").Inc()
		return nil
	}
	var eval domain.Evaluation
	if err := json.Unmarshal(data, &eval); err != nil {
		metrics.CacheMisses.WithLabelValues("evaluation").Inc()
		return nil
	}
	metrics.CacheHits.WithLabelValues("evaluation").Inc()
	return &eval
}

func (s *EvaluationService) store(ctx context.Context, key string, eval *domain.Evaluation) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(eval)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.defaults.CacheTTLSeconds); err != nil {
		s.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

// Get returns a stored evaluation with its tagged objects.
func (s *EvaluationService) Get(ctx context.Context, id string) (*domain.Evaluation, error) {
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("evaluation %q: %w", id, domain.ErrNotFound)
	}
	// Stored evaluations never change, so the cached copy is always current.
	key := "evaluation:id:" + id
	if eval := s.cached(ctx, key); eval != nil {
		return eval, nil
	}
	eval, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, eval)
	return eval, nil
}

// Warm loads a freshly completed evaluation into the cache. It is the
// handler for completion events published by other processes.
func (s *EvaluationService) Warm(ctx context.Context, ev *domain.EvaluationCompleted) error {
	if s.cache == nil {
		return nil
	}
	_, err := s.Get(ctx, ev.EvaluationID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("completed evaluation not found", "evaluation_id", ev.EvaluationID)
		return nil
	}
	return err
}

// List returns evaluation summaries newest first.
func (s *EvaluationService) List(ctx context.Context, offset, limit int) ([]domain.Evaluation, int, error) {
	if s.repo == nil {
		return nil, 0, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, offset, limit)
}

// Objects returns the tagged objects of one side of a stored evaluation.
func (s *EvaluationService) Objects(ctx context.Context, id string, source domain.Source) ([]domain.TaggedObject, error) {
	switch source {
	case domain.SourceGT, domain.SourceDET:
	default:
		return nil, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidOptions, source)
	}
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("evaluation %q: %w", id, domain.ErrNotFound)
	}
	return s.repo.Objects(ctx, id, source)
}

// ErrNegativeCount is returned by Score for negative counts.
var ErrNegativeCount = errors.New("counts must be >= 0")

// Score computes precision, recall and F1 from plain counts.
func (s *EvaluationService) Score(tp, fp, fn int) (domain.MetricsRecord, error) {
	if tp < 0 || fp < 0 || fn < 0 {
		return domain.MetricsRecord{}, fmt.Errorf("%w: %w", domain.ErrInvalidOptions, ErrNegativeCount)
	}
	return matching.CountMetrics(tp, fp, fn), nil
}

// Digest fingerprints everything that influences an evaluation's outcome.
func Digest(req *domain.EvaluationRequest, opts matching.Options, bufM float64) (string, error) {
	type sectorKey struct {
		Name string `json:"name"`
		WKT  string `json:"wkt"`
	}
	key := struct {
		GT         []domain.SpatialObject `json:"gt"`
		DET        []domain.SpatialObject `json:"det"`
		ToleranceM float64                `json:"tolerance_m"`
		Strategy   domain.Strategy        `json:"strategy"`
		GTPrefix   string                 `json:"gt_prefix"`
		DETPrefix  string                 `json:"det_prefix"`
		Sectors    []sectorKey            `json:"sectors"`
		SectorBufM float64                `json:"sector_buffer_m"`
	}{
		GT:         req.GT,
		DET:        req.DET,
		ToleranceM: opts.ToleranceM,
		Strategy:   opts.Strategy,
		GTPrefix:   opts.GTPrefix,
		DETPrefix:  opts.DETPrefix,
		SectorBufM: bufM,
	}
	for _, sec := range req.Sectors {
		key.Sectors = append(key.Sectors, sectorKey{Name: sec.Name, WKT: wkt.MarshalString(sec.Area)})
	}

	data, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RunFrom loads both collections from src into req and runs it.
func (s *EvaluationService) RunFrom(ctx context.Context, src ports.ObjectSource, req *domain.EvaluationRequest) (*domain.Evaluation, error) {
	gt, err := src.LoadObjects(ctx, domain.SourceGT)
	if err != nil {
		return nil, fmt.Errorf("load ground truth: %w", err)
	}
	det, err := src.LoadObjects(ctx, domain.SourceDET)
	if err != nil {
		return nil, fmt.Errorf("load detections: %w", err)
	}
	r := *req
	r.GT, r.DET = gt, det
	return s.Run(ctx, &r)
}
