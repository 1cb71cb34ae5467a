package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"

	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/usecases"
)

// --- Mock EvaluationRepository ---

type mockRepo struct {
	saveFn    func(ctx context.Context, eval *domain.Evaluation) error
	getByIDFn func(ctx context.Context, id string) (*domain.Evaluation, error)
	digestFn  func(ctx context.Context, digest string) (*domain.Evaluation, error)
	listFn    func(ctx context.Context, offset, limit int) ([]domain.Evaluation, int, error)
	objectsFn func(ctx context.Context, id string, source domain.Source) ([]domain.TaggedObject, error)
}

func (m *mockRepo) Save(ctx context.Context, eval *domain.Evaluation) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, eval)
	}
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockRepo) FindByDigest(ctx context.Context, digest string) (*domain.Evaluation, error) {
	if m.digestFn != nil {
		return m.digestFn(ctx, digest)
	}
	return nil, domain.ErrNotFound
}

func (m *mockRepo) List(ctx context.Context, offset, limit int) ([]domain.Evaluation, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockRepo) Objects(ctx context.Context, id string, source domain.Source) ([]domain.TaggedObject, error) {
	if m.objectsFn != nil {
		return m.objectsFn(ctx, id, source)
	}
	return nil, nil
}

// --- Mock CacheService ---

type mockCache struct {
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: map[string][]byte{}} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	events []*domain.EvaluationCompleted
	err    error
}

func (m *mockPublisher) PublishEvaluationCompleted(ctx context.Context, ev *domain.EvaluationCompleted) error {
	m.events = append(m.events, ev)
	return m.err
}

// --- Mock ObjectSource ---

type mockSource struct {
	gt, det []domain.SpatialObject
	err     error
}

func (m *mockSource) LoadObjects(ctx context.Context, source domain.Source) ([]domain.SpatialObject, error) {
	if m.err != nil {
		return nil, m.err
	}
	if source == domain.SourceGT {
		return m.gt, nil
	}
	return m.det, nil
}

func obj(x, y float64) domain.SpatialObject {
	return domain.SpatialObject{Geometry: &domain.Point{X: x, Y: y}}
}

func defaults() usecases.Defaults {
	return usecases.Defaults{ToleranceM: 1, Strategy: domain.StrategyGrouped}
}

// --- Tests ---

func TestEvaluationService_Run(t *testing.T) {
	var saved *domain.Evaluation
	repo := &mockRepo{saveFn: func(ctx context.Context, eval *domain.Evaluation) error {
		saved = eval
		return nil
	}}
	pub := &mockPublisher{}
	svc := usecases.NewEvaluationService(repo, nil, pub, defaults())

	// One tree, two detections: one TP shared, half an FP.
	req := &domain.EvaluationRequest{
		GT:  []domain.SpatialObject{obj(0, 0)},
		DET: []domain.SpatialObject{obj(0.5, 0), obj(-0.5, 0)},
	}
	eval, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.ID == "" || eval.Digest == "" {
		t.Fatalf("expected id and digest, got %+v", eval)
	}
	if eval.Metrics.TP != 1 || eval.Metrics.FP != 1 || eval.Metrics.FN != 0 {
		t.Errorf("unexpected metrics: %+v", eval.Metrics)
	}
	if eval.NumGroups != 1 || !eval.Balanced {
		t.Errorf("expected one balanced group, got %d balanced=%v", eval.NumGroups, eval.Balanced)
	}
	if saved == nil || saved.ID != eval.ID {
		t.Error("expected evaluation to be saved")
	}
	if len(pub.events) != 1 || pub.events[0].EvaluationID != eval.ID {
		t.Errorf("expected one completion event, got %d", len(pub.events))
	}
}

func TestEvaluationService_Run_RequestOverridesDefaults(t *testing.T) {
	svc := usecases.NewEvaluationService(nil, nil, nil, defaults())

	tol := 0.1
	eval, err := svc.Run(context.Background(), &domain.EvaluationRequest{
		GT:         []domain.SpatialObject{obj(0, 0)},
		DET:        []domain.SpatialObject{obj(0.5, 0)},
		ToleranceM: &tol,
		Strategy:   domain.StrategyNearest,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Strategy != domain.StrategyNearest || eval.ToleranceM != 0.1 {
		t.Errorf("overrides not applied: %s %v", eval.Strategy, eval.ToleranceM)
	}
	if eval.Metrics.TP != 0 || eval.Metrics.FP != 1 || eval.Metrics.FN != 1 {
		t.Errorf("unexpected metrics: %+v", eval.Metrics)
	}
}

func TestEvaluationService_Run_CachedByDigest(t *testing.T) {
	saves := 0
	repo := &mockRepo{saveFn: func(ctx context.Context, eval *domain.Evaluation) error {
		saves++
		return nil
	}}
	svc := usecases.NewEvaluationService(repo, newMockCache(), nil, defaults())

	req := &domain.EvaluationRequest{
		GT:  []domain.SpatialObject{obj(0, 0), obj(5, 5)},
		DET: []domain.SpatialObject{obj(0.2, 0)},
	}
	first, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected cached evaluation %s, got %s", first.ID, second.ID)
	}
	if second.Metrics != first.Metrics {
		t.Errorf("cached metrics differ: %+v vs %+v", second.Metrics, first.Metrics)
	}
	if saves != 1 {
		t.Errorf("expected 1 save, got %d", saves)
	}
}

func TestEvaluationService_Run_ReusesStoredByDigest(t *testing.T) {
	stored := map[string]*domain.Evaluation{}
	repo := &mockRepo{
		saveFn: func(ctx context.Context, eval *domain.Evaluation) error {
			stored[eval.Digest] = eval
			return nil
		},
		digestFn: func(ctx context.Context, digest string) (*domain.Evaluation, error) {
			if e, ok := stored[digest]; ok {
				return e, nil
			}
			return nil, domain.ErrNotFound
		},
	}
	// No cache: a retried run must still find the first result.
	svc := usecases.NewEvaluationService(repo, nil, nil, defaults())

	req := &domain.EvaluationRequest{
		GT:  []domain.SpatialObject{obj(0, 0)},
		DET: []domain.SpatialObject{obj(0.2, 0)},
	}
	first, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected stored evaluation %s, got %s", first.ID, second.ID)
	}
	if len(stored) != 1 {
		t.Errorf("expected 1 stored evaluation, got %d", len(stored))
	}
}

func TestEvaluationService_Run_DigestLookupError(t *testing.T) {
	saved := false
	repo := &mockRepo{
		saveFn: func(ctx context.Context, eval *domain.Evaluation) error {
			saved = true
			return nil
		},
		digestFn: func(ctx context.Context, digest string) (*domain.Evaluation, error) {
			return nil, errors.New("connection reset")
		},
	}
	svc := usecases.NewEvaluationService(repo, nil, nil, defaults())

	_, err := svc.Run(context.Background(), &domain.EvaluationRequest{
		GT:  []domain.SpatialObject{obj(0, 0)},
		DET: []domain.SpatialObject{obj(0.2, 0)},
	})
	if err == nil {
		t.Fatal("expected lookup error")
	}
	if domain.IsInputError(err) {
		t.Errorf("lookup failure must not be an input error: %v", err)
	}
	if saved {
		t.Error("nothing should be saved when the lookup fails")
	}
}

func TestEvaluationService_Run_InputError(t *testing.T) {
	svc := usecases.NewEvaluationService(nil, nil, nil, defaults())

	_, err := svc.Run(context.Background(), &domain.EvaluationRequest{
		GT: []domain.SpatialObject{obj(0, 0), {}},
	})
	if !errors.Is(err, domain.ErrMissingGeometry) {
		t.Fatalf("expected ErrMissingGeometry, got %v", err)
	}
	if !domain.IsInputError(err) {
		t.Error("expected an input error")
	}
}

func TestEvaluationService_Run_InvalidOptions(t *testing.T) {
	svc := usecases.NewEvaluationService(nil, nil, nil, defaults())

	tol := -1.0
	_, err := svc.Run(context.Background(), &domain.EvaluationRequest{ToleranceM: &tol})
	if !errors.Is(err, domain.ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}

	_, err = svc.Run(context.Background(), &domain.EvaluationRequest{Strategy: "hungarian"})
	if !errors.Is(err, domain.ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestEvaluationService_Run_SaveError(t *testing.T) {
	repo := &mockRepo{saveFn: func(ctx context.Context, eval *domain.Evaluation) error {
		return fmt.Errorf("connection refused")
	}}
	pub := &mockPublisher{}
	svc := usecases.NewEvaluationService(repo, nil, pub, defaults())

	_, err := svc.Run(context.Background(), &domain.EvaluationRequest{GT: []domain.SpatialObject{obj(0, 0)}})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(pub.events) != 0 {
		t.Error("no event expected when save fails")
	}
}

func TestEvaluationService_Run_PublishErrorIsNotFatal(t *testing.T) {
	svc := usecases.NewEvaluationService(nil, nil, &mockPublisher{err: errors.New("nats down")}, defaults())

	if _, err := svc.Run(context.Background(), &domain.EvaluationRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvaluationService_Run_Sectors(t *testing.T) {
	svc := usecases.NewEvaluationService(nil, nil, nil, defaults())

	west := domain.Sector{Name: "west", Area: orb.MultiPolygon{{{{-10, -10}, {0, -10}, {0, 10}, {-10, 10}, {-10, -10}}}}}
	east := domain.Sector{Name: "east", Area: orb.MultiPolygon{{{{0, -10}, {10, -10}, {10, 10}, {0, 10}, {0, -10}}}}}

	eval, err := svc.Run(context.Background(), &domain.EvaluationRequest{
		GT:      []domain.SpatialObject{obj(-5, 0), obj(5, 0)},
		DET:     []domain.SpatialObject{obj(-5, 0.5)},
		Sectors: []domain.Sector{west, east},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eval.Sectors) != 2 {
		t.Fatalf("expected 2 sector records, got %d", len(eval.Sectors))
	}
	if eval.Sectors[0].Sector != "west" || eval.Sectors[0].Metrics.F1 != 1 {
		t.Errorf("unexpected west record: %+v", eval.Sectors[0])
	}
	if eval.Sectors[1].Metrics.TP != 0 || eval.Sectors[1].Metrics.FN != 1 {
		t.Errorf("unexpected east record: %+v", eval.Sectors[1])
	}
}

func TestEvaluationService_RunFrom(t *testing.T) {
	svc := usecases.NewEvaluationService(nil, nil, nil, defaults())

	src := &mockSource{gt: []domain.SpatialObject{obj(0, 0)}, det: []domain.SpatialObject{obj(0, 0)}}
	eval, err := svc.RunFrom(context.Background(), src, &domain.EvaluationRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Metrics.F1 != 1 {
		t.Errorf("expected f1 1, got %v", eval.Metrics.F1)
	}

	_, err = svc.RunFrom(context.Background(), &mockSource{err: errors.New("no file")}, &domain.EvaluationRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEvaluationService_Get_InvalidID(t *testing.T) {
	called := false
	repo := &mockRepo{getByIDFn: func(ctx context.Context, id string) (*domain.Evaluation, error) {
		called = true
		return nil, nil
	}}
	svc := usecases.NewEvaluationService(repo, nil, nil, defaults())

	if _, err := svc.Get(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if called {
		t.Error("repo should not be called for a malformed id")
	}
}

func TestEvaluationService_Get_ReadThroughCache(t *testing.T) {
	const id = "0b5c6a3e-1d2f-4a8b-9c7d-6e5f4a3b2c1d"
	loads := 0
	repo := &mockRepo{getByIDFn: func(ctx context.Context, got string) (*domain.Evaluation, error) {
		loads++
		return &domain.Evaluation{ID: got, Strategy: domain.StrategyGrouped}, nil
	}}
	svc := usecases.NewEvaluationService(repo, newMockCache(), nil, defaults())

	for i := 0; i < 2; i++ {
		eval, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eval.ID != id {
			t.Errorf("expected %s, got %s", id, eval.ID)
		}
	}
	if loads != 1 {
		t.Errorf("expected 1 repository load, got %d", loads)
	}
}

func TestEvaluationService_Warm(t *testing.T) {
	const id = "0b5c6a3e-1d2f-4a8b-9c7d-6e5f4a3b2c1d"
	cache := newMockCache()
	repo := &mockRepo{getByIDFn: func(ctx context.Context, got string) (*domain.Evaluation, error) {
		if got != id {
			return nil, domain.ErrNotFound
		}
		return &domain.Evaluation{ID: got}, nil
	}}
	svc := usecases.NewEvaluationService(repo, cache, nil, defaults())

	if err := svc.Warm(context.Background(), &domain.EvaluationCompleted{EvaluationID: id}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cache.data["evaluation:id:"+id]; !ok {
		t.Error("expected the evaluation to be cached")
	}

	// unknown evaluations are dropped, not redelivered
	if err := svc.Warm(context.Background(), &domain.EvaluationCompleted{EvaluationID: "7a6b5c4d-3e2f-4a1b-8c9d-0e1f2a3b4c5d"}); err != nil {
		t.Errorf("expected nil for unknown evaluation, got %v", err)
	}

	repo.getByIDFn = func(ctx context.Context, got string) (*domain.Evaluation, error) {
		return nil, errors.New("db down")
	}
	if err := svc.Warm(context.Background(), &domain.EvaluationCompleted{EvaluationID: "7a6b5c4d-3e2f-4a1b-8c9d-0e1f2a3b4c5d"}); err == nil {
		t.Error("expected repository errors to surface")
	}
}

func TestEvaluationService_List_ClampLimit(t *testing.T) {
	var gotLimit, gotOffset int
	repo := &mockRepo{listFn: func(ctx context.Context, offset, limit int) ([]domain.Evaluation, int, error) {
		gotOffset, gotLimit = offset, limit
		return nil, 0, nil
	}}
	svc := usecases.NewEvaluationService(repo, nil, nil, defaults())

	_, _, _ = svc.List(context.Background(), -5, 1000)
	if gotLimit != 20 || gotOffset != 0 {
		t.Errorf("expected offset 0 limit 20, got %d %d", gotOffset, gotLimit)
	}
}

func TestEvaluationService_Objects_UnknownSource(t *testing.T) {
	svc := usecases.NewEvaluationService(&mockRepo{}, nil, nil, defaults())

	_, err := svc.Objects(context.Background(), "3f1b7c1e-8d0a-4d7e-9a55-1b2c3d4e5f60", "both")
	if !errors.Is(err, domain.ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestEvaluationService_Score(t *testing.T) {
	svc := usecases.NewEvaluationService(nil, nil, nil, defaults())

	m, err := svc.Score(3, 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Precision != 0.75 || m.Recall != 0.6 {
		t.Errorf("unexpected p/r: %v %v", m.Precision, m.Recall)
	}

	m, _ = svc.Score(0, 4, 4)
	if m.Precision != 0 || m.Recall != 0 || m.F1 != 0 {
		t.Errorf("expected all zero, got %+v", m)
	}

	if _, err := svc.Score(-1, 0, 0); !errors.Is(err, usecases.ErrNegativeCount) {
		t.Fatalf("expected ErrNegativeCount, got %v", err)
	}
}
