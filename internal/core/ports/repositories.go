package ports

import (
	"context"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// EvaluationRepository persists evaluations and their tagged objects.
type EvaluationRepository interface {
	Save(ctx context.Context, eval *domain.Evaluation) error
	GetByID(ctx context.Context, id string) (*domain.Evaluation, error)
	// FindByDigest returns the oldest evaluation of an identical input, or
	// domain.ErrNotFound.
	FindByDigest(ctx context.Context, digest string) (*domain.Evaluation, error)
	// List returns summaries (no Result) newest first, plus the total count.
	List(ctx context.Context, offset, limit int) ([]domain.Evaluation, int, error)
	Objects(ctx context.Context, id string, source domain.Source) ([]domain.TaggedObject, error)
}

// ObjectSource loads one point collection (GT or DET) from an external store.
type ObjectSource interface {
	LoadObjects(ctx context.Context, source domain.Source) ([]domain.SpatialObject, error)
}
