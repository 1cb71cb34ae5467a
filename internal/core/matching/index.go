package matching

import (
	"errors"
	"fmt"

	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/pkg/geospatial"
)

// Index returns a copy of objs with every ID derived from its geometry and
// Source set. Inputs are left untouched.
func Index(objs []domain.SpatialObject, source domain.Source) ([]domain.SpatialObject, error) {
	out := make([]domain.SpatialObject, len(objs))
	seen := make(map[string]int, len(objs))

	for i, o := range objs {
		if o.Geometry == nil {
			return nil, &domain.InputError{Source: source, Index: i, ID: o.ID, Err: domain.ErrMissingGeometry}
		}
		id, err := geospatial.Identity(o.Geometry.X, o.Geometry.Y)
		if err != nil {
			kind := domain.ErrNonFiniteCoordinate
			if errors.Is(err, geospatial.ErrOutOfRange) {
				kind = domain.ErrCoordinateRange
			}
			return nil, &domain.InputError{
				Source: source,
				Index:  i,
				Err:    fmt.Errorf("%w: %w", kind, err),
			}
		}
		if prev, dup := seen[id]; dup {
			return nil, &domain.InputError{
				Source: source,
				Index:  i,
				ID:     id,
				Err:    fmt.Errorf("%w: same location as object %d", domain.ErrDuplicateIdentity, prev),
			}
		}
		seen[id] = i

		out[i] = o
		out[i].ID = id
		out[i].Source = source
	}
	return out, nil
}

// checkIndexed verifies that objs went through Index.
func checkIndexed(objs []domain.SpatialObject, source domain.Source) error {
	seen := make(map[string]struct{}, len(objs))
	for i, o := range objs {
		if o.ID == "" {
			return &domain.InputError{Source: source, Index: i, Err: domain.ErrMissingIdentity}
		}
		if o.Geometry == nil {
			return &domain.InputError{Source: source, Index: i, ID: o.ID, Err: domain.ErrMissingGeometry}
		}
		if _, dup := seen[o.ID]; dup {
			return &domain.InputError{Source: source, Index: i, ID: o.ID, Err: domain.ErrDuplicateIdentity}
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}
