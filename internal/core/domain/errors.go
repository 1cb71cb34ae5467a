package domain

import (
	"errors"
	"fmt"
)

// Input-shape errors. Any of these aborts the evaluation.
var (
	ErrMissingGeometry     = errors.New("missing geometry")
	ErrMissingIdentity     = errors.New("missing identity")
	ErrDuplicateIdentity   = errors.New("duplicate identity")
	ErrNonFiniteCoordinate = errors.New("non-finite coordinate")
	ErrCoordinateRange     = errors.New("coordinate out of range")
	ErrNotPoint            = errors.New("geometry is not a point")
	ErrInvalidOptions      = errors.New("invalid evaluation options")
)

// ErrNotFound is returned by repositories when an evaluation does not exist.
var ErrNotFound = errors.New("not found")

// InputError locates a bad record in one of the input collections.
//
// The underlying sentinel can be matched with errors.Is.
type InputError struct {
	Source Source
	Index  int
	ID     string
	Err    error
}

func (e *InputError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s object %d (%s): %v", e.Source, e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("%s object %d: %v", e.Source, e.Index, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// IsInputError reports whether err was caused by malformed input rather than
// an infrastructure failure.
func IsInputError(err error) bool {
	var ie *InputError
	if errors.As(err, &ie) {
		return true
	}
	return errors.Is(err, ErrInvalidOptions) || errors.Is(err, ErrNotPoint)
}
