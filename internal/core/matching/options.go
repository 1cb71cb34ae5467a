// Package matching scores detected point objects against ground truth.
//
// Two strategies are available. The grouped strategy buffers detections by
// the tolerance, clusters every connected overlap between ground truth and
// detections and spreads exact rational credit over each cluster. The
// nearest strategy is the older binary 1-nearest-neighbour matcher.
package matching

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strings"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// Default origin prefixes used to label overlap graph nodes.
const (
	DefaultGTPrefix  = "gt:"
	DefaultDETPrefix = "det:"
)

// Options configures one evaluation.
type Options struct {
	ToleranceM float64
	Strategy   domain.Strategy
	GTPrefix   string
	DETPrefix  string
	// Workers bounds concurrent charge assignment. Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = domain.StrategyGrouped
	}
	if o.GTPrefix == "" {
		o.GTPrefix = DefaultGTPrefix
	}
	if o.DETPrefix == "" {
		o.DETPrefix = DefaultDETPrefix
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Validate checks the tolerance, the strategy and the prefix convention.
func (o Options) Validate() error {
	var errs []string

	if math.IsNaN(o.ToleranceM) || math.IsInf(o.ToleranceM, 0) || o.ToleranceM < 0 {
		errs = append(errs, fmt.Sprintf("tolerance must be a finite value >= 0, got %v", o.ToleranceM))
	}
	switch o.Strategy {
	case "", domain.StrategyGrouped, domain.StrategyNearest:
	default:
		errs = append(errs, fmt.Sprintf("unknown strategy %q", o.Strategy))
	}
	gt, det := o.GTPrefix, o.DETPrefix
	if gt == "" {
		gt = DefaultGTPrefix
	}
	if det == "" {
		det = DefaultDETPrefix
	}
	if strings.HasPrefix(gt, det) || strings.HasPrefix(det, gt) {
		errs = append(errs, fmt.Sprintf("prefixes %q and %q are not disjoint", gt, det))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidOptions, strings.Join(errs, "; "))
	}
	return nil
}
