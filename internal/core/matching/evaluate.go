package matching

import (
	"context"
	"fmt"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// Outcome is the product of one evaluation run.
type Outcome struct {
	Result  *domain.MatchResult
	Metrics domain.MetricsRecord
	// Balanced is false when the two sides disagree on TP mass.
	Balanced bool
}

// Evaluate indexes both collections and scores them with the configured
// strategy. Input-shape errors abort; TP mismatches only produce a warning.
func Evaluate(ctx context.Context, gt, det []domain.SpatialObject, opts Options) (*Outcome, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	igt, err := Index(gt, domain.SourceGT)
	if err != nil {
		return nil, fmt.Errorf("index ground truth: %w", err)
	}
	idet, err := Index(det, domain.SourceDET)
	if err != nil {
		return nil, fmt.Errorf("index detections: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.Strategy == domain.StrategyNearest {
		res, m, ok, err := MatchNearest(igt, idet, opts.ToleranceM, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("nearest: %w", err)
		}
		return &Outcome{Result: res, Metrics: m, Balanced: ok}, nil
	}

	grouping, err := Group(igt, idet, opts)
	if err != nil {
		return nil, fmt.Errorf("group: %w", err)
	}
	charges, err := AssignCharges(ctx, grouping)
	if err != nil {
		return nil, fmt.Errorf("assign charges: %w", err)
	}
	res := Assemble(grouping, charges)
	m, ok := Aggregate(res, opts.Logger)

	opts.Logger.Debug("grouped evaluation done",
		"gt", len(igt),
		"det", len(idet),
		"groups", len(grouping.Groups),
		"trivial_fp", len(grouping.TrivialFP),
		"trivial_fn", len(grouping.TrivialFN),
	)
	return &Outcome{Result: res, Metrics: m, Balanced: ok}, nil
}

// EvaluateSectors scores the objects of every sector separately. Objects are
// clipped to the sector buffered by bufferM before matching.
func EvaluateSectors(ctx context.Context, gt, det []domain.SpatialObject, sectors []domain.Sector, bufferM float64, opts Options) ([]domain.SectorMetrics, error) {
	out := make([]domain.SectorMetrics, 0, len(sectors))
	for _, s := range sectors {
		sgt := Clip(gt, s, bufferM)
		sdet := Clip(det, s, bufferM)
		oc, err := Evaluate(ctx, sgt, sdet, opts)
		if err != nil {
			return nil, fmt.Errorf("sector %s: %w", s.Name, err)
		}
		out = append(out, domain.SectorMetrics{
			Sector:  s.Name,
			NumGT:   len(sgt),
			NumDET:  len(sdet),
			Metrics: oc.Metrics,
		})
	}
	return out, nil
}
