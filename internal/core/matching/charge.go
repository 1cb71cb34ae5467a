package matching

import (
	"context"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// Charges maps a prefixed node label to the charge of that object.
type Charges map[string]domain.Charge

// GroupCharges computes the charges of one group.
//
// With shared = min(nGT, nDET), every DET gets TP = shared/nDET and
// FP = (nDET-shared)/nDET, every GT gets TP = shared/nGT and
// FN = (nGT-shared)/nGT.
func GroupCharges(nGT, nDET int) (det, gt domain.Charge) {
	shared := min(nGT, nDET)
	excessFP := max(0, nDET-nGT)
	excessFN := max(0, nGT-nDET)

	det = domain.Charge{
		TP: big.NewRat(int64(shared), int64(nDET)),
		FP: big.NewRat(int64(excessFP), int64(nDET)),
	}
	gt = domain.Charge{
		TP: big.NewRat(int64(shared), int64(nGT)),
		FN: big.NewRat(int64(excessFN), int64(nGT)),
	}
	return det, gt
}

// trivialFP and trivialFN return fresh charges for unmatched objects.
func trivialFP() domain.Charge {
	return domain.Charge{TP: new(big.Rat), FP: big.NewRat(1, 1)}
}

func trivialFN() domain.Charge {
	return domain.Charge{TP: new(big.Rat), FN: big.NewRat(1, 1)}
}

// AssignCharges charges every object of g. Groups are processed concurrently;
// each worker only fills its own slot, and the map is built in one pass once
// all workers are done.
func AssignCharges(ctx context.Context, g *Grouping) (Charges, error) {
	type slot struct{ det, gt domain.Charge }
	slots := make([]slot, len(g.Groups))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for i, grp := range g.Groups {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			det, gt := GroupCharges(len(grp.GT), len(grp.DET))
			slots[i] = slot{det: det, gt: gt}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	charges := make(Charges, len(g.GT)+len(g.DET))
	for i, grp := range g.Groups {
		for _, id := range grp.DET {
			charges[g.opts.DETPrefix+id] = slots[i].det
		}
		for _, id := range grp.GT {
			charges[g.opts.GTPrefix+id] = slots[i].gt
		}
	}
	for _, id := range g.TrivialFP {
		charges[g.opts.DETPrefix+id] = trivialFP()
	}
	for _, id := range g.TrivialFN {
		charges[g.opts.GTPrefix+id] = trivialFN()
	}
	return charges, nil
}

// Assemble builds the augmented collections of a grouped evaluation, in
// input order.
func Assemble(g *Grouping, charges Charges) *domain.MatchResult {
	res := &domain.MatchResult{
		GT:     make([]domain.TaggedObject, len(g.GT)),
		DET:    make([]domain.TaggedObject, len(g.DET)),
		Groups: g.Groups,
	}
	for i, o := range g.GT {
		res.GT[i] = tagged(g, o, domain.SourceGT, charges)
	}
	for j, o := range g.DET {
		res.DET[j] = tagged(g, o, domain.SourceDET, charges)
	}
	return res
}

func tagged(g *Grouping, o domain.SpatialObject, source domain.Source, charges Charges) domain.TaggedObject {
	o.Source = source
	t := domain.TaggedObject{SpatialObject: o, Charge: charges[g.label(source, o.ID)]}
	if gid, ok := g.GroupOf(source, o.ID); ok {
		t.GroupID = &gid
	}
	return t
}
