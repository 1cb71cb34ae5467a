package matching

import (
	"log/slog"
	"math/big"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// Score applies the precision/recall/F1 policy: precision and recall are 0
// when TP is 0, F1 is 0 when either of them is 0. No division by zero can
// occur.
func Score(tp, fp, fn float64) (p, r, f1 float64) {
	if tp != 0 {
		p = tp / (tp + fp)
		r = tp / (tp + fn)
	}
	return p, r, harmonic(p, r)
}

// scoreExact is Score on rational sums; only the final scalars are floats.
func scoreExact(tp, fp, fn *big.Rat) (p, r, f1 float64) {
	if tp.Sign() != 0 {
		p, _ = new(big.Rat).Quo(tp, new(big.Rat).Add(tp, fp)).Float64()
		r, _ = new(big.Rat).Quo(tp, new(big.Rat).Add(tp, fn)).Float64()
	}
	return p, r, harmonic(p, r)
}

func harmonic(p, r float64) float64 {
	if p == 0 || r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Totals are the exact charge sums of a result.
type Totals struct {
	TPDET *big.Rat
	TPGT  *big.Rat
	FP    *big.Rat
	FN    *big.Rat
}

// Balanced reports whether the TP mass agrees on both sides.
func (t Totals) Balanced() bool { return t.TPDET.Cmp(t.TPGT) == 0 }

// Sum adds up the charges of res. Missing charge fields count as zero.
func Sum(res *domain.MatchResult) Totals {
	t := Totals{TPDET: new(big.Rat), TPGT: new(big.Rat), FP: new(big.Rat), FN: new(big.Rat)}
	for _, o := range res.DET {
		addRat(t.TPDET, o.Charge.TP)
		addRat(t.FP, o.Charge.FP)
	}
	for _, o := range res.GT {
		addRat(t.TPGT, o.Charge.TP)
		addRat(t.FN, o.Charge.FN)
	}
	return t
}

func addRat(acc, v *big.Rat) {
	if v != nil {
		acc.Add(acc, v)
	}
}

// Aggregate computes the metrics of a charged result. A TP mismatch between
// the DET and GT sides is logged, reported through the boolean and the DET
// sum is used.
func Aggregate(res *domain.MatchResult, logger *slog.Logger) (domain.MetricsRecord, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	t := Sum(res)
	if !t.Balanced() {
		logger.Warn("TP charge mismatch between detections and ground truth",
			"tp_det", t.TPDET.RatString(),
			"tp_gt", t.TPGT.RatString(),
		)
	}

	tp := t.TPDET
	p, r, f1 := scoreExact(tp, t.FP, t.FN)

	m := domain.MetricsRecord{
		TP:        ratFloat(tp),
		FP:        ratFloat(t.FP),
		FN:        ratFloat(t.FN),
		Precision: p,
		Recall:    r,
		F1:        f1,
		TPPlusFN:  ratFloat(new(big.Rat).Add(tp, t.FN)),
		TPPlusFP:  ratFloat(new(big.Rat).Add(tp, t.FP)),
		TPExact:   tp.RatString(),
		FPExact:   t.FP.RatString(),
		FNExact:   t.FN.RatString(),
	}
	return m, t.Balanced()
}

// CountMetrics builds the metrics of a binary matcher from integer counts.
func CountMetrics(tp, fp, fn int) domain.MetricsRecord {
	p, r, f1 := Score(float64(tp), float64(fp), float64(fn))
	return domain.MetricsRecord{
		TP:        float64(tp),
		FP:        float64(fp),
		FN:        float64(fn),
		Precision: p,
		Recall:    r,
		F1:        f1,
		TPPlusFN:  float64(tp + fn),
		TPPlusFP:  float64(tp + fp),
	}
}

func ratFloat(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}
