package matching

import (
	"log/slog"
	"math"
	"math/big"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// detPoint is a detection stored in the kd-tree. It keeps its slice index so
// that the nearest neighbour can be tagged.
type detPoint struct {
	index int
	x, y  float64
}

func (p detPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(detPoint)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p detPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance.
func (p detPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(detPoint)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type detPoints []detPoint

func (p detPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p detPoints) Len() int                              { return len(p) }
func (p detPoints) Pivot(d kdtree.Dim) int                { return plane{detPoints: p, Dim: d}.Pivot() }
func (p detPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane sorts detPoints along one dimension.
type plane struct {
	kdtree.Dim
	detPoints
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.detPoints[i].x < p.detPoints[j].x
	}
	return p.detPoints[i].y < p.detPoints[j].y
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.detPoints = p.detPoints[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.detPoints[i], p.detPoints[j] = p.detPoints[j], p.detPoints[i]
}

// neighbour is the nearest detection of one GT point.
type neighbour struct {
	DET      int
	Distance float64
}

// nearestNeighbours returns, for every GT point, its nearest detection and
// the Euclidean distance. DET is -1 when there are no detections.
func nearestNeighbours(gt, det []domain.SpatialObject) []neighbour {
	out := make([]neighbour, len(gt))
	if len(det) == 0 {
		for i := range out {
			out[i] = neighbour{DET: -1, Distance: math.Inf(1)}
		}
		return out
	}

	pts := make(detPoints, len(det))
	for j, d := range det {
		pts[j] = detPoint{index: j, x: d.Geometry.X, y: d.Geometry.Y}
	}
	tree := kdtree.New(pts, false)

	for i, g := range gt {
		c, d2 := tree.Nearest(detPoint{x: g.Geometry.X, y: g.Geometry.Y})
		out[i] = neighbour{DET: c.(detPoint).index, Distance: math.Sqrt(d2)}
	}
	return out
}

// MatchNearest is the binary matcher. A GT point is TP when its nearest
// detection lies within tol, FN otherwise. A detection is TP when it is the
// nearest neighbour behind at least one such match, FP otherwise.
//
// One detection can be the nearest neighbour of several GT points, so the two
// TP counts may differ. The mismatch is logged and reported through the
// boolean; GT counts drive TP and FN, DET counts drive FP.
//
// Both collections must come from Index.
func MatchNearest(gt, det []domain.SpatialObject, tol float64, logger *slog.Logger) (*domain.MatchResult, domain.MetricsRecord, bool, error) {
	if err := checkIndexed(gt, domain.SourceGT); err != nil {
		return nil, domain.MetricsRecord{}, false, err
	}
	if err := checkIndexed(det, domain.SourceDET); err != nil {
		return nil, domain.MetricsRecord{}, false, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	nn := nearestNeighbours(gt, det)
	detTP := make([]bool, len(det))
	res := &domain.MatchResult{
		GT:  make([]domain.TaggedObject, len(gt)),
		DET: make([]domain.TaggedObject, len(det)),
	}

	var tp, fn, fp, tpDET int
	for i, g := range gt {
		g.Source = domain.SourceGT
		t := domain.TaggedObject{SpatialObject: g}
		if nn[i].DET >= 0 && nn[i].Distance <= tol {
			detTP[nn[i].DET] = true
			t.Tag = domain.TagTP
			t.Charge = domain.Charge{TP: big.NewRat(1, 1), FN: new(big.Rat)}
			tp++
		} else {
			t.Tag = domain.TagFN
			t.Charge = domain.Charge{TP: new(big.Rat), FN: big.NewRat(1, 1)}
			fn++
		}
		res.GT[i] = t
	}
	for j, d := range det {
		d.Source = domain.SourceDET
		t := domain.TaggedObject{SpatialObject: d}
		if detTP[j] {
			t.Tag = domain.TagTP
			t.Charge = domain.Charge{TP: big.NewRat(1, 1), FP: new(big.Rat)}
			tpDET++
		} else {
			t.Tag = domain.TagFP
			t.Charge = domain.Charge{TP: new(big.Rat), FP: big.NewRat(1, 1)}
			fp++
		}
		res.DET[j] = t
	}

	balanced := tp == tpDET
	if !balanced {
		logger.Warn("TP count mismatch between detections and ground truth",
			"tp_det", tpDET,
			"tp_gt", tp,
		)
	}
	return res, CountMetrics(tp, fp, fn), balanced, nil
}
