package matching

import (
	"sort"
	"strings"

	"github.com/dhconnelly/rtreego"

	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/pkg/geospatial"
)

// R-tree node fan-out.
const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
)

// Grouping is the outcome of the overlap join: the clusters plus the objects
// that overlap nothing.
type Grouping struct {
	GT  []domain.SpatialObject
	DET []domain.SpatialObject

	Groups []domain.Group
	// TrivialFP lists DET identities with no GT inside their buffer.
	TrivialFP []string
	// TrivialFN lists GT identities inside no DET buffer.
	TrivialFN []string

	// groupOf maps a prefixed node label to its group id.
	groupOf map[string]int
	opts    Options
}

// GroupOf returns the group of an object, or false when it is trivial.
func (g *Grouping) GroupOf(source domain.Source, id string) (int, bool) {
	gid, ok := g.groupOf[g.label(source, id)]
	return gid, ok
}

func (g *Grouping) label(source domain.Source, id string) string {
	if source == domain.SourceGT {
		return g.opts.GTPrefix + id
	}
	return g.opts.DETPrefix + id
}

// gtEntry is a GT point stored in the R-tree.
type gtEntry struct {
	index int
	rect  rtreego.Rect
}

func (e *gtEntry) Bounds() rtreego.Rect { return e.rect }

// Pair is one DET buffer intersecting one GT point, by slice index.
type Pair struct {
	DET int
	GT  int
}

// Intersections returns every (DET buffer, GT point) pair at most tol apart.
// The R-tree only proposes candidates; each is confirmed with the exact disk
// test. Pairs are ordered by DET index then GT index.
func Intersections(gt, det []domain.SpatialObject, tol float64) []Pair {
	if len(gt) == 0 || len(det) == 0 {
		return nil
	}

	// Rectangles are padded by one quantum so that touching and degenerate
	// boxes are still reported as candidates.
	pad := geospatial.Quantum
	tree := rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren)
	for i, o := range gt {
		p := rtreego.Point{o.Geometry.X, o.Geometry.Y}
		tree.Insert(&gtEntry{index: i, rect: p.ToRect(pad)})
	}

	var pairs []Pair
	for j, d := range det {
		q := rtreego.Point{d.Geometry.X, d.Geometry.Y}
		hits := tree.SearchIntersect(q.ToRect(tol + pad))
		idx := make([]int, 0, len(hits))
		for _, h := range hits {
			e := h.(*gtEntry)
			g := gt[e.index].Geometry
			if geospatial.Within(d.Geometry.X, d.Geometry.Y, g.X, g.Y, tol) {
				idx = append(idx, e.index)
			}
		}
		sort.Ints(idx)
		for _, i := range idx {
			pairs = append(pairs, Pair{DET: j, GT: i})
		}
	}
	return pairs
}

// Group joins buffered detections against ground truth and clusters the
// overlaps into connected components. Both collections must be indexed.
func Group(gt, det []domain.SpatialObject, opts Options) (*Grouping, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if err := checkIndexed(gt, domain.SourceGT); err != nil {
		return nil, err
	}
	if err := checkIndexed(det, domain.SourceDET); err != nil {
		return nil, err
	}

	g := &Grouping{GT: gt, DET: det, opts: opts, groupOf: make(map[string]int)}

	pairs := Intersections(gt, det, opts.ToleranceM)

	// Left-outer and right-outer views of the same join.
	detHit := make([]bool, len(det))
	gtHit := make([]bool, len(gt))
	ds := newDisjointSet(2 * len(pairs))
	for _, p := range pairs {
		detHit[p.DET] = true
		gtHit[p.GT] = true
		ds.union(opts.DETPrefix+det[p.DET].ID, opts.GTPrefix+gt[p.GT].ID)
	}
	for j, hit := range detHit {
		if !hit {
			g.TrivialFP = append(g.TrivialFP, det[j].ID)
		}
	}
	for i, hit := range gtHit {
		if !hit {
			g.TrivialFN = append(g.TrivialFN, gt[i].ID)
		}
	}

	for n, members := range ds.components() {
		grp := domain.Group{ID: n}
		for _, label := range members {
			switch {
			case strings.HasPrefix(label, opts.GTPrefix):
				grp.GT = append(grp.GT, strings.TrimPrefix(label, opts.GTPrefix))
			case strings.HasPrefix(label, opts.DETPrefix):
				grp.DET = append(grp.DET, strings.TrimPrefix(label, opts.DETPrefix))
			}
			g.groupOf[label] = n
		}
		g.Groups = append(g.Groups, grp)
	}

	return g, nil
}
