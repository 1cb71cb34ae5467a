package matching

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// InSector reports whether p lies inside the sector or within bufferM of its
// boundary, which is membership of the sector buffered by bufferM.
func InSector(p orb.Point, sector domain.Sector, bufferM float64) bool {
	if planar.MultiPolygonContains(sector.Area, p) {
		return true
	}
	if bufferM <= 0 {
		return false
	}
	for _, poly := range sector.Area {
		for _, ring := range poly {
			for k := 0; k+1 < len(ring); k++ {
				if planar.DistanceFromSegment(ring[k], ring[k+1], p) <= bufferM {
					return true
				}
			}
		}
	}
	return false
}

// Clip returns the objects of objs falling in the buffered sector.
func Clip(objs []domain.SpatialObject, sector domain.Sector, bufferM float64) []domain.SpatialObject {
	var out []domain.SpatialObject
	for _, o := range objs {
		if o.Geometry != nil && InSector(o.Geometry.Orb(), sector, bufferM) {
			out = append(out, o)
		}
	}
	return out
}
