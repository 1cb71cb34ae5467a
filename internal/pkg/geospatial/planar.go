package geospatial

import "math"

// Within reports whether two points are at most tol apart, i.e. whether the
// closed disk of radius tol around the first point contains the second.
func Within(x1, y1, x2, y2, tol float64) bool {
	dx, dy := x2-x1, y2-y1
	return dx*dx+dy*dy <= tol*tol
}

// Finite reports whether both coordinates are usable numbers.
func Finite(x, y float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && !math.IsNaN(y) && !math.IsInf(y, 0)
}
