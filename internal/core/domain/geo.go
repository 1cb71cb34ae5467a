package domain

import "github.com/paulmach/orb"

// Point is a coordinate in a projected, linear-unit reference frame.
// Tolerances and buffer sizes share the same unit.
type Point struct {
	X float64  `json:"x"`
	Y float64  `json:"y"`
	Z *float64 `json:"z,omitempty"`
}

// Orb returns the planar part of p as an orb.Point.
func (p Point) Orb() orb.Point {
	return orb.Point{p.X, p.Y}
}

// Sector is a named survey area. Evaluations can be scoped to the points
// falling inside it.
type Sector struct {
	Name string           `json:"name"`
	Area orb.MultiPolygon `json:"-"`
}
