// Package geom provides the 2D primitives used by the monitoring pipeline:
// points, polygon membership tests and the perspective transform mapping
// image coordinates to real-world coordinates.
package geom

import (
	"fmt"
	"math"
)

// Point is a 2D point. Depending on context coordinates are pixels,
// normalized [0,1] frame fractions, or real-world meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Polygon is a closed ordered sequence of vertices. The closing edge from
// the last vertex back to the first is implicit.
type Polygon []Point

// Valid reports whether the polygon has enough vertices to bound an area.
func (pg Polygon) Valid() bool { return len(pg) >= 3 }

// Centroid returns the mean of the polygon's vertices. For the roughly
// convex zone quadrilaterals used here this is a good "middle of the spot"
// reference without full area weighting.
func (pg Polygon) Centroid() Point {
	var c Point
	if len(pg) == 0 {
		return c
	}
	for _, v := range pg {
		c.X += v.X
		c.Y += v.Y
	}
	c.X /= float64(len(pg))
	c.Y /= float64(len(pg))
	return c
}

// Scale returns a copy of the polygon with each vertex multiplied componentwise
// by (sx, sy). Used to resolve normalized zone polygons to pixel space.
func (pg Polygon) Scale(sx, sy float64) Polygon {
	out := make(Polygon, len(pg))
	for i, v := range pg {
		out[i] = Point{v.X * sx, v.Y * sy}
	}
	return out
}

// onSegment reports whether p lies on the segment a-b (within a small
// tolerance). Boundary points count as inside for zone membership.
func onSegment(p, a, b Point) bool {
	const eps = 1e-9
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > eps*(1+math.Abs(b.X-a.X)+math.Abs(b.Y-a.Y)) {
		return false
	}
	dot := (p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)
	if dot < -eps {
		return false
	}
	lenSq := (b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y)
	return dot <= lenSq+eps
}

// Contains reports whether p is inside the polygon, with inclusive boundary
// semantics: points exactly on an edge or vertex are inside.
func (pg Polygon) Contains(p Point) bool {
	if !pg.Valid() {
		return false
	}

	for i := range pg {
		if onSegment(p, pg[i], pg[(i+1)%len(pg)]) {
			return true
		}
	}

	// Ray cast to the right and count crossings.
	inside := false
	n := len(pg)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pg[i], pg[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xAtY := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xAtY {
				inside = !inside
			}
		}
	}
	return inside
}

// ErrCollinear is returned when the calibration points cannot define a
// perspective transform.
var ErrCollinear = fmt.Errorf("geom: calibration points are degenerate")
