package metatile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// quadArea returns the planar area of the quadrilateral formed by four
// grid-sample corners (a, b, c, d given in either winding order), split
// into one or two triangles as spec.md §4.3 step 5 describes. A triangle
// counts whenever its three corners are valid; a degenerate (collinear or
// coincident) triangle adds area 0 but is still counted.
func quadArea(a, b, c, d orb.Point, validA, validB, validC, validD bool) (area float64, triangles int) {
	tryTri := func(p1, p2, p3 orb.Point, v1, v2, v3 bool) (float64, bool) {
		if !v1 || !v2 || !v3 {
			return 0, false
		}
		poly := orb.Polygon{orb.Ring{p1, p2, p3, p1}}
		a := planar.Area(poly)
		if a < 0 {
			a = -a
		}
		return a, true
	}

	if a1, ok := tryTri(a, b, c, validA, validB, validC); ok {
		area += a1
		triangles++
	}
	if a2, ok := tryTri(a, c, d, validA, validC, validD); ok {
		area += a2
		triangles++
	}
	return area, triangles
}
