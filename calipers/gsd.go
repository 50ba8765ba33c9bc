package calipers

import (
	"math"

	"github.com/GrainArc/vtsproxy/reframe"
)

// ComputeGSD estimates a dataset's ground sample distance in meters,
// matching computeGsd() in the original tool: project the dataset's
// center pixel into a transverse Mercator centered on the dataset
// itself, and take the square root of that pixel's projected area.
// Projecting a single, centrally-located pixel rather than averaging
// over the whole raster keeps this cheap and immune to datasets with
// wildly non-uniform pixel spacing away from the center.
func ComputeGSD(ds Dataset) float64 {
	cLon, cLat := ds.center()
	pxW, pxH := ds.pixelSize()
	hw, hh := pxW/2, pxH/2

	tm := reframe.TransverseMercator(cLon, cLat)

	corner := func(dx, dy float64) (float64, float64, bool) {
		x, y, _, ok := tm.Convert(cLon+dx, cLat+dy, 0)
		return x, y, ok
	}

	x0, y0, ok0 := corner(-hw, -hh)
	x1, y1, ok1 := corner(-hw, hh)
	x2, y2, ok2 := corner(hw, hh)
	x3, y3, ok3 := corner(hw, -hh)
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return 0
	}

	pxArea := triangleArea2(x0, y0, x1, y1, x2, y2) + triangleArea2(x2, y2, x3, y3, x0, y0)
	return math.Sqrt(pxArea)
}

func triangleArea2(ax, ay, bx, by, cx, cy float64) float64 {
	return math.Abs((bx-ax)*(cy-ay)-(cx-ax)*(by-ay)) / 2
}
