package reframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMercatorRoundTrip(t *testing.T) {
	x, y := LonLatToMercator(14.4378, 50.0755) // Prague
	lon, lat := MercatorToLonLat(x, y)
	assert.InDelta(t, 14.4378, lon, 1e-6)
	assert.InDelta(t, 50.0755, lat, 1e-6)
}

func TestResolveNodeRoot(t *testing.T) {
	root := &Node{SRS: "root", Valid: true}
	rf := &ReferenceFrame{Root: root}
	n := rf.ResolveNode(0, 0, 0)
	assert.Same(t, root, n)
}

func TestResolveNodeChildren(t *testing.T) {
	child := &Node{SRS: "child-ne", Valid: true}
	root := &Node{SRS: "root", Valid: true}
	root.Children[1] = child // qx=1, qy=0 -> index 1

	rf := &ReferenceFrame{Root: root}
	n := rf.ResolveNode(1, 1, 0)
	assert.Same(t, child, n)
}

func TestExtentsExpand(t *testing.T) {
	e := EmptyExtents
	e = e.Expand(1, 2)
	e = e.Expand(-1, 5)
	assert.Equal(t, Extents{MinX: -1, MaxX: 1, MinY: 2, MaxY: 5}, e)
}

func TestChainShortCircuits(t *testing.T) {
	fail := ConvertorFunc(func(x, y, z float64) (float64, float64, float64, bool) { return 0, 0, 0, false })
	c := Chain(Identity(), fail, Identity())
	_, _, _, ok := c.Convert(1, 2, 3)
	assert.False(t, ok)
}
