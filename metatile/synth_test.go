package metatile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GrainArc/vtsproxy/gdaldriver"
	"github.com/GrainArc/vtsproxy/reframe"
	"github.com/GrainArc/vtsproxy/tileindex"
)

func leafRF(valid bool) *reframe.ReferenceFrame {
	return &reframe.ReferenceFrame{
		ID:   "test",
		Root: &reframe.Node{SRS: "test-srs", Extents: reframe.Extents{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000}, Productive: true, Valid: valid},
	}
}

func TestSetChildrenRequiresBothValidSubtreeAndReferenceFrameValidity(t *testing.T) {
	t.Parallel()
	parent := tileindex.TileID{LOD: 5, X: 3, Y: 4}
	child0 := parent.Child(0, 0) // quadrant 0

	idx := tileindex.NewBuilder()
	idx.Set(child0, tileindex.FlagMesh)
	index := idx.Build()

	t.Run("valid subtree and valid reference frame node", func(t *testing.T) {
		p := Params{Index: index, RF: leafRF(true)}
		f := setChildren(p, parent)

		for q := 0; q < 4; q++ {
			dx, dy := q%2, q/2
			child := parent.Child(dx, dy)
			want := index.ValidSubtree(child) && p.RF.Contains(child.LOD, child.X, child.Y)
			assert.Equal(t, want, f.ChildValid(q), "quadrant %d", q)
		}
		assert.True(t, f.ChildValid(0))
		assert.False(t, f.ChildValid(1))
	})

	t.Run("valid subtree but reference frame node invalid", func(t *testing.T) {
		p := Params{Index: index, RF: leafRF(false)}
		f := setChildren(p, parent)

		// index.ValidSubtree(child0) is true on its own, but an invalid
		// reference-frame node must still veto child validity.
		assert.False(t, f.ChildValid(0), "childValid must imply rf.valid, not just validSubtree")
		for q := 0; q < 4; q++ {
			assert.False(t, f.ChildValid(q))
		}
	})
}

func identityConvertorSet() ConvertorSet {
	id := reframe.Identity()
	return ConvertorSet{Physical: id, Nav: id, Geodetic: id}
}

func TestAccumulateTileZeroTrianglesClearsGeometryNavtileAndHeightRange(t *testing.T) {
	t.Parallel()
	tile := tileindex.TileID{LOD: 5, X: 0, Y: 0}

	idx := tileindex.NewBuilder()
	idx.Set(tile, tileindex.FlagMesh|tileindex.FlagNavtile)
	p := Params{Index: idx.Build(), RF: leafRF(true)}

	gridWidth := samplesPerTile + 1
	samples := make([]gdaldriver.Sample, gridWidth*gridWidth)
	for i := range samples {
		samples[i] = gdaldriver.Sample{Avg: -2e6, Min: -2e6, Max: -2e6} // all invalid
	}

	mt := &Metatile{Nodes: map[tileindex.TileID]Metanode{}}
	extents := reframe.Extents{MinX: 0, MinY: 0, MaxX: 800, MaxY: 800}
	accumulateTile(mt, p, tile, samples, gridWidth, 0, 0, extents, identityConvertorSet(), 800*800)

	node, ok := mt.Get(tile)
	assert.True(t, ok)
	assert.False(t, node.Flags&FlagGeometryPresent != 0, "no triangles must clear geometry")
	assert.False(t, node.Flags&FlagNavtilePresent != 0, "no triangles must clear navtile")
	assert.True(t, node.HeightRange.Empty(), "no triangles must leave the height range empty")
	assert.Equal(t, GeomExtents{}, node.GeomExtents)
}

func TestAccumulateTileWithValidSamplesSetsGeometryAndHeightRange(t *testing.T) {
	t.Parallel()
	tile := tileindex.TileID{LOD: 5, X: 0, Y: 0}

	idx := tileindex.NewBuilder()
	idx.Set(tile, tileindex.FlagMesh|tileindex.FlagNavtile)
	p := Params{Index: idx.Build(), RF: leafRF(true)}

	gridWidth := samplesPerTile + 1
	samples := make([]gdaldriver.Sample, gridWidth*gridWidth)
	for i := range samples {
		samples[i] = gdaldriver.Sample{Avg: 100, Min: 90, Max: 110}
	}

	mt := &Metatile{Nodes: map[tileindex.TileID]Metanode{}}
	extents := reframe.Extents{MinX: 0, MinY: 0, MaxX: 800, MaxY: 800}
	accumulateTile(mt, p, tile, samples, gridWidth, 0, 0, extents, identityConvertorSet(), 800*800)

	node, ok := mt.Get(tile)
	assert.True(t, ok)
	assert.True(t, node.Flags&FlagGeometryPresent != 0)
	assert.True(t, node.Flags&FlagNavtilePresent != 0)
	assert.False(t, node.HeightRange.Empty())
	assert.Equal(t, 100.0, node.HeightRange.Min)
	assert.Equal(t, 100.0, node.HeightRange.Max)
}
