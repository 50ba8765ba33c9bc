package calipers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrainArc/vtsproxy/reframe"
)

const worldExtent = 20037508.342789244

func mercatorConvertor(srs string) reframe.Convertor {
	return reframe.ConvertorFunc(func(lon, lat, z float64) (float64, float64, float64, bool) {
		x, y := reframe.LonLatToMercator(lon, lat)
		return x, y, z, true
	})
}

func worldFrame() *reframe.ReferenceFrame {
	root := &reframe.Node{
		SRS: "mercator",
		Extents: reframe.Extents{
			MinX: -worldExtent, MinY: -worldExtent,
			MaxX: worldExtent, MaxY: worldExtent,
		},
		Valid: true,
	}
	return &reframe.ReferenceFrame{ID: "test", Root: root}
}

func smallOphoto() Dataset {
	return Dataset{
		BandCount: 3, DataType: "Byte",
		Width: 2048, Height: 2048,
		MinLon: 14.0, MaxLon: 14.1,
		MinLat: 50.0, MaxLat: 50.1,
	}
}

func TestMeasureProducesSaneLODRange(t *testing.T) {
	res, err := Measure(smallOphoto(), DefaultParams(), worldFrame(), mercatorConvertor)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)

	n := res.Nodes[0]
	assert.Equal(t, "mercator", n.SRS)
	assert.LessOrEqual(t, n.LODRange.Min, n.LODRange.Max)
	assert.Positive(t, n.LODRange.Max)

	for lod := n.LODRange.Min; lod <= n.LODRange.Max; lod++ {
		tr, ok := n.TileRange[lod]
		require.True(t, ok, "missing tile range for lod %d", lod)
		assert.LessOrEqual(t, tr.MinX, tr.MaxX)
		assert.LessOrEqual(t, tr.MinY, tr.MaxY)
	}
}

func TestMeasureDatasetOutsideNodeProducesNoResult(t *testing.T) {
	ds := smallOphoto()
	// A node clamped to a tiny patch next to 0°,0°, far from the dataset.
	root := &reframe.Node{
		SRS:     "mercator",
		Extents: reframe.Extents{MinX: -1000, MinY: -1000, MaxX: -900, MaxY: -900},
		Valid:   true,
	}
	rf := &reframe.ReferenceFrame{ID: "test", Root: root}

	res, err := Measure(ds, DefaultParams(), rf, mercatorConvertor)
	require.NoError(t, err)
	assert.Empty(t, res.Nodes)
}

func TestMeasureAcceptsIdentityDemScale(t *testing.T) {
	ds := smallOphoto()
	ds.BandCount = 1
	ds.DataType = "Float32"

	params := DefaultParams()
	params.DemToOphotoScale = 1

	res, err := Measure(ds, params, worldFrame(), mercatorConvertor)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)
}

func TestMeasureLargeTileFractionLimitTerminates(t *testing.T) {
	params := DefaultParams()
	params.TileFractionLimit = 1e12

	res, err := Measure(smallOphoto(), params, worldFrame(), mercatorConvertor)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)
}

func TestMeasureIsIdempotent(t *testing.T) {
	a, err := Measure(smallOphoto(), DefaultParams(), worldFrame(), mercatorConvertor)
	require.NoError(t, err)
	b, err := Measure(smallOphoto(), DefaultParams(), worldFrame(), mercatorConvertor)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated Measure run diverged (-first +second):\n%s", diff)
	}
}
