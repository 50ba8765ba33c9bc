package metatile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GrainArc/vtsproxy/gdaldriver"
)

func TestImputeGridFillsFromEightNeighborhood(t *testing.T) {
	// 3x3 grid, center invalid, all eight neighbors valid.
	raster := &gdaldriver.Raster{
		Width: 3, Height: 3,
		Samples: []gdaldriver.Sample{
			{Avg: 10, Min: 10, Max: 10}, {Avg: 20, Min: 20, Max: 20}, {Avg: 30, Min: 30, Max: 30},
			{Avg: 40, Min: 40, Max: 40}, {Avg: -2e6, Min: -2e6, Max: -2e6}, {Avg: 50, Min: 50, Max: 50},
			{Avg: 60, Min: 60, Max: 60}, {Avg: 70, Min: 70, Max: 70}, {Avg: 80, Min: 80, Max: 80},
		},
	}

	out := imputeGrid(raster)

	center := out[1*3+1]
	assert.Equal(t, 45.0, center.Avg, "average of the eight surrounding samples")
	assert.Equal(t, 10.0, center.Min)
	assert.Equal(t, 80.0, center.Max)

	// Untouched valid corners pass through unchanged.
	assert.Equal(t, gdaldriver.Sample{Avg: 10, Min: 10, Max: 10}, out[0])
}

func TestImputeGridLeavesSampleInvalidWithoutAnyValidNeighbor(t *testing.T) {
	raster := &gdaldriver.Raster{
		Width: 1, Height: 1,
		Samples: []gdaldriver.Sample{{Avg: -2e6, Min: -2e6, Max: -2e6}},
	}

	out := imputeGrid(raster)

	assert.False(t, validSample(out[0].Avg), "a sample with no valid neighbor must stay invalid")
	assert.Equal(t, raster.Samples[0], out[0])
}
