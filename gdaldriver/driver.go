// Package gdaldriver defines the boundary to the GDAL library itself,
// which spec.md §1 lists as an external collaborator consumed as an
// opaque codec. Driver is what a real cgo GDAL binding would implement;
// this package ships one in-memory reference implementation
// (NewSyntheticDriver) so arsenal and metatile are exercisable in tests
// without linking GDAL.
package gdaldriver

import "context"

// Resampling names a GDAL resampling algorithm.
type Resampling string

const (
	ResamplingNearest    Resampling = "near"
	ResamplingAverage    Resampling = "average"
	ResamplingBilinear   Resampling = "bilinear"
	ResamplingCubic      Resampling = "cubic"
	ResamplingValueMinMax Resampling = "valueMinMax" // avg/min/max per pixel, used by metatile sampling
)

// WarpRequest asks for a dataset to be resampled into a target SRS,
// extent and pixel size.
type WarpRequest struct {
	DatasetPath string
	SRS         string
	MinX, MinY  float64
	MaxX, MaxY  float64
	Width       int
	Height      int
	Resampling  Resampling
}

// Sample is one pixel of a valueMinMax raster: average, minimum and
// maximum height observed within the source footprint of that pixel.
type Sample struct {
	Avg, Min, Max float64
}

// Raster is the result of a warp: a dense Width x Height grid of
// samples in row-major order. For non-valueMinMax resamplings only Avg
// is populated.
type Raster struct {
	Width, Height int
	Samples       []Sample
}

func (r *Raster) At(col, row int) Sample {
	return r.Samples[row*r.Width+col]
}

// HeightcodeRequest asks for a vector dataset to be enriched with
// elevations sampled from one or more DEM rasters.
type HeightcodeRequest struct {
	VectorPath string
	DEMPaths   []string
	Config     string
	GeoidGrid  string
}

// NavHeightcodeRequest asks for a vector dataset to be heightcoded
// against an already-generated navtile instead of a DEM.
type NavHeightcodeRequest struct {
	VectorPath  string
	NavtileData []byte
	Config      string
}

// Heightcoded is the serialized heightcoded vector payload; its internal
// shape is owned by vts-libs and treated as opaque bytes here.
type Heightcoded struct {
	Data []byte
}

// Driver is the GDAL boundary: warp and the two heightcoding variants.
// All methods may block on I/O and must be cancellable via ctx.
type Driver interface {
	Warp(ctx context.Context, req WarpRequest) (*Raster, error)
	Heightcode(ctx context.Context, req HeightcodeRequest) (*Heightcoded, error)
	NavHeightcode(ctx context.Context, req NavHeightcodeRequest) (*Heightcoded, error)
}
