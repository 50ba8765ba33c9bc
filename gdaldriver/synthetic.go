package gdaldriver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/GrainArc/vtsproxy/sink"
)

// SyntheticDriver is a deterministic stand-in for a real GDAL binding: it
// derives a plausible heightfield from the dataset path's hash so tests
// and the worker binary have something to compute without linking cgo.
// Warp and Heightcode fail with NotFound for any path containing
// "missing", letting tests exercise the GDAL-error path (spec.md §4.2
// failure model); NavHeightcode does not check the path.
type SyntheticDriver struct{}

func NewSyntheticDriver() *SyntheticDriver { return &SyntheticDriver{} }

func (d *SyntheticDriver) Warp(ctx context.Context, req WarpRequest) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, sink.Wrap(sink.KindAborted, err)
	}
	if strings.Contains(req.DatasetPath, "missing") {
		return nil, sink.New(sink.KindNotFound, fmt.Sprintf("gdal: dataset not found: %s", req.DatasetPath))
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, sink.New(sink.KindInvalidConfiguration, fmt.Sprintf("gdal: invalid warp size %dx%d", req.Width, req.Height))
	}

	seed := hashString(req.DatasetPath)
	out := &Raster{Width: req.Width, Height: req.Height, Samples: make([]Sample, req.Width*req.Height)}
	dx := (req.MaxX - req.MinX) / float64(req.Width)
	dy := (req.MaxY - req.MinY) / float64(req.Height)

	for row := 0; row < req.Height; row++ {
		for col := 0; col < req.Width; col++ {
			x := req.MinX + (float64(col)+0.5)*dx
			y := req.MinY + (float64(row)+0.5)*dy
			avg := 200 + 50*math.Sin(x/1000+seed) + 50*math.Cos(y/1000+seed)
			out.Samples[row*req.Width+col] = Sample{Avg: avg, Min: avg - 5, Max: avg + 5}
		}
	}
	return out, nil
}

func (d *SyntheticDriver) Heightcode(ctx context.Context, req HeightcodeRequest) (*Heightcoded, error) {
	if err := ctx.Err(); err != nil {
		return nil, sink.Wrap(sink.KindAborted, err)
	}
	if strings.Contains(req.VectorPath, "missing") {
		return nil, sink.New(sink.KindNotFound, fmt.Sprintf("gdal: vector dataset not found: %s", req.VectorPath))
	}
	return &Heightcoded{Data: []byte(fmt.Sprintf("heightcoded:%s:%v", req.VectorPath, req.DEMPaths))}, nil
}

func (d *SyntheticDriver) NavHeightcode(ctx context.Context, req NavHeightcodeRequest) (*Heightcoded, error) {
	if err := ctx.Err(); err != nil {
		return nil, sink.Wrap(sink.KindAborted, err)
	}
	return &Heightcoded{Data: append([]byte("nav:"+req.VectorPath+":"), req.NavtileData...)}, nil
}

// hashString maps a path to a stable float in [0, 2*pi) for the
// synthetic terrain function above.
func hashString(s string) float64 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return float64(h%6283) / 1000.0
}
