// Command gdalworker is the forked worker process spawned by
// arsenal.Pool. It speaks the gob-encoded Request/Response protocol over
// stdin/stdout and calls into a gdaldriver.Driver for the actual GDAL
// work — swap NewSyntheticDriver for a real cgo binding to go live.
package main

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"os"

	"github.com/GrainArc/vtsproxy/arsenal"
	"github.com/GrainArc/vtsproxy/gdaldriver"
	"github.com/GrainArc/vtsproxy/sink"
)

func main() {
	driver := gdaldriver.NewSyntheticDriver()
	dec := gob.NewDecoder(os.Stdin)
	enc := gob.NewEncoder(os.Stdout)
	ctx := context.Background()

	for {
		var req arsenal.Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			os.Exit(1)
		}

		resp := arsenal.Response{ID: req.ID, Result: handle(ctx, driver, req.Job)}
		if err := enc.Encode(&resp); err != nil {
			os.Exit(1)
		}
	}
}

func handle(ctx context.Context, driver gdaldriver.Driver, job arsenal.Job) arsenal.Result {
	switch job.Kind {
	case arsenal.KindWarp:
		raster, err := driver.Warp(ctx, *job.Warp)
		if err != nil {
			return errorResult(err)
		}
		return arsenal.Result{Raster: raster}
	case arsenal.KindHeightcode:
		hc, err := driver.Heightcode(ctx, *job.Heightcode)
		if err != nil {
			return errorResult(err)
		}
		return arsenal.Result{Heightcoded: hc}
	case arsenal.KindNavHeightcode:
		hc, err := driver.NavHeightcode(ctx, *job.NavHeightcode)
		if err != nil {
			return errorResult(err)
		}
		return arsenal.Result{Heightcoded: hc}
	default:
		return arsenal.Result{ErrMsg: "unknown job kind", ErrKind: sink.KindInternalError}
	}
}

// errorResult carries both the error's message and its sink.Kind across
// the gob boundary, so a classified GDAL error (e.g. dataset not found)
// reaches the parent as that kind instead of collapsing to InternalError.
func errorResult(err error) arsenal.Result {
	return arsenal.Result{ErrMsg: err.Error(), ErrKind: sink.KindOf(err)}
}
