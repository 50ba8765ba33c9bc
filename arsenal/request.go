// Package arsenal implements the out-of-process GDAL worker pool of
// spec.md §4.2: a parent process dispatching typed requests to forked
// worker processes, deduplicating identical in-flight requests, and
// recovering from worker crashes. Grounded on the teacher's
// services/tile_server_manager.go singleton-with-mutex-map idiom for the
// pool's bookkeeping, and on the mapproxy original_source
// (gdalsupport/process.cpp, gdalsupport/requests.hpp) for the request
// lifecycle and crash-handling contract itself.
package arsenal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/GrainArc/vtsproxy/gdaldriver"
	"github.com/GrainArc/vtsproxy/sink"
)

// Kind tags which of the three GDAL operations a Job carries.
type Kind int

const (
	KindWarp Kind = iota
	KindHeightcode
	KindNavHeightcode
)

// Job is a typed unit of work submitted to the pool. Exactly one of the
// three payload fields is set, matching Kind.
type Job struct {
	Kind          Kind
	Warp          *gdaldriver.WarpRequest
	Heightcode    *gdaldriver.HeightcodeRequest
	NavHeightcode *gdaldriver.NavHeightcodeRequest
}

// Fingerprint derives a stable dedup key from every semantically
// significant field of the job, per spec.md §4.2 step 1. Two jobs that
// would produce the same GDAL call always fingerprint identically.
func (j Job) Fingerprint() string {
	h := sha256.New()
	switch j.Kind {
	case KindWarp:
		r := j.Warp
		fmt.Fprintf(h, "warp|%s|%s|%v|%v|%v|%v|%d|%d|%s",
			r.DatasetPath, r.SRS, r.MinX, r.MinY, r.MaxX, r.MaxY, r.Width, r.Height, r.Resampling)
	case KindHeightcode:
		r := j.Heightcode
		fmt.Fprintf(h, "heightcode|%s|%v|%s|%s", r.VectorPath, r.DEMPaths, r.Config, r.GeoidGrid)
	case KindNavHeightcode:
		r := j.NavHeightcode
		fmt.Fprintf(h, "navheightcode|%s|%x|%s", r.VectorPath, r.NavtileData, r.Config)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Result is what a worker sends back for a Job. ErrMsg is a string
// rather than an error because gob cannot encode the error interface
// across the pipe boundary; ErrKind carries the sink.Kind the driver
// classified the failure as, so the parent reconstitutes the same
// sink.Error the worker saw instead of collapsing every failure to
// InternalError (see pool.go's await).
type Result struct {
	Raster      *gdaldriver.Raster
	Heightcoded *gdaldriver.Heightcoded
	ErrMsg      string
	ErrKind     sink.Kind
}

// Request is one wire message from parent to worker.
type Request struct {
	ID  string
	Job Job
}

// Response is one wire message from worker to parent.
type Response struct {
	ID     string
	Result Result
}
