package arsenal

import (
	"context"
	"encoding/gob"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/GrainArc/vtsproxy/gdaldriver"
	"github.com/GrainArc/vtsproxy/sink"
)

// TestMain re-execs this test binary as the worker process when
// GO_WANT_HELPER_PROCESS is set, the standard library's own pattern for
// exercising os/exec-based subprocess code without a separate compiled
// binary (see os/exec's TestHelperProcess in the Go source tree).
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperWorker()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// helperCallCount lives in the helper worker process, not in the parent
// test process; the helper reports it back in each warp result's
// Samples[0].Max so the parent can observe how many calls it served.
var helperCallCount int32

func runHelperWorker() {
	dec := gob.NewDecoder(os.Stdin)
	enc := gob.NewEncoder(os.Stdout)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if err == io.EOF {
				return
			}
			os.Exit(1)
		}
		calls := atomic.AddInt32(&helperCallCount, 1)

		if req.Job.Kind == KindWarp && req.Job.Warp.DatasetPath == "crash.tif" {
			os.Exit(2) // simulate a GDAL abort taking the worker down
		}
		if req.Job.Kind == KindWarp && req.Job.Warp.DatasetPath == "notfound.tif" {
			resp := Response{ID: req.ID, Result: Result{ErrMsg: "gdal: dataset not found", ErrKind: sink.KindNotFound}}
			_ = enc.Encode(&resp)
			continue
		}

		resp := Response{ID: req.ID, Result: Result{
			Raster: &gdaldriver.Raster{Width: 1, Height: 1, Samples: []gdaldriver.Sample{{Avg: 42, Max: float64(calls)}}},
		}}
		_ = enc.Encode(&resp)
	}
}

// spawnTestWorker replaces spawnWorker's binary lookup with a re-exec of
// this test binary under the helper-process flag.
func spawnTestWorker(t *testing.T) *worker {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=TestMain")
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	w := &worker{
		id:     "test",
		cmd:    cmd,
		enc:    gob.NewEncoder(stdin),
		dec:    gob.NewDecoder(stdout),
		exitCh: make(chan WorkerExit, 1),
	}
	go w.waitLoop(testLogger())
	return w
}

func TestWorkerCallRoundTrip(t *testing.T) {
	w := spawnTestWorker(t)
	defer w.kill()

	resp, err := w.call(Request{ID: "1", Job: Job{Kind: KindWarp, Warp: &gdaldriver.WarpRequest{DatasetPath: "ok.tif", Width: 1, Height: 1}}})
	require.NoError(t, err)
	assert.Equal(t, 42.0, resp.Result.Raster.Samples[0].Avg)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Job{Kind: KindWarp, Warp: &gdaldriver.WarpRequest{DatasetPath: "x.tif", SRS: "EPSG:3857", Width: 10, Height: 10}}
	b := Job{Kind: KindWarp, Warp: &gdaldriver.WarpRequest{DatasetPath: "x.tif", SRS: "EPSG:3857", Width: 10, Height: 10}}
	c := Job{Kind: KindWarp, Warp: &gdaldriver.WarpRequest{DatasetPath: "y.tif", SRS: "EPSG:3857", Width: 10, Height: 10}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestSubmitDedupSingleWorkerCall(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	job := Job{Kind: KindWarp, Warp: &gdaldriver.WarpRequest{DatasetPath: "dedup.tif", Width: 1, Height: 1}}

	results := make(chan Result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := pool.Submit(context.Background(), job)
			require.NoError(t, err)
			results <- res
		}()
	}

	r1 := <-results
	r2 := <-results
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1.0, r1.Raster.Samples[0].Max, "the fresh helper worker must have served exactly one call")
}

func TestSubmitCrashReportsInternalError(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	job := Job{Kind: KindWarp, Warp: &gdaldriver.WarpRequest{DatasetPath: "crash.tif", Width: 1, Height: 1}}
	_, err := pool.Submit(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, sink.KindInternalError, sink.KindOf(err))

	// pool should have respawned; a fresh identical-shaped request on a
	// different dataset succeeds.
	ok := Job{Kind: KindWarp, Warp: &gdaldriver.WarpRequest{DatasetPath: "ok2.tif", Width: 1, Height: 1}}
	require.Eventually(t, func() bool {
		_, err := pool.Submit(context.Background(), ok)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSubmitGDALErrorPreservesKind(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop()

	job := Job{Kind: KindWarp, Warp: &gdaldriver.WarpRequest{DatasetPath: "notfound.tif", Width: 1, Height: 1}}
	_, err := pool.Submit(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, sink.KindNotFound, sink.KindOf(err), "a classified GDAL error must not collapse to InternalError")
}

// newTestPool builds a Pool wired to re-exec'd helper workers instead of
// a real gdalworker binary, by spawning workers directly and installing
// them rather than going through Pool.New (which shells out to
// cfg.WorkerBinary).
func newTestPool(t *testing.T, n int) *Pool {
	t.Helper()
	p := &Pool{
		cfg:      Config{Workers: n, ArenaSlots: int64(n) * 4},
		log:      testLogger(),
		inFlight: make(map[string]*pendingJob),
		jobs:     make(chan *pendingJob, n),
		arena:    semaphore.NewWeighted(int64(n) * 4),
		stopped:  make(chan struct{}),
	}
	p.spawn = func() (*worker, error) { return spawnTestWorker(t), nil }
	for i := 0; i < n; i++ {
		w := spawnTestWorker(t)
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go p.runWorker(w)
	}
	return p
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}
