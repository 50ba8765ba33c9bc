package arsenal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/GrainArc/vtsproxy/gdaldriver"
	"github.com/GrainArc/vtsproxy/sink"
)

// pendingJob tracks one in-flight, deduplicated Job. Every caller with an
// identical fingerprint shares this struct and its eventual Result; the
// last one whose ctx is cancelled just stops waiting; it never cancels
// the underlying worker call, per spec.md §4.2's no-preemption rule.
type pendingJob struct {
	job    Job
	done   chan struct{}
	result Result
}

// Config controls pool topology and back-pressure.
type Config struct {
	Workers      int
	WorkerBinary string
	// ArenaSlots bounds concurrently in-flight (deduplicated) jobs,
	// standing in for the shared-memory arena's bounded payload budget.
	ArenaSlots int64
	// SubmitTimeout bounds how long Submit waits for an arena slot
	// before giving up with a back-pressure error.
	SubmitTimeout time.Duration
}

// Pool is the Arsenal: a fixed set of worker processes fed from one
// shared job queue, with per-fingerprint dedup and crash recovery.
type Pool struct {
	cfg Config
	log *logrus.Entry

	mu       sync.Mutex
	workers  []*worker
	inFlight map[string]*pendingJob
	jobs     chan *pendingJob
	arena    *semaphore.Weighted

	stopped chan struct{}
	wg      sync.WaitGroup

	// spawn is overridable so tests can substitute a re-exec'd test
	// helper for the real worker binary; New() sets it to spawnWorker
	// bound to cfg.WorkerBinary.
	spawn func() (*worker, error)
}

// New constructs and starts the pool's worker processes.
func New(cfg Config, log *logrus.Entry) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ArenaSlots <= 0 {
		cfg.ArenaSlots = int64(cfg.Workers) * 4
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "arsenal")

	p := &Pool{
		cfg:      cfg,
		log:      log,
		inFlight: make(map[string]*pendingJob),
		jobs:     make(chan *pendingJob, cfg.Workers),
		arena:    semaphore.NewWeighted(cfg.ArenaSlots),
		stopped:  make(chan struct{}),
	}
	p.spawn = func() (*worker, error) { return spawnWorker(p.cfg.WorkerBinary, p.log) }

	for i := 0; i < cfg.Workers; i++ {
		if err := p.spawnAndRun(); err != nil {
			p.Stop()
			return nil, fmt.Errorf("start worker %d: %w", i, err)
		}
	}
	return p, nil
}

func (p *Pool) spawnAndRun() error {
	w, err := p.spawn()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.workers = append(p.workers, w)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runWorker(w)
	return nil
}

// runWorker pulls jobs off the shared queue and executes them one at a
// time. If the underlying process dies mid-call, the in-flight job (and
// only that job — dedup means there's exactly one) is failed with
// InternalError and a replacement worker is spawned.
func (p *Pool) runWorker(w *worker) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopped:
			w.kill()
			return
		case pj, ok := <-p.jobs:
			if !ok {
				w.kill()
				return
			}
			p.execute(w, pj)
			if _, dead := w.TryExit(); dead {
				p.log.WithField("worker_id", w.id).Warn("respawning after worker exit")
				p.removeWorker(w)
				if err := p.spawnAndRun(); err != nil {
					p.log.WithError(err).Error("failed to respawn gdal worker")
				}
				return
			}
		}
	}
}

func (p *Pool) removeWorker(dead *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.workers {
		if w == dead {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			break
		}
	}
}

func (p *Pool) execute(w *worker, pj *pendingJob) {
	defer close(pj.done)

	req := Request{ID: pj.job.Fingerprint(), Job: pj.job}
	resp, err := w.call(req)

	p.mu.Lock()
	delete(p.inFlight, req.ID)
	p.mu.Unlock()
	p.arena.Release(1)

	if err != nil {
		pj.result = Result{ErrMsg: "worker died", ErrKind: sink.KindInternalError}
		return
	}
	pj.result = resp.Result
}

// Submit dispatches job, deduplicating against any identical in-flight
// job, and blocks until a result is available or ctx is done. Back-
// pressure: if the arena is full, Submit waits (bounded by
// cfg.SubmitTimeout when set) rather than growing the queue unboundedly.
func (p *Pool) Submit(ctx context.Context, job Job) (Result, error) {
	fp := job.Fingerprint()

	p.mu.Lock()
	if existing, ok := p.inFlight[fp]; ok {
		p.mu.Unlock()
		return p.await(ctx, existing)
	}
	pj := &pendingJob{job: job, done: make(chan struct{})}
	p.inFlight[fp] = pj
	p.mu.Unlock()

	acquireCtx := ctx
	if p.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.SubmitTimeout)
		defer cancel()
	}
	if err := p.arena.Acquire(acquireCtx, 1); err != nil {
		p.mu.Lock()
		delete(p.inFlight, fp)
		p.mu.Unlock()
		return Result{}, sink.Wrap(sink.KindInternalError, fmt.Errorf("arsenal back-pressure: %w", err))
	}

	select {
	case p.jobs <- pj:
	case <-p.stopped:
		p.arena.Release(1)
		return Result{}, sink.New(sink.KindInternalError, "arsenal stopped")
	}

	return p.await(ctx, pj)
}

func (p *Pool) await(ctx context.Context, pj *pendingJob) (Result, error) {
	select {
	case <-pj.done:
		if pj.result.ErrMsg != "" {
			kind := pj.result.ErrKind
			if kind == sink.KindNone {
				kind = sink.KindInternalError
			}
			return Result{}, sink.New(kind, pj.result.ErrMsg)
		}
		return pj.result, nil
	case <-ctx.Done():
		return Result{}, sink.Wrap(sink.KindAborted, ctx.Err())
	}
}

// Stop terminates all workers and unblocks any goroutine waiting in
// runWorker. In-flight submitters still waiting on their pendingJob will
// see their ctx cancelled by the caller; per Non-goals, requests are not
// persisted or retried across a stop.
func (p *Pool) Stop() {
	select {
	case <-p.stopped:
		return
	default:
		close(p.stopped)
	}
	p.wg.Wait()
}

// Warper is the higher-level, typed façade spec.md §6 calls
// "Arsenal.warper": it turns raw gdaldriver requests into deduplicated
// pool submissions.
type Warper struct {
	pool *Pool
}

func NewWarper(pool *Pool) *Warper { return &Warper{pool: pool} }

func (w *Warper) Warp(ctx context.Context, req gdaldriver.WarpRequest) (*gdaldriver.Raster, error) {
	res, err := w.pool.Submit(ctx, Job{Kind: KindWarp, Warp: &req})
	if err != nil {
		return nil, err
	}
	return res.Raster, nil
}

func (w *Warper) Heightcode(ctx context.Context, req gdaldriver.HeightcodeRequest) (*gdaldriver.Heightcoded, error) {
	res, err := w.pool.Submit(ctx, Job{Kind: KindHeightcode, Heightcode: &req})
	if err != nil {
		return nil, err
	}
	return res.Heightcoded, nil
}

func (w *Warper) NavHeightcode(ctx context.Context, req gdaldriver.NavHeightcodeRequest) (*gdaldriver.Heightcoded, error) {
	res, err := w.pool.Submit(ctx, Job{Kind: KindNavHeightcode, NavHeightcode: &req})
	if err != nil {
		return nil, err
	}
	return res.Heightcoded, nil
}
