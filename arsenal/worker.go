package arsenal

import (
	"encoding/gob"
	"fmt"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WorkerExit reports how a worker process ended, resolving the open
// question in spec.md §9: a signalled death is reported distinctly from
// a clean or error exit instead of collapsing both into EXIT_FAILURE, so
// the pool can decide whether the death looks like a transient crash
// worth respawning versus a configuration error worth giving up on.
type WorkerExit struct {
	Code    int
	Signal  syscall.Signal
	Crashed bool // true if the process was killed by a signal
}

func (e WorkerExit) String() string {
	if e.Crashed {
		return fmt.Sprintf("killed by signal %s", e.Signal)
	}
	return fmt.Sprintf("exited with code %d", e.Code)
}

// worker owns one forked GDAL process and the pipe-based RPC channel to
// it. It processes at most one Job at a time — GDAL is not thread-safe,
// and a single OS process gives us a hard isolation boundary a
// goroutine-based pool never could.
type worker struct {
	id  string
	cmd *exec.Cmd
	enc *gob.Encoder
	dec *gob.Decoder

	mu     sync.Mutex
	closed bool

	exitCh chan WorkerExit
}

// spawnWorker forks the worker binary and wires up its stdin/stdout as
// the gob-encoded request/response channel that stands in for the
// POSIX shared-memory queue described in spec.md §4.2 (see SPEC_FULL.md
// for why pipes are used instead of real shared memory).
func spawnWorker(binary string, log *logrus.Entry) (*worker, error) {
	cmd := exec.Command(binary)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	cmd.Stderr = logWriter{log}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	w := &worker{
		id:     uuid.NewString(),
		cmd:    cmd,
		enc:    gob.NewEncoder(stdin),
		dec:    gob.NewDecoder(stdout),
		exitCh: make(chan WorkerExit, 1),
	}

	go w.waitLoop(log)
	return w, nil
}

// waitLoop blocks on the child's exit and classifies it, satisfying the
// "non-blocking join reports Alive while running" contract of spec.md §5
// by running the blocking Wait() on its own goroutine: TryExit() below
// is the non-blocking poll a caller actually uses.
func (w *worker) waitLoop(log *logrus.Entry) {
	err := w.cmd.Wait()
	exit := WorkerExit{}
	if err == nil {
		exit.Code = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			exit.Crashed = true
			exit.Signal = status.Signal()
		} else {
			exit.Code = exitErr.ExitCode()
		}
	} else {
		exit.Crashed = true
	}
	log.WithField("worker_id", w.id).WithField("exit", exit.String()).Warn("gdal worker exited")
	w.exitCh <- exit
}

// TryExit returns the worker's exit status without blocking, or
// (WorkerExit{}, false) — the "Alive" case — if it is still running.
func (w *worker) TryExit() (WorkerExit, bool) {
	select {
	case e := <-w.exitCh:
		w.exitCh <- e // put back so repeated polls keep seeing it
		return e, true
	default:
		return WorkerExit{}, false
	}
}

// call sends req and blocks for the matching response. It returns an
// error if the pipe breaks (worker crashed mid-call) rather than
// blocking forever.
func (w *worker) call(req Request) (Response, error) {
	if err := w.enc.Encode(&req); err != nil {
		return Response{}, fmt.Errorf("worker died: %w", err)
	}
	var resp Response
	if err := w.dec.Decode(&resp); err != nil {
		// Any decode failure — clean EOF on a graceful exit, or a
		// truncated read on a signal kill — means the process is gone
		// mid-call; both collapse to the same InternalError for waiters.
		return Response{}, fmt.Errorf("worker died: %w", err)
	}
	return resp, nil
}

func (w *worker) kill() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	_ = w.cmd.Process.Kill()
}

// logWriter adapts a logrus.Entry to io.Writer for a worker's stderr, so
// GDAL diagnostic chatter shows up in the parent's structured log instead
// of being lost.
type logWriter struct{ log *logrus.Entry }

func (l logWriter) Write(p []byte) (int, error) {
	l.log.WithField("worker", "stderr").Debug(string(p))
	return len(p), nil
}
