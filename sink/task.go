package sink

import "context"

// Task is a deferred unit of work produced by a Generator for a single
// tile request. It runs on an I/O worker owned by the front-end and may
// call into the GDAL worker pool; it streams its result through Sink.
type Task func(ctx context.Context, s Sink)

// Run executes t, converting a panic into an InternalError so a single
// bad task cannot take down its worker goroutine.
func Run(ctx context.Context, t Task, s Sink) {
	defer func() {
		if r := recover(); r != nil {
			s.Error(Wrap(KindInternalError, errPanic(r)))
		}
	}()
	t(ctx, s)
}

type panicError struct{ v interface{} }

func (p panicError) Error() string { return "task panicked" }

func errPanic(v interface{}) error { return panicError{v} }
