// Package sink defines the response-writing abstraction handed to a task
// and the error taxonomy used to classify why a request could not be
// served.
package sink

import (
	"errors"
	"io"
)

// Kind classifies why a request failed, independent of transport.
type Kind int

const (
	// KindNone marks a nil/absent error.
	KindNone Kind = iota
	// KindNotFound means the requested tile or file does not exist for
	// this resource.
	KindNotFound
	// KindEmptyDebugMask marks a debug-mask request for a missing tile;
	// distinguished from NotFound so the caller can emit an empty PNG.
	KindEmptyDebugMask
	// KindUnavailable means the generator or server is not yet ready.
	KindUnavailable
	// KindUnknownGenerator means no factory is registered for the
	// resource's declared generator type.
	KindUnknownGenerator
	// KindInvalidConfiguration means a generator rejected its resource
	// definition.
	KindInvalidConfiguration
	// KindInternalError covers programmer error or a lost worker.
	KindInternalError
	// KindAborted means the client cancelled the request.
	KindAborted
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindEmptyDebugMask:
		return "EmptyDebugMask"
	case KindUnavailable:
		return "Unavailable"
	case KindUnknownGenerator:
		return "UnknownGenerator"
	case KindInvalidConfiguration:
		return "InvalidConfiguration"
	case KindInternalError:
		return "InternalError"
	case KindAborted:
		return "Aborted"
	default:
		return "None"
	}
}

// Error carries a Kind alongside the underlying cause. Front-ends
// translate the Kind to a transport status; the core never does.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Cause: errors.New(msg)}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind of err, defaulting to KindInternalError for
// errors that were never classified.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternalError
}

// FileInfo describes a response payload's cacheability, mirroring the
// per-file-kind cache-control policy carried by a Resource.
type FileInfo struct {
	ContentType  string
	CacheControl string
	LastModified int64 // microseconds since epoch, mirrors Generator.readySince
}

// FileClass groups related FileInfo defaults (support, config, data,
// debug) so a resource can set cache policy per class rather than per
// file.
type FileClass int

const (
	FileClassSupport FileClass = iota
	FileClassConfig
	FileClassData
	FileClassDebug
)

// Sink is the response channel handed to a Task. Implementations live in
// the (out of scope) HTTP front-end; the core only calls this interface.
type Sink interface {
	// Content writes a complete in-memory payload.
	Content(data []byte, info FileInfo) error
	// ContentStream writes a payload of unknown-until-drained size, using
	// fc to pick cache-control defaults.
	ContentStream(r io.Reader, fc FileClass) error
	// Error reports a failure; the Sink is responsible for translating
	// Kind to a transport-appropriate response.
	Error(err error)
	// CheckAborted returns true once the client has cancelled the
	// request. Callers must poll this at block boundaries; it never
	// preempts in-flight work.
	CheckAborted() bool
	// AddHeader attaches a transport header to the eventual response.
	AddHeader(key, value string)
}
