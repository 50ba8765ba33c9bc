package resource

import "context"

// Backend is the wire interface the registry's updater pulls from. It is
// an external collaborator per spec.md §6; this package ships one
// reference implementation (SQLiteBackend) so the registry is exercisable
// without a real control-plane service.
type Backend interface {
	// Load returns the authoritative resource set.
	Load(ctx context.Context) (Map, error)
	// Error reports that resourceId failed preparation, so the backend's
	// operator-facing view can flag it.
	Error(ctx context.Context, id ID, message string)
}
