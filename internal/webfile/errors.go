package webfile

import "errors"

// Sentinel errors returned by the service and its collaborators. Callers
// match them with errors.Is; implementations wrap them with context.
var (
	// ErrInvalidInput covers malformed requests: bad names, unknown MIME
	// types, unreadable content, invalid permission rules.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPermissionDenied is returned when the principal lacks the action on
	// the target item.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTreeIntegrity is returned when a structural change would break the
	// folder tree, such as moving a folder under its own descendant.
	ErrTreeIntegrity = errors.New("tree integrity violation")

	// ErrNameConflict is returned when a sibling folder already uses the name.
	ErrNameConflict = errors.New("name conflict")

	// ErrInvalidParent is returned when the target parent folder does not exist.
	ErrInvalidParent = errors.New("invalid parent")

	// ErrStorageInconsistency is returned when blob storage and metadata
	// disagree and could not be brought back in line automatically.
	ErrStorageInconsistency = errors.New("storage inconsistency")

	// ErrNotFound is returned for missing items and missing blobs.
	ErrNotFound = errors.New("not found")
)
