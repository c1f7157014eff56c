package webfile

import (
	"context"
	"fmt"
	"io"
	"path"
)

// Area is one of the two blob namespaces. A file's blob lives in the area
// matching its visibility.
type Area string

const (
	AreaPublic  Area = "public"
	AreaPrivate Area = "private"
)

// AreaFor returns the area a file with the given visibility is stored in.
func AreaFor(isPublic bool) Area {
	if isPublic {
		return AreaPublic
	}
	return AreaPrivate
}

// Other returns the opposite area.
func (a Area) Other() Area {
	if a == AreaPublic {
		return AreaPrivate
	}
	return AreaPublic
}

// StorageRef addresses one blob: a storage path inside an area.
type StorageRef struct {
	Area Area
	Path string
}

func (r StorageRef) String() string { return string(r.Area) + ":" + r.Path }

// In returns the same path in another area.
func (r StorageRef) In(a Area) StorageRef { return StorageRef{Area: a, Path: r.Path} }

// StoragePathFor maps a SHA-1 hex digest to its storage path "xx/yy/<digest>".
// The two-level fan-out keeps directory sizes bounded on filesystem stores.
func StoragePathFor(digest string) string {
	if len(digest) < 4 {
		return digest
	}
	return path.Join(digest[0:2], digest[2:4], digest)
}

// ContentStore is a content-addressable blob store split into a public and a
// private area. All operations stream; none loads whole blobs into memory
// unless the implementation is memory-backed.
type ContentStore interface {
	// Put stores the bytes of r at ref. size is the expected length, or -1
	// when unknown. Writing a ref that already exists is a no-op that still
	// consumes r.
	Put(ctx context.Context, ref StorageRef, r io.Reader, size int64) error

	// Get writes the blob at ref to w. Missing blobs return ErrNotFound.
	Get(ctx context.Context, ref StorageRef, w io.Writer) error

	// Exists reports whether a blob is stored at ref.
	Exists(ctx context.Context, ref StorageRef) (bool, error)

	// Move relocates the blob at ref into the area to, keeping its path.
	Move(ctx context.Context, ref StorageRef, to Area) error

	// Copy duplicates the blob at ref into the area to, keeping its path.
	Copy(ctx context.Context, ref StorageRef, to Area) error

	// Delete removes the blob at ref. Deleting a missing blob succeeds.
	Delete(ctx context.Context, ref StorageRef) error

	// ValidateSetup verifies that the store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// DeleteIfUnreferenced removes the blob at ref when referenced reports that
// no file row points at it anymore. It returns whether the blob was deleted.
// Callers hold the blob lock for ref so that no row can start referencing
// the blob between the check and the delete.
func DeleteIfUnreferenced(ctx context.Context, store ContentStore, ref StorageRef, referenced func() (bool, error)) (bool, error) {
	inUse, err := referenced()
	if err != nil {
		return false, fmt.Errorf("checking references to %s: %w", ref, err)
	}
	if inUse {
		return false, nil
	}
	if err := store.Delete(ctx, ref); err != nil {
		return false, fmt.Errorf("deleting blob %s: %w", ref, err)
	}
	return true, nil
}
