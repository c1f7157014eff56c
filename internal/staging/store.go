package staging

import "io"

// buffer holds the bytes of one spool while they are being written.
// Implementations are owned by a single Spool call and need not be safe for
// concurrent use.
type buffer interface {
	io.Writer

	// Len returns the number of bytes written so far.
	Len() int64

	// open finishes writing and returns a reader positioned at the start.
	// cleanup releases the storage and is called exactly once.
	open() (r io.ReadSeeker, cleanup func() error, err error)

	// discard releases the storage of an abandoned spool.
	discard()
}
