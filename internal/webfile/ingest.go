package webfile

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
)

// ChunkSize is the read size used while hashing and copying content.
const ChunkSize = 1 << 20

// Ingest computes the SHA-1 digest and size of r in ChunkSize reads, then
// rewinds r to the start so the same stream can be stored afterwards.
// Cancellation of ctx is observed between chunks.
func Ingest(ctx context.Context, r io.ReadSeeker) (digest string, size int64, err error) {
	h := sha1.New()
	buf := make([]byte, ChunkSize)
	size, err = io.CopyBuffer(h, &contextReader{ctx: ctx, r: r}, buf)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("rewinding content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// Spooled is upload content that has been buffered to a seekable medium and
// hashed on the way in.
type Spooled interface {
	io.ReadSeeker
	io.Closer
	Digest() string
	Size() int64
}

// Spooler buffers non-seekable upload streams.
type Spooler interface {
	Spool(ctx context.Context, r io.Reader) (Spooled, error)
}

// contextReader fails reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// NewContextReader wraps r so that reads fail once ctx is done.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}
