// Package staging buffers non-seekable upload streams so they can be hashed
// before they are stored. Small uploads stay in memory; larger ones spill to
// a temp file. The total size of all open spools is bounded.
package staging

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"

	"webfile-go/internal/webfile"
)

// ErrFull is returned when a spool would push the staging area over its
// maximum size.
var ErrFull = errors.New("staging area full")

// Spooler implements webfile.Spooler.
type Spooler struct {
	dir       string
	spill     bool
	threshold int64
	maxSize   int64 // 0 means unlimited

	mu    sync.Mutex
	inUse int64
}

var _ webfile.Spooler = (*Spooler)(nil)

// NewMemorySpooler keeps every spool in memory. maxSize bounds the total
// bytes held at once and must be positive.
func NewMemorySpooler(maxSize int64) *Spooler {
	return &Spooler{maxSize: maxSize}
}

// NewFileSystemSpooler keeps spools up to threshold bytes in memory and
// spills larger ones to temp files in dir. maxSize of 0 means unlimited.
func NewFileSystemSpooler(dir string, threshold, maxSize int64) *Spooler {
	return &Spooler{dir: dir, spill: true, threshold: threshold, maxSize: maxSize}
}

// InUse returns the number of bytes held by open spools.
func (s *Spooler) InUse() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

func (s *Spooler) reserve(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxSize > 0 && s.inUse+n > s.maxSize {
		return fmt.Errorf("%w: would exceed max size of %d bytes", ErrFull, s.maxSize)
	}
	s.inUse += n
	return nil
}

func (s *Spooler) release(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inUse -= n
}

// Spool reads r to the end, hashing it on the way, and returns the content
// as a seekable stream. The caller must Close the result.
func (s *Spooler) Spool(ctx context.Context, r io.Reader) (webfile.Spooled, error) {
	mem := &memoryBuffer{}
	var buf buffer = mem
	var reserved int64
	h := sha1.New()
	chunk := make([]byte, webfile.ChunkSize)
	src := webfile.NewContextReader(ctx, r)

	fail := func(err error) (webfile.Spooled, error) {
		buf.discard()
		s.release(reserved)
		return nil, err
	}

	for {
		n, readErr := src.Read(chunk)
		if n > 0 {
			if err := s.reserve(int64(n)); err != nil {
				return fail(err)
			}
			reserved += int64(n)
			if s.spill && buf == mem && mem.Len()+int64(n) > s.threshold {
				fb, err := newFileBuffer(s.dir, mem.buf.Bytes())
				if err != nil {
					return fail(err)
				}
				mem.discard()
				buf = fb
			}
			if _, err := buf.Write(chunk[:n]); err != nil {
				return fail(err)
			}
			h.Write(chunk[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(ctxErr)
			}
			return fail(fmt.Errorf("%w: reading content: %w", webfile.ErrInvalidInput, readErr))
		}
	}

	return s.finish(buf, h)
}

func (s *Spooler) finish(buf buffer, h hash.Hash) (webfile.Spooled, error) {
	size := buf.Len()
	rs, cleanup, err := buf.open()
	if err != nil {
		s.release(size)
		return nil, err
	}
	return &spooled{
		ReadSeeker: rs,
		digest:     hex.EncodeToString(h.Sum(nil)),
		size:       size,
		cleanup:    cleanup,
		release:    func() { s.release(size) },
	}, nil
}

type spooled struct {
	io.ReadSeeker
	digest  string
	size    int64
	cleanup func() error
	release func()
	once    sync.Once
	err     error
}

func (sp *spooled) Digest() string { return sp.digest }
func (sp *spooled) Size() int64    { return sp.size }

// Close releases the spool's storage. Calling it more than once is safe.
func (sp *spooled) Close() error {
	sp.once.Do(func() {
		sp.err = sp.cleanup()
		sp.release()
	})
	return sp.err
}
