package staging

import (
	"fmt"
	"io"
	"os"
)

// fileBuffer spools content to a temp file in dir. The file is removed when
// the spool is closed or discarded.
type fileBuffer struct {
	f *os.File
	n int64
}

var _ buffer = (*fileBuffer)(nil)

// newFileBuffer creates a temp file in dir (the OS temp dir if empty) and
// seeds it with the content spooled to memory so far.
func newFileBuffer(dir string, seed []byte) (*fileBuffer, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, "spool-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	b := &fileBuffer{f: f}
	if _, err := b.Write(seed); err != nil {
		b.discard()
		return nil, err
	}
	return b, nil
}

func (b *fileBuffer) Write(p []byte) (int, error) {
	n, err := b.f.Write(p)
	b.n += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write spool file: %w", err)
	}
	return n, nil
}

func (b *fileBuffer) Len() int64 { return b.n }

func (b *fileBuffer) open() (io.ReadSeeker, func() error, error) {
	if _, err := b.f.Seek(0, io.SeekStart); err != nil {
		b.discard()
		return nil, nil, fmt.Errorf("failed to rewind spool file: %w", err)
	}
	cleanup := func() error {
		closeErr := b.f.Close()
		if err := os.Remove(b.f.Name()); err != nil {
			return fmt.Errorf("failed to remove spool file: %w", err)
		}
		return closeErr
	}
	return b.f, cleanup, nil
}

func (b *fileBuffer) discard() {
	b.f.Close()
	os.Remove(b.f.Name())
}
