package staging

import (
	"bytes"
	"io"
)

// memoryBuffer keeps spooled content in memory.
type memoryBuffer struct {
	buf bytes.Buffer
}

var _ buffer = (*memoryBuffer)(nil)

func (m *memoryBuffer) Write(p []byte) (int, error) { return m.buf.Write(p) }

func (m *memoryBuffer) Len() int64 { return int64(m.buf.Len()) }

func (m *memoryBuffer) open() (io.ReadSeeker, func() error, error) {
	return bytes.NewReader(m.buf.Bytes()), func() error { return nil }, nil
}

func (m *memoryBuffer) discard() { m.buf.Reset() }
