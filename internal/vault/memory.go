package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"webfile-go/internal/webfile"
)

// MemoryVault keeps blobs in per-area maps. It is safe for concurrent use
// and intended for tests and the "memory" vault type.
type MemoryVault struct {
	mu    sync.RWMutex
	blobs map[webfile.Area]map[string][]byte
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		blobs: map[webfile.Area]map[string][]byte{
			webfile.AreaPublic:  {},
			webfile.AreaPrivate: {},
		},
	}
}

func (m *MemoryVault) area(a webfile.Area) (map[string][]byte, error) {
	blobs, ok := m.blobs[a]
	if !ok {
		return nil, fmt.Errorf("unknown area %q", a)
	}
	return blobs, nil
}

// Put stores content at ref. Storing an existing ref keeps the first copy.
func (m *MemoryVault) Put(ctx context.Context, ref webfile.StorageRef, r io.Reader, size int64) error {
	data, err := io.ReadAll(webfile.NewContextReader(ctx, r))
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	blobs, err := m.area(ref.Area)
	if err != nil {
		return err
	}
	if _, ok := blobs[ref.Path]; !ok {
		blobs[ref.Path] = data
	}
	return nil
}

// Get writes the blob at ref to w.
func (m *MemoryVault) Get(ctx context.Context, ref webfile.StorageRef, w io.Writer) error {
	m.mu.RLock()
	blobs, err := m.area(ref.Area)
	var data []byte
	ok := false
	if err == nil {
		data, ok = blobs[ref.Path]
	}
	m.mu.RUnlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: blob %s", webfile.ErrNotFound, ref)
	}
	if _, err := io.Copy(w, webfile.NewContextReader(ctx, bytes.NewReader(data))); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Exists reports whether ref is stored.
func (m *MemoryVault) Exists(_ context.Context, ref webfile.StorageRef) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blobs, err := m.area(ref.Area)
	if err != nil {
		return false, err
	}
	_, ok := blobs[ref.Path]
	return ok, nil
}

// Move relocates ref into area to. An existing destination is kept.
func (m *MemoryVault) Move(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	return m.transfer(ctx, ref, to, true)
}

// Copy duplicates ref into area to.
func (m *MemoryVault) Copy(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	return m.transfer(ctx, ref, to, false)
}

func (m *MemoryVault) transfer(ctx context.Context, ref webfile.StorageRef, to webfile.Area, remove bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.area(ref.Area)
	if err != nil {
		return err
	}
	dst, err := m.area(to)
	if err != nil {
		return err
	}

	data, ok := src[ref.Path]
	if !ok {
		return fmt.Errorf("%w: blob %s", webfile.ErrNotFound, ref)
	}
	if _, exists := dst[ref.Path]; !exists {
		dst[ref.Path] = data
	}
	if remove && ref.Area != to {
		delete(src, ref.Path)
	}
	return nil
}

// Delete removes ref. Missing blobs are not an error.
func (m *MemoryVault) Delete(_ context.Context, ref webfile.StorageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blobs, err := m.area(ref.Area)
	if err != nil {
		return err
	}
	delete(blobs, ref.Path)
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(context.Context) error {
	return nil
}

// Len returns the number of blobs stored in area.
func (m *MemoryVault) Len(a webfile.Area) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs[a])
}

var _ webfile.ContentStore = (*MemoryVault)(nil)
