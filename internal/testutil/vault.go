package testutil

import (
	"context"
	"io"
	"sync"

	"webfile-go/internal/vault"
	"webfile-go/internal/webfile"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault()
}

// FailingVault wraps a ContentStore and fails selected operations. Each
// error field applies to every call of that operation while it is set.
type FailingVault struct {
	webfile.ContentStore

	mu        sync.Mutex
	PutErr    error
	MoveErr   error
	CopyErr   error
	DeleteErr error
}

// SetMoveErr changes MoveErr while the vault is in use.
func (v *FailingVault) SetMoveErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.MoveErr = err
}

func (v *FailingVault) fail(field *error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return *field
}

func (v *FailingVault) Put(ctx context.Context, ref webfile.StorageRef, r io.Reader, size int64) error {
	if err := v.fail(&v.PutErr); err != nil {
		return err
	}
	return v.ContentStore.Put(ctx, ref, r, size)
}

func (v *FailingVault) Move(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	if err := v.fail(&v.MoveErr); err != nil {
		return err
	}
	return v.ContentStore.Move(ctx, ref, to)
}

func (v *FailingVault) Copy(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	if err := v.fail(&v.CopyErr); err != nil {
		return err
	}
	return v.ContentStore.Copy(ctx, ref, to)
}

func (v *FailingVault) Delete(ctx context.Context, ref webfile.StorageRef) error {
	if err := v.fail(&v.DeleteErr); err != nil {
		return err
	}
	return v.ContentStore.Delete(ctx, ref)
}
