package vault

import (
	"context"
	"errors"
	"fmt"
	"io"

	"webfile-go/internal/webfile"
)

// SealedVault encrypts private-area blobs before they reach the inner store
// and decrypts them on the way out. Public blobs pass through unchanged.
// Storage paths stay the plaintext digest paths, so deduplication and
// reference counting are unaffected.
//
// A blob crossing between areas changes encoding, so Move and Copy across
// areas stream through the process instead of delegating to the inner store.
type SealedVault struct {
	inner  webfile.ContentStore
	enc    webfile.Encryptor
	unlock func() (webfile.DecryptionContext, error)
}

// NewSealedVault wraps inner. unlock is called whenever private content has
// to be decrypted; callers usually pass (*encryption.Unlocker).Unlock.
func NewSealedVault(inner webfile.ContentStore, enc webfile.Encryptor, unlock func() (webfile.DecryptionContext, error)) *SealedVault {
	return &SealedVault{inner: inner, enc: enc, unlock: unlock}
}

// Put seals private content while streaming it into the inner store.
func (v *SealedVault) Put(ctx context.Context, ref webfile.StorageRef, r io.Reader, size int64) error {
	if ref.Area != webfile.AreaPrivate {
		return v.inner.Put(ctx, ref, r, size)
	}

	counter := &countingReader{r: r}
	if err := v.putSealed(ctx, ref, counter); err != nil {
		return err
	}
	if size >= 0 && counter.n != size {
		err := fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
		return v.discard(ctx, ref, err)
	}
	return nil
}

func (v *SealedVault) putSealed(ctx context.Context, ref webfile.StorageRef, plain io.Reader) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(v.enc.Encrypt(plain, pw))
	}()

	err := v.inner.Put(ctx, ref, pr, -1)
	// Unblocks the encrypting goroutine if the store stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return fmt.Errorf("storing sealed blob: %w", err)
	}
	return nil
}

// Get decrypts private content into w.
func (v *SealedVault) Get(ctx context.Context, ref webfile.StorageRef, w io.Writer) error {
	if ref.Area != webfile.AreaPrivate {
		return v.inner.Get(ctx, ref, w)
	}

	dc, err := v.unlock()
	if err != nil {
		return fmt.Errorf("unlocking private area: %w", err)
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := dc.Decrypt(pr, w)
		pr.CloseWithError(err)
		done <- err
	}()

	err = v.inner.Get(ctx, ref, pw)
	pw.CloseWithError(err)
	if decErr := <-done; err == nil && decErr != nil {
		err = fmt.Errorf("decrypting %s: %w", ref, decErr)
	}
	return err
}

func (v *SealedVault) Exists(ctx context.Context, ref webfile.StorageRef) (bool, error) {
	return v.inner.Exists(ctx, ref)
}

// Move re-encodes the blob into the other area and removes the source.
func (v *SealedVault) Move(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	if ref.Area == to {
		return v.inner.Move(ctx, ref, to)
	}
	if err := v.Copy(ctx, ref, to); err != nil {
		return err
	}
	return v.inner.Delete(ctx, ref)
}

// Copy re-encodes the blob into the other area. An existing destination is
// kept.
func (v *SealedVault) Copy(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	if ref.Area == to {
		return v.inner.Copy(ctx, ref, to)
	}

	dest := ref.In(to)
	exists, err := v.inner.Exists(ctx, dest)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if ok, err := v.inner.Exists(ctx, ref); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: blob %s", webfile.ErrNotFound, ref)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(v.Get(ctx, ref, pw))
	}()

	err = v.Put(ctx, dest, pr, -1)
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		// A partial destination must not be mistaken for a complete blob.
		return v.discard(ctx, dest, fmt.Errorf("re-encoding %s into %s: %w", ref, to, err))
	}
	return nil
}

// discard removes a blob that failed to store completely and returns cause,
// joined with the removal error when the blob could not be removed.
func (v *SealedVault) discard(ctx context.Context, ref webfile.StorageRef, cause error) error {
	if err := v.inner.Delete(context.WithoutCancel(ctx), ref); err != nil {
		return errors.Join(cause, fmt.Errorf("removing incomplete blob %s: %w", ref, err))
	}
	return cause
}

func (v *SealedVault) Delete(ctx context.Context, ref webfile.StorageRef) error {
	return v.inner.Delete(ctx, ref)
}

// ValidateSetup checks the inner store and that the public key is present.
func (v *SealedVault) ValidateSetup(ctx context.Context) error {
	if !v.enc.IsConfigured() {
		return fmt.Errorf("encryption keys are not set up (run `webfile keys init`)")
	}
	return v.inner.ValidateSetup(ctx)
}

var _ webfile.ContentStore = (*SealedVault)(nil)
