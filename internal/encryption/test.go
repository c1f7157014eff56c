package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"webfile-go/internal/webfile"
)

// sealHeader marks data sealed by TestEncryptor.
var sealHeader = []byte("WFENC\x00\x00\x00")

// ErrWrongPassphrase is returned by TestEncryptor.Unlock for a passphrase
// other than the one given to Setup.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// TestEncryptor prepends a fixed header instead of encrypting. Sealed output
// differs from the plaintext and is trivially reversible.
type TestEncryptor struct {
	passphrase  string
	setupCalled bool
	encrypts    atomic.Int64
	unlocks     atomic.Int64
}

var _ webfile.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup remembers passphrase; Unlock then rejects any other. Without Setup
// every passphrase unlocks.
func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	e.encrypts.Add(1)
	if _, err := w.Write(sealHeader); err != nil {
		return fmt.Errorf("writing seal header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (webfile.DecryptionContext, error) {
	e.unlocks.Add(1)
	if e.setupCalled && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// Encrypts returns how many blobs were sealed.
func (e *TestEncryptor) Encrypts() int64 { return e.encrypts.Load() }

// Unlocks returns how many times Unlock was called.
func (e *TestEncryptor) Unlocks() int64 { return e.unlocks.Load() }

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ webfile.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(sealHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading seal header: %w", err)
	}
	if !bytes.Equal(header, sealHeader) {
		return fmt.Errorf("invalid seal header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
