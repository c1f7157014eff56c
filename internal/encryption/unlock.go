package encryption

import (
	"fmt"
	"sync"

	"webfile-go/internal/webfile"
)

// Unlocker asks for the passphrase on first use and keeps the unlocked key
// for the rest of the process. A failed attempt is not cached.
type Unlocker struct {
	enc    webfile.Encryptor
	prompt func() (string, error)

	mu sync.Mutex
	dc webfile.DecryptionContext
}

// NewUnlocker wraps enc. prompt is called at most once per successful unlock.
func NewUnlocker(enc webfile.Encryptor, prompt func() (string, error)) *Unlocker {
	return &Unlocker{enc: enc, prompt: prompt}
}

// Unlock returns the cached decryption context, prompting if needed.
func (u *Unlocker) Unlock() (webfile.DecryptionContext, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.dc != nil {
		return u.dc, nil
	}
	if !u.enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys are not set up (run `webfile keys init`)")
	}

	passphrase, err := u.prompt()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	dc, err := u.enc.Unlock(passphrase)
	if err != nil {
		return nil, err
	}
	u.dc = dc
	return dc, nil
}
