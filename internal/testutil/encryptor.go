package testutil

import (
	"webfile-go/internal/encryption"
	"webfile-go/internal/vault"
	"webfile-go/internal/webfile"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}

// NewSealedTestVault seals the private area of inner with a TestEncryptor
// that unlocks without prompting.
func NewSealedTestVault(inner webfile.ContentStore) (*vault.SealedVault, *encryption.TestEncryptor) {
	enc := encryption.NewTestEncryptor()
	unlocker := encryption.NewUnlocker(enc, func() (string, error) { return "", nil })
	return vault.NewSealedVault(inner, enc, unlocker.Unlock), enc
}
