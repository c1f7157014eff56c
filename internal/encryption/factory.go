package encryption

import (
	"fmt"

	"webfile-go/internal/config"
	"webfile-go/internal/webfile"
)

// NewEncryptorFromConfig creates the encryptor for private-area blobs.
// Type "none" (or empty) returns nil: private blobs are stored as is.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (webfile.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
