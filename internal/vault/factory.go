package vault

import (
	"context"
	"fmt"

	"webfile-go/internal/config"
	"webfile-go/internal/webfile"
)

// NewVaultFromConfig creates the backing content store for the vault config
// type. Sealing and instrumentation are layered on top by the caller.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (webfile.ContentStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
		}
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Vault(client, cfg.S3Bucket, cfg.S3Prefix), nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
