package staging

import (
	"fmt"

	"webfile-go/internal/config"
)

// DefaultMaxSize bounds memory staging when no max size is configured (64MB).
const DefaultMaxSize int64 = 64 << 20

// NewSpoolerFromConfig creates a Spooler based on the staging config type.
func NewSpoolerFromConfig(cfg config.StagingConfig) (*Spooler, error) {
	switch cfg.Type {
	case "memory":
		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = DefaultMaxSize
		}
		return NewMemorySpooler(maxSize), nil
	case "filesystem":
		return NewFileSystemSpooler(cfg.StagingDir, cfg.MemoryThreshold, cfg.MaxSize), nil
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
