package testutil

import (
	"webfile-go/internal/staging"
)

const (
	// DefaultStagingMaxSize is the default max size for test spoolers (10MB).
	DefaultStagingMaxSize = 10 * 1024 * 1024
)

// NewTestSpooler creates an in-memory spooler for testing.
func NewTestSpooler() *staging.Spooler {
	return staging.NewMemorySpooler(DefaultStagingMaxSize)
}

// NewTestSpoolerWithSize creates an in-memory spooler with a custom max size.
func NewTestSpoolerWithSize(maxSize int64) *staging.Spooler {
	return staging.NewMemorySpooler(maxSize)
}
