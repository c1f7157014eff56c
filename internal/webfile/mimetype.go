package webfile

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ValidMimeType reports whether t is a registered media type. Parameters such
// as charset are ignored.
func ValidMimeType(t string) bool {
	base, _, err := mime.ParseMediaType(t)
	if err != nil {
		return false
	}
	if mimetype.Lookup(base) != nil {
		return true
	}
	exts, err := mime.ExtensionsByType(base)
	return err == nil && len(exts) > 0
}

// DetectMimeType sniffs the media type of r from its leading bytes and
// rewinds it.
func DetectMimeType(r io.ReadSeeker) (string, error) {
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("detecting mime type: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding content: %w", err)
	}
	return m.String(), nil
}

// normalizeMimeType lowercases the type and trims surrounding space.
func normalizeMimeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
