package testutil

import (
	"crypto/sha1"
	"encoding/hex"

	"webfile-go/internal/webfile"
)

// SHA1Hex returns the SHA-1 digest of data as a lowercase hex string, the
// content digest format of file rows.
func SHA1Hex(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}

// BlobRef returns where content with the given bytes is stored in area.
func BlobRef(area webfile.Area, data []byte) webfile.StorageRef {
	return webfile.StorageRef{Area: area, Path: webfile.StoragePathFor(SHA1Hex(data))}
}
