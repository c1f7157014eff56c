//go:build unix

package fs

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"
)

// statData holds the Unix-specific metadata used to detect changes.
type statData struct {
	Ctime time.Time
}

// extractStatData extracts Unix-specific stat data from a FileInfo.
// Returns an error if the underlying Sys() type is not *syscall.Stat_t,
// which would happen with mock filesystems that don't provide real stat data.
func extractStatData(info fs.FileInfo) (*statData, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}
	return &statData{Ctime: time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)}, nil
}
