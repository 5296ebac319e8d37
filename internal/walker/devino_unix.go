//go:build unix

package walker

import (
	"os"
	"syscall"
)

// platformDevIno extracts the device and inode number from file info,
// used both for hardlink de-duplication and as the hash cache key.
func platformDevIno(info os.FileInfo) (dev, ino uint64, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return uint64(stat.Dev), stat.Ino, true //nolint:unconvert // platform-dependent type
}
