//go:build !unix

package walker

import "os"

// platformDevIno has no portable source outside unix; callers fall back
// to path-based ownership and skip the hash cache.
func platformDevIno(_ os.FileInfo) (dev, ino uint64, ok bool) {
	return 0, 0, false
}
