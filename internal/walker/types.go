package walker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/folddog/internal/types"
)

// stats tracks walking progress using atomic counters for lock-free
// updates: any walker goroutine may update a counter without mutex
// contention, while the job manager's progress loop reads consistent
// snapshots via Load.
type stats struct {
	filesScanned      atomic.Int64
	foldersScanned    atomic.Int64
	foldersDiscovered atomic.Int64
	bytesScanned      atomic.Int64
	workers           int64
	startTime         time.Time

	mu       sync.Mutex
	lastPath string
}

func (s *stats) setLastPath(p string) {
	s.mu.Lock()
	s.lastPath = p
	s.mu.Unlock()
}

// LastPath returns the most recently touched absolute path, for a
// progress UI to display the active location.
func (s *stats) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath
}

// Snapshot returns the walker's live progress counters.
func (s *stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"files_scanned":      s.filesScanned.Load(),
		"folders_scanned":    s.foldersScanned.Load(),
		"folders_discovered": s.foldersDiscovered.Load(),
		"bytes_scanned":      s.bytesScanned.Load(),
		"workers":            s.workers,
	}
}

func (s *stats) String() string {
	return humanize.Comma(s.foldersScanned.Load()) + "/" + humanize.Comma(s.foldersDiscovered.Load()) +
		" folders, " + humanize.Comma(s.filesScanned.Load()) + " files (" +
		humanize.IBytes(uint64(s.bytesScanned.Load())) + ") in " +
		time.Since(s.startTime).Round(time.Millisecond).String()
}

// Result is the output of a walk: pre-aggregation fingerprints, folder
// metadata, and any warnings collected along the way.
type Result struct {
	Folders      map[string]*types.FolderInfo
	Fingerprints map[string]*types.DirectoryFingerprint
	Warnings     []types.WarningRecord
}
