// Package walker provides concurrent filesystem traversal that builds
// per-folder content fingerprints for duplicate-directory detection.
//
// # Concurrency Model
//
// Directory-level iteration is single-threaded (depth-first, one
// directory at a time) to bound the number of open directory handles.
// Within a directory, per-file work (stat, exclude/include match,
// hashing) fans out across a semaphore-gated pool of goroutines.
//
// Shared mutable state - the folders map, fingerprints map, the
// (device,inode) set used for hardlink de-duplication, and the warnings
// slice - is protected by a single (non-reentrant) mutex held only for
// O(1) updates; the stats counters are atomics, and hash streaming
// itself holds no lock.
package walker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ivoronin/folddog/internal/hashcache"
	"github.com/ivoronin/folddog/internal/types"
)

const hashChunkSize = 4 << 20 // 4 MiB

// Walker discovers folders and builds pre-aggregation fingerprints by
// walking a directory tree depth-first.
//
// The walker is designed for single-use: create with New(), call Run()
// once.
type Walker struct {
	req   types.ScanRequest
	cache *hashcache.Cache
	sem   types.Semaphore

	mu           sync.Mutex
	folders      map[string]*types.FolderInfo
	fingerprints map[string]*types.DirectoryFingerprint
	warnings     []types.WarningRecord
	inodes       map[inodeKey]struct{}

	stats *stats
}

type inodeKey struct {
	dev, ino uint64
}

// New creates a Walker for the given request. hashCache may be a
// disabled cache (hashcache.Open("")) when no caching is desired.
func New(req types.ScanRequest, hashCache *hashcache.Cache) *Walker {
	return &Walker{
		req:          req,
		cache:        hashCache,
		folders:      make(map[string]*types.FolderInfo),
		fingerprints: make(map[string]*types.DirectoryFingerprint),
		inodes:       make(map[inodeKey]struct{}),
	}
}

// Stats returns a live, thread-safe snapshot of walk progress. Safe to
// call concurrently with Run.
func (w *Walker) Stats() map[string]int64 {
	if w.stats == nil {
		return nil
	}
	return w.stats.Snapshot()
}

// LastPath returns the most recently touched absolute path.
func (w *Walker) LastPath() string {
	if w.stats == nil {
		return ""
	}
	return w.stats.LastPath()
}

// Run walks req.RootPath and returns the pre-aggregation Result. It
// fails fatally only if RootPath is not a directory.
func (w *Walker) Run() (*Result, error) {
	info, err := os.Stat(w.req.RootPath)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", w.req.RootPath)
	}

	workers := w.req.Concurrency
	if workers <= 0 {
		workers = 2 * runtime.NumCPU()
	}
	workers = min(32, workers)
	w.sem = types.NewSemaphore(workers)
	w.stats = &stats{startTime: time.Now(), workers: int64(workers)}

	absRoot, err := filepath.Abs(w.req.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	if !w.matchesExclude(".") {
		w.stats.foldersDiscovered.Add(1)
		w.walkDir(absRoot, ".")
	}

	return &Result{
		Folders:      w.folders,
		Fingerprints: w.fingerprints,
		Warnings:     w.warnings,
	}, nil
}

// walkDir processes one directory and then recurses sequentially into
// its kept subdirectories.
func (w *Walker) walkDir(absDir, relDir string) {
	w.stats.setLastPath(absDir)

	entries, subdirs, err := w.listDirectory(absDir, relDir)
	if err != nil {
		w.addWarning(absDir, warningKind(err), err.Error())
		return
	}

	own, unstable := w.processFiles(absDir, relDir, entries)

	folder := &types.FolderInfo{
		Path:         absDir,
		RelativePath: relDir,
		TotalBytes:   sumWeights(own),
		FileCount:    len(own),
		Unstable:     unstable,
	}

	w.mu.Lock()
	w.folders[relDir] = folder
	w.fingerprints[relDir] = &types.DirectoryFingerprint{Folder: *folder, Weights: own}
	w.stats.foldersScanned.Add(1)
	w.mu.Unlock()

	for _, sub := range subdirs {
		childRel := sub.relPath
		w.mu.Lock()
		w.stats.foldersDiscovered.Add(1)
		w.mu.Unlock()
		w.walkDir(sub.absPath, childRel)
	}
}

type subdir struct {
	absPath, relPath string
}

// listDirectory reads one directory with batched ReadDir (1000 entries
// per batch), splitting entries into files and subdirectories.
// Subdirectories matching an exclude glob are dropped here; files are
// filtered later, in processFile. This is the only place directory I/O
// occurs.
func (w *Walker) listDirectory(absDir, relDir string) (files []os.DirEntry, subdirs []subdir, err error) {
	dir, err := os.Open(absDir)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		batch, berr := dir.ReadDir(batchSize)
		for _, entry := range batch {
			if entry.IsDir() {
				childRel := entry.Name()
				if relDir != "." {
					childRel = relDir + "/" + entry.Name()
				}
				if w.matchesExclude(childRel) {
					continue
				}
				subdirs = append(subdirs, subdir{
					absPath: filepath.Join(absDir, entry.Name()),
					relPath: childRel,
				})
				continue
			}
			files = append(files, entry)
		}
		if len(batch) == 0 {
			if berr != nil && berr != io.EOF {
				return files, subdirs, berr
			}
			break
		}
	}

	return files, subdirs, nil
}

// processFiles stats and optionally hashes each file in a directory,
// fanning the work out across the walker's semaphore-gated pool, and
// returns the folder's own (non-recursive) file weights.
func (w *Walker) processFiles(absDir, relDir string, entries []os.DirEntry) (types.FileWeights, bool) {
	weights := make(types.FileWeights, len(entries))
	unstable := false

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, entry := range entries {
		wg.Add(1)
		go func(e os.DirEntry) {
			defer wg.Done()
			w.sem.Acquire()
			defer w.sem.Release()

			identity, size, fileUnstable, warn, skip := w.processFile(absDir, relDir, e)

			mu.Lock()
			if warn != nil {
				w.mu.Lock()
				w.warnings = append(w.warnings, *warn)
				w.mu.Unlock()
			}
			if fileUnstable {
				unstable = true // the skipped file still taints the folder
			}
			if !skip {
				weights[identity] += size
				w.stats.filesScanned.Add(1)
				w.stats.bytesScanned.Add(size)
			}
			mu.Unlock()
		}(entry)
	}
	wg.Wait()

	return weights, unstable
}

// processFile stats (and, under SHA256 mode, hashes) one file, applying
// symlink skip, hardlink de-duplication, and exclude/include filtering.
// Returns skip=true for files that should not contribute weight.
func (w *Walker) processFile(absDir, relDir string, entry os.DirEntry) (identity string, size int64, unstable bool, warn *types.WarningRecord, skip bool) {
	fullPath := filepath.Join(absDir, entry.Name())
	fileRel := path.Join(relDir, entry.Name())

	if !entry.Type().IsRegular() {
		return "", 0, false, nil, true // symlinks, devices, sockets
	}

	if w.matchesExclude(fileRel) || !w.matchesInclude(fileRel) {
		return "", 0, false, nil, true
	}

	info, err := entry.Info()
	if err != nil {
		return "", 0, false, &types.WarningRecord{Path: fullPath, Kind: warningKind(err), Message: err.Error()}, true
	}

	if dev, ino, ok := platformDevIno(info); ok {
		key := inodeKey{dev, ino}
		w.mu.Lock()
		_, seen := w.inodes[key]
		if !seen {
			w.inodes[key] = struct{}{}
		}
		w.mu.Unlock()
		if seen {
			return "", 0, false, nil, true // already owned by another folder
		}
	}

	// A folder's own files sit directly in it, so the path relative to the
	// folder is the file name under either structure policy; subfolder
	// paths are added later by the aggregator.
	base := entry.Name()
	if w.req.ForceCaseInsensitive {
		base = strings.ToLower(base)
	}

	if w.req.FileEquality == types.NameSize {
		return types.MakeIdentity(base, types.NameSize, info.Size(), ""), info.Size(), false, nil, false
	}

	sum, stableInfo, err := w.hashStable(fullPath, info)
	if err != nil {
		return "", 0, false, &types.WarningRecord{Path: fullPath, Kind: warningKind(err), Message: err.Error()}, true
	}
	if stableInfo == nil {
		return "", 0, true, &types.WarningRecord{Path: fullPath, Kind: types.Unstable, Message: "size or mtime changed while hashing"}, true
	}

	return types.MakeIdentity(base, types.SHA256, stableInfo.Size(), sum), stableInfo.Size(), false, nil, false
}

// hashStable computes the sha256 of a file, consulting and populating
// the hash cache, and re-stats afterward to detect concurrent
// modification. If the file changed during hashing, it retries once; if
// still unstable, returns (_, nil, nil) and the caller emits an
// UNSTABLE warning.
func (w *Walker) hashStable(fullPath string, info os.FileInfo) (string, os.FileInfo, error) {
	for attempt := 0; attempt < 2; attempt++ {
		dev, ino, hasIno := platformDevIno(info)
		var key hashcache.Key
		if hasIno {
			key = hashcache.Key{Device: dev, Inode: ino, Size: info.Size(), MTime: info.ModTime()}
			if cached, ok := w.cache.Get(key); ok {
				return cached, info, nil
			}
		}

		sum, err := hashFile(fullPath)
		if err != nil {
			return "", nil, err
		}

		after, err := os.Stat(fullPath)
		if err != nil {
			return "", nil, err
		}
		if after.Size() == info.Size() && after.ModTime().Equal(info.ModTime()) {
			if hasIno {
				_ = w.cache.Set(key, sum)
			}
			return sum, info, nil
		}

		info = after // retry once against the new metadata
	}
	return "", nil, nil
}

// hashFile streams a file in hashChunkSize chunks computing sha256.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// warningKind maps a file I/O error to its warning classification.
func warningKind(err error) types.WarningKind {
	if os.IsPermission(err) {
		return types.Permission
	}
	return types.IOError
}

func (w *Walker) addWarning(p string, kind types.WarningKind, msg string) {
	w.mu.Lock()
	w.warnings = append(w.warnings, types.WarningRecord{Path: p, Kind: kind, Message: msg})
	w.mu.Unlock()
}

// matchesExclude reports whether relPath matches any exclude glob,
// using doublestar so "**" directory-wildcard patterns are honored.
func (w *Walker) matchesExclude(relPath string) bool {
	for _, pattern := range w.req.Exclude {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// matchesInclude reports whether relPath should be kept under the
// include list. An empty include list keeps everything.
func (w *Walker) matchesInclude(relPath string) bool {
	if len(w.req.Include) == 0 {
		return true
	}
	for _, pattern := range w.req.Include {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

func sumWeights(w types.FileWeights) int64 {
	var total int64
	for _, v := range w {
		total += v
	}
	return total
}
