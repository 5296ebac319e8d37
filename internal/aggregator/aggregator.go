// Package aggregator rolls up per-folder file weights into recursive
// directory fingerprints.
//
// Processing is strictly bottom-up by depth: children are fully
// aggregated before their parent, so each folder folds in at most one
// level of already-complete child fingerprints.
package aggregator

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/folddog/internal/types"
)

// stats tracks aggregation progress.
type stats struct {
	foldersAggregated atomic.Int64
	totalFolders      int64
	startTime         time.Time
}

func (s *stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"folders_aggregated": s.foldersAggregated.Load(),
		"total_folders":      s.totalFolders,
	}
}

func (s *stats) String() string {
	return "aggregated " + humanize.Comma(s.foldersAggregated.Load()) + "/" + humanize.Comma(s.totalFolders) +
		" folders in " + time.Since(s.startTime).Round(time.Millisecond).String()
}

// Aggregator rolls up a pre-aggregation fingerprint map into recursive
// fingerprints, in place.
//
// The aggregator is designed for single-use: create with New(), call
// Run() once.
type Aggregator struct {
	fingerprints map[string]*types.DirectoryFingerprint
	stats        *stats
}

// New creates an Aggregator over a walker.Result's Fingerprints map.
func New(fingerprints map[string]*types.DirectoryFingerprint) *Aggregator {
	return &Aggregator{fingerprints: fingerprints}
}

// Stats returns a live snapshot of aggregation progress.
func (a *Aggregator) Stats() map[string]int64 {
	if a.stats == nil {
		return nil
	}
	return a.stats.Snapshot()
}

// Run replaces each fingerprint's weights with its recursive rollup and
// returns the same map, mutated in place:
//
//  1. Build a parent -> children index from relative-path keys.
//  2. Process folders in order of decreasing depth (leaves first).
//  3. For each folder, start from its own weights, then fold in every
//     already-aggregated child's weights, with child identities
//     prefixed by the child's relative path.
//  4. Overwrite the folder's TotalBytes/FileCount with the recursive
//     totals.
func (a *Aggregator) Run() map[string]*types.DirectoryFingerprint {
	a.stats = &stats{totalFolders: int64(len(a.fingerprints)), startTime: time.Now()}

	children := make(map[string][]string, len(a.fingerprints))
	for relPath := range a.fingerprints {
		if relPath == "." {
			continue
		}
		parent := parentOf(relPath)
		children[parent] = append(children[parent], relPath)
	}

	order := make([]string, 0, len(a.fingerprints))
	for relPath := range a.fingerprints {
		order = append(order, relPath)
	}
	sortByDecreasingDepth(order, a.fingerprints)

	for _, relPath := range order {
		fp := a.fingerprints[relPath]
		combined := fp.Weights.Clone()

		for _, childRel := range children[relPath] {
			child := a.fingerprints[childRel]
			prefix := relativePrefix(relPath, childRel)
			for identity, weight := range child.Weights {
				combined[types.PrefixIdentity(identity, prefix)] += weight
			}
		}

		fp.Weights = combined
		fp.Folder.TotalBytes = sumWeights(combined)
		fp.Folder.FileCount = len(combined)

		a.stats.foldersAggregated.Add(1)
	}

	return a.fingerprints
}

// parentOf returns the posix parent of a relative path; "." is the
// parent of any top-level entry.
func parentOf(relPath string) string {
	i := strings.LastIndexByte(relPath, '/')
	if i < 0 {
		return "."
	}
	return relPath[:i]
}

// relativePrefix returns childRel's path relative to parentRel - or
// childRel itself if parentRel is the scan root.
func relativePrefix(parentRel, childRel string) string {
	if parentRel == "." {
		return childRel
	}
	return strings.TrimPrefix(childRel, parentRel+"/")
}

// sortByDecreasingDepth sorts relative paths so deeper folders (more
// path components) come first, ties broken lexicographically for
// determinism.
func sortByDecreasingDepth(paths []string, fingerprints map[string]*types.DirectoryFingerprint) {
	depth := func(p string) int { return fingerprints[p].Folder.Depth() }
	sort.Slice(paths, func(i, j int) bool {
		di, dj := depth(paths[i]), depth(paths[j])
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})
}

func sumWeights(w types.FileWeights) int64 {
	var total int64
	for _, v := range w {
		total += v
	}
	return total
}
