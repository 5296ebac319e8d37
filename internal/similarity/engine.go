// Package similarity clusters directory fingerprints into labeled
// SimilarityGroups by weighted-Jaccard similarity.
//
// # Concurrency Model
//
// Size buckets are independent of each other, so pairwise comparison
// fans out bucket-by-bucket across a fixed worker pool draining a job
// channel.
package similarity

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ivoronin/folddog/internal/types"
)

// bucketSizeBytes is the size-bucket coarseness: folders are only
// compared when they round to the same 10 MiB bucket. A deliberate
// recall/precision trade to avoid a quadratic blowup on large forests.
const bucketSizeBytes = 10 * 1024 * 1024

const identicalEpsilon = 1e-9

// stats tracks grouping progress.
type stats struct {
	pairsTotal     int64
	pairsProcessed atomic.Int64
	startTime      time.Time
}

func (s *stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"similarity_pairs_total":     s.pairsTotal,
		"similarity_pairs_processed": s.pairsProcessed.Load(),
	}
}

// Engine clusters directory fingerprints into SimilarityGroups.
//
// The engine is designed for single-use: create with New(), call Run()
// once.
type Engine struct {
	fingerprints map[string]*types.DirectoryFingerprint
	threshold    float64
	workers      int

	stats *stats
}

// New creates an Engine over aggregated fingerprints.
func New(fingerprints map[string]*types.DirectoryFingerprint, threshold float64, workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{fingerprints: fingerprints, threshold: threshold, workers: workers}
}

// Stats returns a live snapshot of grouping progress.
func (e *Engine) Stats() map[string]int64 {
	if e.stats == nil {
		return nil
	}
	return e.stats.Snapshot()
}

// candidatePair is a surviving pair with its computed similarity.
type candidatePair struct {
	a, b       string // relative paths
	similarity float64
}

// Run buckets fingerprints by rounded size, scores candidate pairs
// within each bucket (skipping ancestor/descendant pairs), merges
// surviving pairs into connected components, and classifies each
// component into a labeled types.GroupRecord.
func (e *Engine) Run() []types.GroupRecord {
	buckets := e.bucketize()

	var totalPairs int64
	for _, members := range buckets {
		n := int64(len(members))
		totalPairs += n * (n - 1) / 2
	}
	e.stats = &stats{pairsTotal: totalPairs, startTime: time.Now()}

	pairs := e.scoreBuckets(buckets)

	uf := newUnionFind()
	edgeWeight := make(map[[2]string]float64)
	for relPath := range e.fingerprints {
		uf.add(relPath)
	}
	for _, p := range pairs {
		uf.union(p.a, p.b)
		key := edgeKey(p.a, p.b)
		if p.similarity > edgeWeight[key] {
			edgeWeight[key] = p.similarity
		}
	}

	var groups []types.GroupRecord
	for _, members := range uf.components() {
		if len(members) < 2 {
			continue // lone folders never form a group
		}
		groups = append(groups, e.buildGroup(members, edgeWeight))
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupID < groups[j].GroupID })

	return groups
}

func edgeKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// bucketize groups fingerprints by round(total_bytes / bucketSizeBytes).
func (e *Engine) bucketize() map[int64][]string {
	buckets := make(map[int64][]string)
	for relPath, fp := range e.fingerprints {
		key := int64(math.RoundToEven(float64(fp.Folder.TotalBytes) / bucketSizeBytes))
		buckets[key] = append(buckets[key], relPath)
	}
	return buckets
}

// scoreBuckets fans bucket-local pairwise comparison out across a fixed
// worker pool and returns every surviving (s >= threshold) pair.
func (e *Engine) scoreBuckets(buckets map[int64][]string) []candidatePair {
	jobCh := make(chan []string, len(buckets))
	resultCh := make(chan candidatePair, 1024)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for members := range jobCh {
				e.scoreBucket(members, resultCh)
			}
		}()
	}

	for _, members := range buckets {
		jobCh <- members
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var pairs []candidatePair
	for p := range resultCh {
		pairs = append(pairs, p)
	}
	return pairs
}

func (e *Engine) scoreBucket(members []string, out chan<- candidatePair) {
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			e.stats.pairsProcessed.Add(1)

			if isAncestorDescendant(a, b) {
				continue
			}

			s := weightedJaccard(e.fingerprints[a].Weights, e.fingerprints[b].Weights)
			if s >= e.threshold {
				out <- candidatePair{a: a, b: b, similarity: s}
			}
		}
	}
}

// buildGroup turns one connected component into a classified
// GroupRecord. Members are ordered by (len(path), path) so the first
// member is the canonical one.
func (e *Engine) buildGroup(memberPaths []string, edgeWeight map[[2]string]float64) types.GroupRecord {
	sort.Slice(memberPaths, func(i, j int) bool {
		a := e.fingerprints[memberPaths[i]].Folder.Path
		b := e.fingerprints[memberPaths[j]].Folder.Path
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})

	members := make([]types.FolderInfo, len(memberPaths))
	for i, relPath := range memberPaths {
		members[i] = e.fingerprints[relPath].Folder
	}

	var pairwise []types.PairwiseSimilarity
	var maxSim float64
	for i := 0; i < len(memberPaths); i++ {
		for j := i + 1; j < len(memberPaths); j++ {
			w, ok := edgeWeight[edgeKey(memberPaths[i], memberPaths[j])]
			if !ok {
				continue
			}
			pairwise = append(pairwise, types.PairwiseSimilarity{I: i, J: j, Similarity: w})
			if w > maxSim {
				maxSim = w
			}
		}
	}

	label := classify(members, maxSim, e.threshold)

	canonical := members[0]
	groupID := makeGroupID(canonical.Path)

	var divergences []types.DivergenceRecord
	if label != types.Identical && len(members) >= 2 {
		divergences = topDivergences(
			e.fingerprints[memberPaths[0]].Weights,
			e.fingerprints[memberPaths[1]].Weights,
		)
	}

	return types.GroupRecord{
		GroupID:              groupID,
		Label:                label,
		CanonicalPath:        canonical.Path,
		Members:              members,
		PairwiseSimilarities: pairwise,
		Divergences:          divergences,
	}
}

// classify assigns IDENTICAL, NEAR_DUPLICATE, or PARTIAL_OVERLAP.
func classify(members []types.FolderInfo, maxSim, threshold float64) types.Label {
	if maxSim >= 1-identicalEpsilon {
		first := members[0]
		allEqual := true
		for _, m := range members[1:] {
			if m.TotalBytes != first.TotalBytes || m.FileCount != first.FileCount {
				allEqual = false
				break
			}
		}
		if allEqual {
			return types.Identical
		}
		return types.NearDuplicate // safety-net downgrade on size/count mismatch
	}
	if maxSim >= threshold {
		return types.NearDuplicate
	}
	return types.PartialOverlap
}

// makeGroupID encodes "g_" + first 8 hex chars of uuid_v5(URL_NS, path).
func makeGroupID(canonicalPath string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonicalPath))
	return "g_" + id.String()[:8]
}

// topDivergences computes the symmetric absolute weight delta per
// identity between two weight maps and keeps the top 5 by delta.
func topDivergences(a, b types.FileWeights) []types.DivergenceRecord {
	seen := make(map[string]struct{}, len(a)+len(b))
	var records []types.DivergenceRecord

	add := func(identity string) {
		if _, ok := seen[identity]; ok {
			return
		}
		seen[identity] = struct{}{}
		delta := a[identity] - b[identity]
		if delta < 0 {
			delta = -delta
		}
		if delta == 0 {
			return
		}
		base, _, _ := types.SplitIdentity(identity)
		records = append(records, types.DivergenceRecord{PathA: base, PathB: base, DeltaBytes: delta})
	}

	for identity := range a {
		add(identity)
	}
	for identity := range b {
		add(identity)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].DeltaBytes > records[j].DeltaBytes })
	if len(records) > 5 {
		records = records[:5]
	}
	return records
}

