// Package types provides shared types used across the folddog codebase.
package types

import "time"

// EqualityMode selects how two files are compared for equivalence.
type EqualityMode int

const (
	// NameSize compares files by relative path (or basename) and size only.
	NameSize EqualityMode = iota
	// SHA256 compares files by relative path (or basename) and content hash.
	SHA256
)

// StructurePolicy selects how a file's identity base path is derived.
type StructurePolicy int

const (
	// Relative uses the file's path relative to its containing folder.
	Relative StructurePolicy = iota
	// BagOfFiles uses only the file's basename. A folder's own files get
	// the same base under either policy, and aggregation prefixes
	// identities rolled up from subfolders with the subfolder path under
	// either policy, so subdirectory structure is not ignored.
	BagOfFiles
)

// Label classifies a SimilarityGroup by how close its members are.
type Label int

const (
	Identical Label = iota
	NearDuplicate
	PartialOverlap
)

// String renders the label the way it appears in GroupRecord output.
func (l Label) String() string {
	switch l {
	case Identical:
		return "IDENTICAL"
	case NearDuplicate:
		return "NEAR_DUPLICATE"
	case PartialOverlap:
		return "PARTIAL_OVERLAP"
	default:
		return "UNKNOWN"
	}
}

// WarningKind classifies a WarningRecord.
type WarningKind int

const (
	Permission WarningKind = iota
	Unstable
	IOError
)

// String renders the warning kind the way it appears in job output.
func (k WarningKind) String() string {
	switch k {
	case Permission:
		return "PERMISSION"
	case Unstable:
		return "UNSTABLE"
	case IOError:
		return "IO_ERROR"
	default:
		return "UNKNOWN"
	}
}

// WarningRecord describes a non-fatal problem encountered during a scan.
type WarningRecord struct {
	Path    string
	Kind    WarningKind
	Message string
}

// FolderInfo describes one directory discovered by the walker.
//
// TotalBytes and FileCount start as the folder's own (non-recursive)
// totals and are overwritten in place by the aggregator once recursive
// rollup completes.
type FolderInfo struct {
	Path         string // absolute
	RelativePath string // posix, "." for root
	TotalBytes   int64
	FileCount    int
	Unstable     bool
}

// Depth returns the number of path components in RelativePath ("." is 0).
func (f FolderInfo) Depth() int {
	if f.RelativePath == "." {
		return 0
	}
	depth := 1
	for _, c := range f.RelativePath {
		if c == '/' {
			depth++
		}
	}
	return depth
}

// FileWeights maps a file identity to its byte weight within a folder.
//
// Identity encodes the file's base path (or basename, under BagOfFiles)
// concatenated with either its size ("base:size") or its sha256
// ("base#hex"), depending on equality mode.
type FileWeights map[string]int64

// Clone returns a shallow copy of the weight map.
func (w FileWeights) Clone() FileWeights {
	out := make(FileWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// DirectoryFingerprint pairs a folder's metadata with its file weights.
//
// Before aggregation, Weights holds only the folder's own files. After
// aggregation, Weights holds the recursive union of the folder's own
// weights with every descendant's weights, descendant identities
// rewritten under the descendant's relative path.
type DirectoryFingerprint struct {
	Folder  FolderInfo
	Weights FileWeights
}

// PairwiseSimilarity records the similarity between two members of a
// SimilarityGroup, indexed into the group's Members slice.
type PairwiseSimilarity struct {
	I, J       int
	Similarity float64
}

// SimilarityGroup is a connected component of folders whose pairwise
// similarity meets the configured threshold.
type SimilarityGroup struct {
	Members       []FolderInfo
	Pairwise      []PairwiseSimilarity
	MaxSimilarity float64
}

// DivergenceRecord describes the largest weight deltas between the first
// two members of a non-identical group.
type DivergenceRecord struct {
	PathA, PathB string
	DeltaBytes   int64
}

// GroupRecord is the externally-exposed, labeled result of clustering.
type GroupRecord struct {
	GroupID               string
	Label                 Label
	CanonicalPath         string
	Members               []FolderInfo
	PairwiseSimilarities  []PairwiseSimilarity
	Divergences           []DivergenceRecord
	SuppressedDescendants bool // reserved, always false
}

// ScanRequest is the input contract for a scan, supplied by whatever
// collaborator accepts user requests (HTTP handler, CLI flags, etc.).
type ScanRequest struct {
	RootPath              string
	Include               []string
	Exclude               []string
	FileEquality          EqualityMode
	SimilarityThreshold   float64
	ForceCaseInsensitive  bool
	StructurePolicy       StructurePolicy
	Concurrency           int // 0 means "use default"
	DeletionEnabled       bool
	IncludeMatrix         bool
	IncludeTreemap        bool
}

// JobStatus is the state of a ScanJob.
type JobStatus int

const (
	Pending JobStatus = iota
	Running
	Completed
	Failed
)

func (s JobStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Phase is one of the three coarse progress buckets a scan passes through.
type Phase string

const (
	PhaseNone        Phase = ""
	PhaseWalking     Phase = "walking"
	PhaseAggregating Phase = "aggregating"
	PhaseGrouping    Phase = "grouping"
)

// PhaseTiming records when a phase started/finished.
type PhaseTiming struct {
	Phase           Phase
	StartedAt       time.Time
	CompletedAt     time.Time
	DurationSeconds float64
}

// ResourceSample is a point-in-time snapshot taken on every phase
// transition.
type ResourceSample struct {
	TakenAt  time.Time
	CPUCount int
	Load1    float64
	RSSBytes uint64
	IOBytes  uint64
}

// ScanJob is the mutable record of one in-flight or completed scan.
//
// It is created by the job manager and mutated only by the worker
// goroutine executing the scan and by the manager's read-only progress
// projection.
type ScanJob struct {
	ID          string
	Request     ScanRequest
	Status      JobStatus
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Warnings    []WarningRecord
	Stats       map[string]int64
	Meta        map[string]string
	Phases      []PhaseTiming
	Resources   []ResourceSample
	Groups      map[Label][]GroupRecord
	Err         error
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit
// is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent
// acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
