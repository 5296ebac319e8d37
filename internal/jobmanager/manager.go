// Package jobmanager coordinates a scan's three phases (walking,
// aggregating, grouping) plus descendant suppression, and exposes a
// job registry with a derived progress projection.
//
// Jobs run in the background on a bounded pool; the registry keeps
// every job for later progress and result queries.
package jobmanager

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ivoronin/folddog/internal/aggregator"
	"github.com/ivoronin/folddog/internal/hashcache"
	"github.com/ivoronin/folddog/internal/similarity"
	"github.com/ivoronin/folddog/internal/suppressor"
	"github.com/ivoronin/folddog/internal/types"
	"github.com/ivoronin/folddog/internal/walker"
)

const statsPollInterval = 50 * time.Millisecond

// Manager runs scans to completion in the background, enforcing a
// bounded number of concurrent scans, and serves a job registry.
//
// All job mutation and the progress projection share a single lock:
// job field updates are not a hot path (one phase transition, plus a
// low-frequency stats poll), so a coarse-grained lock keeps the state
// machine easy to reason about without per-job synchronization
// primitives leaking into the exported types.ScanJob.
type Manager struct {
	mu    sync.RWMutex
	jobs  map[string]*types.ScanJob
	order []string // insertion order, for ListJobs

	pool  types.Semaphore
	cache *hashcache.Cache
	wg    sync.WaitGroup
}

// NewManager creates a job manager. maxConcurrentJobs bounds how many
// scans execute at once; cache may be a disabled hashcache
// (hashcache.Open("")).
func NewManager(maxConcurrentJobs int, cache *hashcache.Cache) *Manager {
	if maxConcurrentJobs <= 0 {
		maxConcurrentJobs = 4
	}
	return &Manager{
		jobs:  make(map[string]*types.ScanJob),
		pool:  types.NewSemaphore(maxConcurrentJobs),
		cache: cache,
	}
}

// StartScan registers a new job and begins executing it in the
// background, returning immediately with the job in RUNNING status.
func (m *Manager) StartScan(req types.ScanRequest) *types.ScanJob {
	now := time.Now()
	job := &types.ScanJob{
		ID:        newJobID(),
		Request:   req,
		Status:    types.Running,
		CreatedAt: now,
		StartedAt: now,
		Stats:     make(map[string]int64),
		Meta:      map[string]string{"phase": ""},
		Groups:    make(map[types.Label][]types.GroupRecord),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(job)

	return job
}

// ListJobs returns every registered job, oldest first.
func (m *Manager) ListJobs() []*types.ScanJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.ScanJob, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id])
	}
	return out
}

// GetJob returns the job with the given id.
func (m *Manager) GetJob(id string) (*types.ScanJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// GetProgress returns the derived progress view for a job.
func (m *Manager) GetProgress(id string) (ScanProgress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return ScanProgress{}, false
	}
	return projectProgress(job), true
}

// ErrNotCompleted is returned by GetGroups when the job has not
// reached COMPLETED status.
var ErrNotCompleted = fmt.Errorf("scan job has not completed")

// ErrJobNotFound is returned when no job matches the given id.
var ErrJobNotFound = fmt.Errorf("scan job not found")

// GetGroups returns the job's groups, optionally filtered to one
// label. Only available once the job has COMPLETED.
func (m *Manager) GetGroups(id string, label *types.Label) ([]types.GroupRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != types.Completed {
		return nil, ErrNotCompleted
	}

	if label != nil {
		return job.Groups[*label], nil
	}

	var all []types.GroupRecord
	for _, l := range []types.Label{types.Identical, types.NearDuplicate, types.PartialOverlap} {
		all = append(all, job.Groups[l]...)
	}
	return all, nil
}

// Shutdown blocks until every in-flight job has finished.
func (m *Manager) Shutdown() {
	m.wg.Wait()
}

// run drives one job through every phase, to completion or failure. It
// is the only goroutine that mutates job state outside the manager's
// lock-guarded helper methods.
func (m *Manager) run(job *types.ScanJob) {
	defer m.wg.Done()

	m.pool.Acquire()
	defer m.pool.Release()

	// folders is set once the walk succeeds, so a later panic completes
	// the job with a warning instead of failing it.
	var folders map[string]*types.FolderInfo
	defer func() {
		if r := recover(); r != nil {
			m.finish(job, fmt.Errorf("panic during scan: %v", r), folders, nil)
		}
	}()

	w := walker.New(job.Request, m.cache)

	m.enterPhase(job, types.PhaseWalking)
	walkResult, err := m.pollWhile(job, w.Stats, w.LastPath, func() (any, error) { return w.Run() })
	m.leavePhase(job)
	if err != nil {
		// No partial result exists yet (the walker failed before
		// producing any folders), so the job fails outright.
		m.finish(job, err, nil, nil)
		return
	}
	result := walkResult.(*walker.Result)
	folders = result.Folders
	m.mergeWarnings(job, result.Warnings)

	agg := aggregator.New(result.Fingerprints)
	m.setStat(job, "total_folders", int64(len(result.Fingerprints)))
	m.enterPhase(job, types.PhaseAggregating)
	_, err = m.pollWhile(job, agg.Stats, nil, func() (any, error) {
		return agg.Run(), nil
	})
	m.leavePhase(job)
	if err != nil {
		m.finish(job, err, result.Folders, nil)
		return
	}

	workers := job.Request.Concurrency
	if workers <= 0 {
		workers = 2 * runtime.NumCPU()
	}
	workers = min(32, workers)
	eng := similarity.New(result.Fingerprints, job.Request.SimilarityThreshold, workers)
	m.enterPhase(job, types.PhaseGrouping)
	groupsAny, err := m.pollWhile(job, eng.Stats, nil, func() (any, error) {
		return eng.Run(), nil
	})
	m.leavePhase(job)
	if err != nil {
		m.finish(job, err, result.Folders, nil)
		return
	}
	groups := groupsAny.([]types.GroupRecord)

	kept := suppressor.Run(groups)
	m.finish(job, nil, result.Folders, kept)
}

// pollWhile runs work in the current goroutine while a background
// ticker periodically copies snapshot()/lastPath() into the job's
// Stats/Meta, so a concurrent GetProgress call observes live progress.
// lastPath may be nil for phases with no single-path concept.
func (m *Manager) pollWhile(job *types.ScanJob, snapshot func() map[string]int64, lastPath func() string, work func() (any, error)) (any, error) {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(statsPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.mergeStats(job, snapshot())
				if lastPath != nil {
					m.setMeta(job, "last_path", lastPath())
				}
			case <-stop:
				return
			}
		}
	}()

	result, err := work()

	close(stop)
	<-done

	m.mergeStats(job, snapshot())
	if lastPath != nil {
		m.setMeta(job, "last_path", lastPath())
	}

	return result, err
}

func (m *Manager) enterPhase(job *types.ScanJob, phase types.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Meta["phase"] = string(phase)
	job.Phases = append(job.Phases, types.PhaseTiming{Phase: phase, StartedAt: time.Now()})
	job.Resources = append(job.Resources, sampleResources())
}

func (m *Manager) leavePhase(job *types.ScanJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(job.Phases); n > 0 {
		last := &job.Phases[n-1]
		last.CompletedAt = time.Now()
		last.DurationSeconds = last.CompletedAt.Sub(last.StartedAt).Seconds()
	}
	job.Resources = append(job.Resources, sampleResources())
}

func (m *Manager) mergeStats(job *types.ScanJob, snapshot map[string]int64) {
	if snapshot == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range snapshot {
		job.Stats[k] = v
	}
}

func (m *Manager) setStat(job *types.ScanJob, key string, v int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Stats[key] = v
}

func (m *Manager) setMeta(job *types.ScanJob, key, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Meta[key] = v
}

func (m *Manager) mergeWarnings(job *types.ScanJob, warnings []types.WarningRecord) {
	if len(warnings) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Warnings = append(job.Warnings, warnings...)
}

// finish marks a job COMPLETED or FAILED: if a partial walk result
// exists (folders non-nil), the job completes with the error recorded
// as an IO_ERROR warning; otherwise it fails outright.
func (m *Manager) finish(job *types.ScanJob, err error, folders map[string]*types.FolderInfo, groups []types.GroupRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.CompletedAt = time.Now()

	if err != nil {
		if folders != nil {
			job.Status = types.Completed
			job.Warnings = append(job.Warnings, types.WarningRecord{
				Kind:    types.IOError,
				Message: err.Error(),
			})
		} else {
			job.Status = types.Failed
			job.Err = err
			return
		}
	} else {
		job.Status = types.Completed
	}

	byLabel := make(map[types.Label][]types.GroupRecord)
	for _, g := range groups {
		byLabel[g.Label] = append(byLabel[g.Label], g)
	}
	job.Groups = byLabel

	if n := len(job.Phases); n > 0 && job.Phases[n-1].CompletedAt.IsZero() {
		job.Phases[n-1].CompletedAt = job.CompletedAt
		job.Phases[n-1].DurationSeconds = job.CompletedAt.Sub(job.Phases[n-1].StartedAt).Seconds()
	}
}
