package jobmanager

import (
	"time"

	"github.com/ivoronin/folddog/internal/types"
)

// PhaseView is one entry of a ScanProgress's Phases list.
type PhaseView struct {
	Name     string
	Status   string // PENDING, RUNNING, or COMPLETED
	Progress *float64
}

// ScanProgress is the derived, read-only progress view of one job. The
// manager does not store this; GetProgress computes it fresh from the
// job's Stats/Meta each call.
type ScanProgress struct {
	ScanID      string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Warnings    []types.WarningRecord
	RootPath    string
	Stats       map[string]int64
	Progress    *float64
	ETASeconds  *float64
	Phase       types.Phase
	LastPath    string
	Phases      []PhaseView
}

var phaseOrder = []types.Phase{types.PhaseWalking, types.PhaseAggregating, types.PhaseGrouping}

// projectProgress builds a ScanProgress from a job's current state. The
// caller must hold the manager's lock (or otherwise guarantee job is not
// concurrently mutated) for the duration of this call.
func projectProgress(job *types.ScanJob) ScanProgress {
	stats := job.Stats
	phase := types.Phase(job.Meta["phase"])
	lastPath := job.Meta["last_path"]

	walkingRatio := ratio(stats["folders_scanned"], maxInt64(stats["folders_discovered"], 1))

	var aggregatingRatio, groupingRatio float64
	if total := stats["total_folders"]; total > 0 {
		aggregatingRatio = ratio(stats["folders_aggregated"], total)
	} else if phase == types.PhaseGrouping || job.Status == types.Completed {
		aggregatingRatio = 1
	}
	if total := stats["similarity_pairs_total"]; total > 0 {
		groupingRatio = ratio(stats["similarity_pairs_processed"], total)
	} else if job.Status == types.Completed {
		groupingRatio = 1
	}

	overall := 0.4*walkingRatio + 0.3*aggregatingRatio + 0.3*groupingRatio

	var progressPtr *float64
	switch job.Status {
	case types.Running:
		overall = clamp(overall, 0.05, 0.99)
		progressPtr = &overall
	case types.Completed:
		v := 1.0
		progressPtr = &v
	default:
		progressPtr = &overall
	}

	var etaPtr *float64
	if job.Status == types.Running {
		elapsed := time.Since(job.StartedAt).Seconds()
		scanned := stats["folders_scanned"]
		if elapsed > 0 && scanned > 0 {
			rate := float64(scanned) / elapsed
			if rate > 0 {
				remaining := float64(stats["folders_discovered"] - scanned)
				if remaining < 0 {
					remaining = 0
				}
				eta := remaining / rate
				etaPtr = &eta
			}
		}
	}

	var completedAt *time.Time
	if !job.CompletedAt.IsZero() {
		ts := job.CompletedAt
		completedAt = &ts
	}

	phases := make([]PhaseView, 0, len(phaseOrder))
	seenCurrent := false
	for _, p := range phaseOrder {
		view := PhaseView{Name: string(p)}
		switch {
		case job.Status == types.Completed:
			view.Status = "COMPLETED"
			full := 1.0
			view.Progress = &full
		case phase == types.PhaseNone:
			view.Status = "PENDING"
		case p == phase:
			seenCurrent = true
			view.Status = "RUNNING"
			r := phaseRatio(p, walkingRatio, aggregatingRatio, groupingRatio)
			view.Progress = &r
		case !seenCurrent:
			view.Status = "COMPLETED"
			full := 1.0
			view.Progress = &full
		default:
			view.Status = "PENDING"
		}
		phases = append(phases, view)
	}

	return ScanProgress{
		ScanID:      job.ID,
		Status:      job.Status.String(),
		StartedAt:   job.StartedAt,
		CompletedAt: completedAt,
		Warnings:    job.Warnings,
		RootPath:    job.Request.RootPath,
		Stats:       cloneStats(stats),
		Progress:    progressPtr,
		ETASeconds:  etaPtr,
		Phase:       phase,
		LastPath:    lastPath,
		Phases:      phases,
	}
}

func phaseRatio(p types.Phase, walking, aggregating, grouping float64) float64 {
	switch p {
	case types.PhaseWalking:
		return walking
	case types.PhaseAggregating:
		return aggregating
	case types.PhaseGrouping:
		return grouping
	default:
		return 0
	}
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func cloneStats(s map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
