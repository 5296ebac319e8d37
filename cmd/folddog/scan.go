package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivoronin/folddog/internal/hashcache"
	"github.com/ivoronin/folddog/internal/jobmanager"
	"github.com/ivoronin/folddog/internal/progress"
	"github.com/ivoronin/folddog/internal/types"
)

const pollInterval = 100 * time.Millisecond

// scanOptions holds CLI flags for the scan command.
type scanOptions struct {
	includes        []string
	excludes        []string
	equality        string
	threshold       float64
	caseInsensitive bool
	bagOfFiles      bool
	workers         int
	noProgress      bool
	cacheFile       string
	label           string
}

// newScanCmd creates the scan subcommand.
func newScanCmd() *cobra.Command {
	opts := &scanOptions{
		equality:  "sha256",
		threshold: 0.8,
	}

	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "Scan a directory tree for duplicate folders",
		Long: `Walks the tree under <root>, fingerprints every folder by its recursive
file contents, and clusters similar folders into labeled groups, largest
reclaimable size first.

With --equality name-size, files are compared by relative path and size
only; no bytes are read. The default sha256 mode hashes file contents
(cached across runs via --cache-file).`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runScan(args[0], opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude (relative to root, ** supported)")
	cmd.Flags().StringSliceVarP(&opts.includes, "include", "i", nil, "Glob patterns files must match to be counted")
	cmd.Flags().StringVar(&opts.equality, "equality", opts.equality, "File equality mode: name-size or sha256")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", opts.threshold, "Similarity threshold in [0,1]")
	cmd.Flags().BoolVar(&opts.caseInsensitive, "case-insensitive", false, "Lowercase paths before comparing")
	cmd.Flags().BoolVar(&opts.bagOfFiles, "bag-of-files", false, "Key files by basename (subfolder paths still count in recursive fingerprints)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Number of parallel workers (default min(32, 2*cpus))")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to hash cache file (enables caching)")
	cmd.Flags().StringVar(&opts.label, "label", "", "Only print groups with this label (IDENTICAL, NEAR_DUPLICATE, PARTIAL_OVERLAP)")

	return cmd
}

// runScan drives one scan job to completion and prints the kept groups.
func runScan(root string, opts *scanOptions) error {
	if err := validateGlobPatterns(opts.excludes); err != nil {
		return fmt.Errorf("invalid --exclude: %w", err)
	}
	if err := validateGlobPatterns(opts.includes); err != nil {
		return fmt.Errorf("invalid --include: %w", err)
	}
	equality, err := parseEquality(opts.equality)
	if err != nil {
		return fmt.Errorf("invalid --equality: %w", err)
	}
	label, err := parseLabel(opts.label)
	if err != nil {
		return fmt.Errorf("invalid --label: %w", err)
	}
	if opts.threshold < 0 || opts.threshold > 1 {
		return fmt.Errorf("invalid --threshold: %v is outside [0,1]", opts.threshold)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path is not a directory: %s", root)
	}

	policy := types.Relative
	if opts.bagOfFiles {
		policy = types.BagOfFiles
	}

	hashCache, err := hashcache.Open(opts.cacheFile)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = hashCache.Close() }()

	mgr := jobmanager.NewManager(1, hashCache)
	job := mgr.StartScan(types.ScanRequest{
		RootPath:             root,
		Include:              opts.includes,
		Exclude:              opts.excludes,
		FileEquality:         equality,
		SimilarityThreshold:  opts.threshold,
		ForceCaseInsensitive: opts.caseInsensitive,
		StructurePolicy:      policy,
		Concurrency:          opts.workers,
	})

	bar := progress.New(!opts.noProgress)
	for {
		j, ok := mgr.GetJob(job.ID)
		if !ok {
			return fmt.Errorf("job %s disappeared from registry", job.ID)
		}
		if j.Status == types.Completed || j.Status == types.Failed {
			break
		}
		if view, ok := mgr.GetProgress(job.ID); ok {
			if view.Progress != nil {
				bar.SetFraction(*view.Progress)
			}
			bar.Describe(progressLine{view})
		}
		time.Sleep(pollInterval)
	}
	mgr.Shutdown()

	done, _ := mgr.GetJob(job.ID)
	for _, w := range done.Warnings {
		fmt.Fprintf(os.Stderr, "\r\033[Kwarning: %s: %s: %s\n", w.Kind, w.Path, w.Message)
	}
	if done.Status == types.Failed {
		return fmt.Errorf("scan failed: %w", done.Err)
	}

	groups, err := mgr.GetGroups(job.ID, label)
	if err != nil {
		return err
	}
	bar.Finish(scanSummary{job: done, groups: groups})

	printGroups(groups)
	return nil
}

// progressLine renders one line of live progress for the current phase.
type progressLine struct {
	view jobmanager.ScanProgress
}

func (p progressLine) String() string {
	stats := p.view.Stats
	switch p.view.Phase {
	case types.PhaseWalking:
		return fmt.Sprintf("walking: %s/%s folders, %s files (%s)",
			humanize.Comma(stats["folders_scanned"]),
			humanize.Comma(stats["folders_discovered"]),
			humanize.Comma(stats["files_scanned"]),
			humanize.IBytes(uint64(stats["bytes_scanned"])))
	case types.PhaseAggregating:
		return fmt.Sprintf("aggregating: %s/%s folders",
			humanize.Comma(stats["folders_aggregated"]),
			humanize.Comma(stats["total_folders"]))
	case types.PhaseGrouping:
		return fmt.Sprintf("grouping: %s/%s pairs",
			humanize.Comma(stats["similarity_pairs_processed"]),
			humanize.Comma(stats["similarity_pairs_total"]))
	default:
		return "starting"
	}
}

// scanSummary renders the final line printed when the bar finishes.
type scanSummary struct {
	job    *types.ScanJob
	groups []types.GroupRecord
}

func (s scanSummary) String() string {
	var reclaimable int64
	for _, g := range s.groups {
		reclaimable += reclaimableBytes(g)
	}
	elapsed := s.job.CompletedAt.Sub(s.job.StartedAt).Round(time.Millisecond)
	return fmt.Sprintf("%d groups, %s reclaimable in %s",
		len(s.groups), humanize.IBytes(uint64(reclaimable)), elapsed)
}

// reclaimableBytes is the total size of a group's members minus its
// largest member (the copy that would be kept).
func reclaimableBytes(g types.GroupRecord) int64 {
	var total, largest int64
	for _, m := range g.Members {
		total += m.TotalBytes
		if m.TotalBytes > largest {
			largest = m.TotalBytes
		}
	}
	return total - largest
}

// printGroups writes groups to stdout, largest reclaimable size first.
func printGroups(groups []types.GroupRecord) {
	sort.SliceStable(groups, func(i, j int) bool {
		return reclaimableBytes(groups[i]) > reclaimableBytes(groups[j])
	})

	for _, g := range groups {
		fmt.Printf("%s %s: %d folders, %s reclaimable\n",
			g.GroupID, g.Label, len(g.Members), humanize.IBytes(uint64(reclaimableBytes(g))))
		for _, m := range g.Members {
			marker := " "
			if m.Path == g.CanonicalPath {
				marker = "*"
			}
			fmt.Printf("  %s %s (%s, %d files)\n",
				marker, m.Path, humanize.IBytes(uint64(m.TotalBytes)), m.FileCount)
		}
		for _, d := range g.Divergences {
			fmt.Printf("    Δ %s: %s\n", d.PathA, humanize.IBytes(uint64(d.DeltaBytes)))
		}
	}
}
