//go:build unix

package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivoronin/folddog/internal/hashcache"
	"github.com/ivoronin/folddog/internal/jobmanager"
	"github.com/ivoronin/folddog/internal/testtree"
	"github.com/ivoronin/folddog/internal/types"
)

func runScan(t *testing.T, req types.ScanRequest, cachePath string) *types.ScanJob {
	t.Helper()

	cache, err := hashcache.Open(cachePath)
	if err != nil {
		t.Fatalf("hashcache.Open(%q) failed: %v", cachePath, err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	m := jobmanager.NewManager(2, cache)
	job := m.StartScan(req)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		j, ok := m.GetJob(job.ID)
		if !ok {
			t.Fatalf("job %s not found", job.ID)
		}
		if j.Status == types.Completed || j.Status == types.Failed {
			m.Shutdown()
			// Release the cache file's lock so a later scan can reopen it.
			_ = cache.Close()
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish within deadline", job.ID)
	return nil
}

func request(root string) types.ScanRequest {
	return types.ScanRequest{
		RootPath:            root,
		FileEquality:        types.SHA256,
		SimilarityThreshold: 0.8,
		StructurePolicy:     types.Relative,
	}
}

func memberRelPaths(job *types.ScanJob) map[string]bool {
	out := make(map[string]bool)
	for _, groups := range job.Groups {
		for _, g := range groups {
			for _, m := range g.Members {
				out[m.RelativePath] = true
			}
		}
	}
	return out
}

func TestPipelineNameSizeModeIgnoresContent(t *testing.T) {
	root := t.TempDir()
	// Same (relative path, size) multiset, different bytes: equivalent
	// under name-size equality.
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			testtree.File1("left/data.bin", 'L', "2KiB"),
			testtree.File1("right/data.bin", 'R', "2KiB"),
		},
	})

	req := request(root)
	req.FileEquality = types.NameSize
	job := runScan(t, req, "")

	if job.Status != types.Completed {
		t.Fatalf("job status = %v, want Completed", job.Status)
	}
	identical := job.Groups[types.Identical]
	if len(identical) != 1 {
		t.Fatalf("expected 1 IDENTICAL group under name-size mode, got %d", len(identical))
	}

	// The same tree under sha256 must not group: the bytes differ.
	job = runScan(t, request(root), "")
	if n := len(job.Groups[types.Identical]); n != 0 {
		t.Errorf("expected no IDENTICAL groups under sha256 mode, got %d", n)
	}
}

func TestPipelineExcludeDoublestarGlob(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			testtree.File1("a/src/main.c", 'M', "1KiB"),
			testtree.File1("b/src/main.c", 'M', "1KiB"),
			testtree.File1("a/node_modules/dep/x.js", 'X', "1KiB"),
			testtree.File1("b/node_modules/dep/y.js", 'Y', "2KiB"),
		},
	})

	req := request(root)
	req.Exclude = []string{"**/node_modules"}
	job := runScan(t, req, "")

	identical := job.Groups[types.Identical]
	if len(identical) != 1 {
		t.Fatalf("expected a and b to be IDENTICAL once node_modules is excluded, got %d groups", len(identical))
	}
	for p := range memberRelPaths(job) {
		if p == "a/node_modules" || p == "b/node_modules" {
			t.Errorf("excluded folder %s appeared in a group", p)
		}
	}
}

func TestPipelineCaseInsensitiveGroupsMixedCase(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			testtree.File1("one/Report.TXT", 'C', "1KiB"),
			testtree.File1("two/report.txt", 'C', "1KiB"),
		},
	})

	req := request(root)
	req.ForceCaseInsensitive = true
	job := runScan(t, req, "")

	if len(job.Groups[types.Identical]) != 1 {
		t.Fatalf("expected mixed-case folders to group with case folding, got %+v", job.Groups)
	}

	req.ForceCaseInsensitive = false
	job = runScan(t, req, "")
	if n := len(job.Groups[types.Identical]); n != 0 {
		t.Errorf("expected no groups without case folding, got %d", n)
	}
}

func TestPipelineBagOfFilesIgnoresLayout(t *testing.T) {
	root := t.TempDir()
	// Same file under different subdirectory layouts.
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			testtree.File1("flat/song.mp3", 'S', "3KiB"),
			testtree.File1("sorted/album/song.mp3", 'S', "3KiB"),
		},
	})

	req := request(root)
	req.StructurePolicy = types.BagOfFiles
	job := runScan(t, req, "")

	members := memberRelPaths(job)
	if !members["flat"] || !members["sorted"] {
		t.Errorf("expected flat and sorted to group under bag-of-files, got %v", members)
	}

	req.StructurePolicy = types.Relative
	job = runScan(t, req, "")
	members = memberRelPaths(job)
	if members["flat"] && members["sorted"] {
		t.Error("flat and sorted must not group under relative structure policy")
	}
}

func TestPipelineUnreadableFileWarnsAndContinues(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, permission checks are bypassed")
	}

	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			testtree.File1("x/ok.txt", 'O', "1KiB"),
			testtree.File1("y/ok.txt", 'O', "1KiB"),
			testtree.File1("x/secret.txt", 'S', "1KiB"),
		},
	})
	secret := filepath.Join(root, "x", "secret.txt")
	if err := os.Chmod(secret, 0o000); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(secret, 0o644) })

	job := runScan(t, request(root), "")

	if job.Status != types.Completed {
		t.Fatalf("job status = %v, want Completed despite unreadable file", job.Status)
	}
	found := false
	for _, w := range job.Warnings {
		if w.Path == secret && w.Kind == types.Permission {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a PERMISSION warning for %s, got %+v", secret, job.Warnings)
	}

	// The folder still participates with its readable files.
	members := memberRelPaths(job)
	if !members["x"] || !members["y"] {
		t.Errorf("expected x and y to group on their readable files, got %v", members)
	}
}

func TestPipelineHashCacheReusedAcrossScans(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			testtree.File1("p/big.bin", 'B', "64KiB"),
			testtree.File1("q/big.bin", 'B', "64KiB"),
		},
	})
	cachePath := filepath.Join(t.TempDir(), "cache", "hashes.db")

	first := runScan(t, request(root), cachePath)
	if len(first.Groups[types.Identical]) != 1 {
		t.Fatalf("first scan: expected 1 IDENTICAL group, got %+v", first.Groups)
	}

	info, err := os.Stat(cachePath)
	if err != nil {
		t.Fatalf("cache file missing after scan: %v", err)
	}
	if info.Size() == 0 {
		t.Error("cache file is empty after a sha256 scan")
	}

	second := runScan(t, request(root), cachePath)
	if len(second.Groups[types.Identical]) != 1 {
		t.Fatalf("second scan (warm cache): expected 1 IDENTICAL group, got %+v", second.Groups)
	}

	g1 := first.Groups[types.Identical][0]
	g2 := second.Groups[types.Identical][0]
	if g1.GroupID != g2.GroupID {
		t.Errorf("group id not stable across runs: %s vs %s", g1.GroupID, g2.GroupID)
	}
}
