package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ivoronin/folddog/internal/hashcache"
	"github.com/ivoronin/folddog/internal/testtree"
	"github.com/ivoronin/folddog/internal/types"
)

func noCache(t *testing.T) *hashcache.Cache {
	t.Helper()
	c, err := hashcache.Open("")
	if err != nil {
		t.Fatalf("hashcache.Open(\"\") failed: %v", err)
	}
	return c
}

func baseRequest(root string) types.ScanRequest {
	return types.ScanRequest{
		RootPath:            root,
		FileEquality:        types.SHA256,
		SimilarityThreshold: 0.8,
		StructurePolicy:     types.Relative,
	}
}

// =============================================================================
// Section 4.2: File Walker
// =============================================================================

func TestWalkBuildsFolderAndFingerprintPerDirectory(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			testtree.File1("a.txt", 'A', "1KiB"),
			testtree.File1("sub/b.txt", 'B', "2KiB"),
		},
	})

	w := New(baseRequest(root), noCache(t))
	res, err := w.Run()
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if _, ok := res.Folders["."]; !ok {
		t.Errorf("expected root folder \".\" in result")
	}
	if _, ok := res.Folders["sub"]; !ok {
		t.Errorf("expected \"sub\" folder in result")
	}

	rootFP := res.Fingerprints["."]
	if rootFP.Folder.FileCount != 1 {
		t.Errorf("root FileCount (pre-aggregation) = %d, want 1", rootFP.Folder.FileCount)
	}
}

func TestWalkFailsOnNonDirectoryRoot(t *testing.T) {
	root := t.TempDir()
	filePath := filepath.Join(root, "notadir")
	if err := os.WriteFile(filePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	w := New(baseRequest(filePath), noCache(t))
	if _, err := w.Run(); err == nil {
		t.Error("Run() on non-directory root: expected error, got nil")
	}
}

func TestWalkExcludeGlobPrunesSubtree(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			testtree.File1("keep/a.txt", 'A', "1KiB"),
			testtree.File1("skip/b.txt", 'B', "1KiB"),
		},
	})

	req := baseRequest(root)
	req.Exclude = []string{"skip"}

	w := New(req, noCache(t))
	res, err := w.Run()
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if _, ok := res.Folders["skip"]; ok {
		t.Error("excluded subtree \"skip\" should not appear in folders")
	}
	if _, ok := res.Folders["keep"]; !ok {
		t.Error("expected \"keep\" folder in result")
	}
}

func TestWalkNameSizeModeNoHashing(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{testtree.File1("a.txt", 'A', "1KiB")},
	})

	req := baseRequest(root)
	req.FileEquality = types.NameSize

	w := New(req, noCache(t))
	res, err := w.Run()
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	for identity := range res.Fingerprints["."].Weights {
		if _, _, isHash := types.SplitIdentity(identity); isHash {
			t.Errorf("identity %q used sha256 under NAME_SIZE mode", identity)
		}
	}
}

func TestWalkBagOfFilesUsesBasenameIdentity(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{testtree.File1("nested/dir/a.txt", 'A', "1KiB")},
	})

	req := baseRequest(root)
	req.StructurePolicy = types.BagOfFiles
	req.FileEquality = types.NameSize

	w := New(req, noCache(t))
	res, err := w.Run()
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	weights := res.Fingerprints["nested/dir"].Weights
	if _, ok := weights["a.txt:1024"]; !ok {
		t.Errorf("expected bag-of-files identity \"a.txt:1024\", got %v", weights)
	}
}

func TestWalkHardlinkCountedOnce(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{
			{Path: []string{"a/data.bin", "b/data.bin"}, Chunks: []testtree.Chunk{{Pattern: 'H', Size: "4KiB"}}},
		},
	})

	w := New(baseRequest(root), noCache(t))
	res, err := w.Run()
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	total := len(res.Fingerprints["a"].Weights) + len(res.Fingerprints["b"].Weights)
	if total != 1 {
		t.Errorf("hardlinked file counted %d times across folders, want 1", total)
	}
}

func TestWalkCaseInsensitiveLowersIdentity(t *testing.T) {
	root := t.TempDir()
	testtree.Build(t, root, testtree.Tree{
		Files: []testtree.File{testtree.File1("Report.TXT", 'A', "1KiB")},
	})

	req := baseRequest(root)
	req.FileEquality = types.NameSize
	req.ForceCaseInsensitive = true

	w := New(req, noCache(t))
	res, err := w.Run()
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	for identity := range res.Fingerprints["."].Weights {
		base, _, _ := types.SplitIdentity(identity)
		if base != "report.txt" {
			t.Errorf("identity base = %q, want lowercased \"report.txt\"", base)
		}
	}
}
