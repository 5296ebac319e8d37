package suppressor

import (
	"testing"

	"github.com/ivoronin/folddog/internal/types"
)

func folder(path, rel string) types.FolderInfo {
	return types.FolderInfo{Path: path, RelativePath: rel}
}

func group(canonical string, members ...types.FolderInfo) types.GroupRecord {
	return types.GroupRecord{CanonicalPath: canonical, Members: members}
}

// =============================================================================
// Section 4.5: Descendant Suppressor
// =============================================================================

func TestRunSuppressesDescendantGroup(t *testing.T) {
	parent := group("/root/X",
		folder("/root/X", "X"),
		folder("/root/Y", "Y"),
	)
	child := group("/root/X/media",
		folder("/root/X/media", "X/media"),
		folder("/root/Y/media", "Y/media"),
	)

	got := Run([]types.GroupRecord{child, parent})

	if len(got) != 1 {
		t.Fatalf("expected 1 surviving group, got %d: %+v", len(got), got)
	}
	if got[0].CanonicalPath != "/root/X" {
		t.Fatalf("expected parent group to survive, got %s", got[0].CanonicalPath)
	}
}

func TestRunKeepsUnrelatedGroups(t *testing.T) {
	a := group("/root/A", folder("/root/A", "A"), folder("/root/B", "B"))
	c := group("/root/C", folder("/root/C", "C"), folder("/root/D", "D"))

	got := Run([]types.GroupRecord{a, c})
	if len(got) != 2 {
		t.Fatalf("expected both unrelated groups to survive, got %d", len(got))
	}
}

func TestRunPartialDescendantNotSuppressed(t *testing.T) {
	// Only one member of the candidate descends from the kept group; it
	// must survive since suppression requires every member to descend.
	parent := group("/root/X", folder("/root/X", "X"), folder("/root/Y", "Y"))
	partial := group("/root/X/sub", folder("/root/X/sub", "X/sub"), folder("/root/Z", "Z"))

	got := Run([]types.GroupRecord{partial, parent})
	if len(got) != 2 {
		t.Fatalf("expected candidate with one non-descending member to survive, got %d: %+v", len(got), got)
	}
}

func TestIsDescendantBoundary(t *testing.T) {
	cases := []struct {
		ancestor, path string
		want           bool
	}{
		{"/root/X", "/root/X/sub", true},
		{"/root/X", "/root/Xother", false}, // not a boundary match
		{"/root/X", "/root/X", false},      // equal, not strict
		{"/root/X", "/root/Y", false},
	}
	for _, c := range cases {
		if got := isDescendant(c.ancestor, c.path); got != c.want {
			t.Errorf("isDescendant(%q, %q) = %v, want %v", c.ancestor, c.path, got, c.want)
		}
	}
}
