// Package suppressor removes groups whose every member is already a
// descendant of some kept group's members, so a grouped pair of parents
// hides the redundant groups formed by their matching subtrees.
package suppressor

import (
	"sort"
	"strings"

	"github.com/ivoronin/folddog/internal/types"
)

// Run filters groups, keeping the shallowest-rooted groups first and
// dropping any later group every one of whose members descends from a
// member of an already-kept group.
func Run(groups []types.GroupRecord) []types.GroupRecord {
	ordered := make([]types.GroupRecord, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := minDepth(ordered[i]), minDepth(ordered[j])
		if di != dj {
			return di < dj
		}
		return ordered[i].CanonicalPath < ordered[j].CanonicalPath
	})

	var kept []types.GroupRecord
	var keptMemberPaths [][]string

	for _, g := range ordered {
		if suppressedBy(g, keptMemberPaths) {
			continue
		}
		kept = append(kept, g)
		keptMemberPaths = append(keptMemberPaths, memberPaths(g))
	}

	return kept
}

// minDepth returns the shallowest member's RelativePath depth in g.
func minDepth(g types.GroupRecord) int {
	min := -1
	for _, m := range g.Members {
		d := m.Depth()
		if min == -1 || d < min {
			min = d
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

func memberPaths(g types.GroupRecord) []string {
	paths := make([]string, len(g.Members))
	for i, m := range g.Members {
		paths[i] = m.Path
	}
	return paths
}

// suppressedBy reports whether some already-kept member-path set
// dominates every member of g: every member of g descends from some
// path in that set.
func suppressedBy(g types.GroupRecord, keptSets [][]string) bool {
	for _, ancestors := range keptSets {
		if allDescend(g, ancestors) {
			return true
		}
	}
	return false
}

func allDescend(g types.GroupRecord, ancestors []string) bool {
	for _, m := range g.Members {
		if !descendsFromAny(m.Path, ancestors) {
			return false
		}
	}
	return true
}

func descendsFromAny(path string, ancestors []string) bool {
	for _, a := range ancestors {
		if isDescendant(a, path) {
			return true
		}
	}
	return false
}

// isDescendant reports whether ancestor is a strict, path-component-
// boundary prefix of path.
func isDescendant(ancestor, path string) bool {
	if len(path) <= len(ancestor) || !strings.HasPrefix(path, ancestor) {
		return false
	}
	return path[len(ancestor)] == '/'
}
