package main

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ivoronin/folddog/internal/types"
)

// validateGlobPatterns checks that all patterns are valid doublestar patterns.
func validateGlobPatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := doublestar.Match(pattern, "a"); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// parseEquality maps the --equality flag value to an EqualityMode.
func parseEquality(s string) (types.EqualityMode, error) {
	switch s {
	case "name-size":
		return types.NameSize, nil
	case "sha256":
		return types.SHA256, nil
	default:
		return 0, fmt.Errorf("unknown equality mode %q (want name-size or sha256)", s)
	}
}

// parseLabel maps the --label flag value to a group label filter.
// An empty value means no filter.
func parseLabel(s string) (*types.Label, error) {
	if s == "" {
		return nil, nil
	}
	for _, l := range []types.Label{types.Identical, types.NearDuplicate, types.PartialOverlap} {
		if l.String() == s {
			label := l
			return &label, nil
		}
	}
	return nil, fmt.Errorf("unknown label %q (want IDENTICAL, NEAR_DUPLICATE or PARTIAL_OVERLAP)", s)
}
