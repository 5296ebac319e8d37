package similarity

import "github.com/ivoronin/folddog/internal/types"

// weightedJaccard computes intersection/union over two weight maps:
// for every key in either map, min(a[k],b[k]) sums
// into the intersection and max(a[k],b[k]) sums into the union. It
// iterates the smaller map first and looks up into the larger one to
// avoid materializing the key union.
func weightedJaccard(a, b types.FileWeights) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}

	var intersection, union int64
	seen := make(map[string]struct{}, len(a))

	for k, av := range a {
		seen[k] = struct{}{}
		bv := b[k]
		if av < bv {
			intersection += av
			union += bv
		} else {
			intersection += bv
			union += av
		}
	}
	for k, bv := range b {
		if _, ok := seen[k]; ok {
			continue
		}
		union += bv
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// isAncestorDescendant reports whether two posix relative paths are in
// an ancestor/descendant relationship: either is ".", or one is a
// strict "/"-boundary prefix of the other.
func isAncestorDescendant(a, b string) bool {
	if a == "." || b == "." {
		return true
	}
	return isPrefixBoundary(a, b) || isPrefixBoundary(b, a)
}

func isPrefixBoundary(prefix, full string) bool {
	if len(full) <= len(prefix) || full[:len(prefix)] != prefix {
		return false
	}
	return full[len(prefix)] == '/'
}
