package types

import (
	"strconv"
	"strings"
)

// MakeIdentity builds the identity string for a file:
//
//	RELATIVE / NAME_SIZE: "<base_posix_path>:<size_int>"
//	RELATIVE / SHA256:    "<base_posix_path>#<sha256_hex>"
//	BAG_OF_FILES / …:     base_posix_path replaced by the basename only
//
// base is already reduced to the right shape (relative path or basename)
// and already lowercased if ForceCaseInsensitive is set; MakeIdentity only
// appends the equality token.
func MakeIdentity(base string, equality EqualityMode, size int64, sha256hex string) string {
	if equality == SHA256 {
		return base + "#" + sha256hex
	}
	return base + ":" + strconv.FormatInt(size, 10)
}

// SplitIdentity separates an identity into its base path and equality
// token, recognizing the two identity shapes: for "#" identities the
// split is on the last "#"; for ":" identities it is on the last ":".
func SplitIdentity(identity string) (base, token string, isHash bool) {
	if i := strings.LastIndexByte(identity, '#'); i >= 0 {
		return identity[:i], identity[i+1:], true
	}
	if i := strings.LastIndexByte(identity, ':'); i >= 0 {
		return identity[:i], identity[i+1:], false
	}
	return identity, "", false
}

// PrefixIdentity rewrites a child identity by prefixing its base path
// with relPrefix (the child folder's path relative to its parent). An
// empty base collapses to the prefix itself.
func PrefixIdentity(identity, relPrefix string) string {
	base, token, isHash := SplitIdentity(identity)
	var newBase string
	switch {
	case base == "":
		newBase = relPrefix
	case relPrefix == "":
		newBase = base
	default:
		newBase = relPrefix + "/" + base
	}
	if isHash {
		return newBase + "#" + token
	}
	return newBase + ":" + token
}
