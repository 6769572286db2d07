package stagemetrics

import (
	"cmp"
	"strconv"
	"strings"
)

// NodeID identifies a node within an execution graph. IDs are chronological: a lower ID denotes an
// earlier event. Hosts typically issue decimal integers, but any string is accepted.
type NodeID string

func (i NodeID) String() string {
	return string(i)
}

// Compare returns -1, 0 or +1 depending on whether i sorts before, equal to or after other. IDs
// which parse as base-10 integers compare numerically and sort before all other IDs, which compare
// lexicographically among themselves. Numerically equal spellings fall back to
// lexicographic order. The result is a total order over any mix of IDs.
func (i NodeID) Compare(other NodeID) int {
	a, aErr := strconv.ParseInt(string(i), 10, 64)
	b, bErr := strconv.ParseInt(string(other), 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		if c := cmp.Compare(a, b); c != 0 {
			return c
		}
		// "7" and "007" are distinct IDs.
		return strings.Compare(string(i), string(other))
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(string(i), string(other))
	}
}

// Less reports whether i sorts strictly before other.
func (i NodeID) Less(other NodeID) bool {
	return i.Compare(other) < 0
}
