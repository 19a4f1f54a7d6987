package util

import "golang.org/x/exp/constraints"

// Max is used by bptree.minOccupancy to floor a page's minimum occupancy at
// 1 regardless of its max size.
func Max[T constraints.Ordered](a T, b T) T {
	if a >= b {
		return a
	} else {
		return b
	}
}
