package util

import "golang.org/x/exp/constraints"

func ShiftLeft[T any, I constraints.Integer](slice []T, from I, to I) {
	copy(slice[from-1:to-1], slice[from:to])
	if from != to {
		slice[to-1] = *new(T)
	}
}

func ShiftRight[T any, I constraints.Integer](slice []T, from I, to I) {
	copy(slice[from+1:to+1], slice[from:to])
	if from != to {
		slice[from] = *new(T)
	}
}
