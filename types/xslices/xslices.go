// Package xslices provides the small generic slice helpers used across
// chanshuffle.
package xslices

import (
	"golang.org/x/exp/constraints"
)

// Iota returns a slice of the given length with sequentially increasing
// values, starting with start.
func Iota[T constraints.Integer | constraints.Float](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// Product returns the product of the elements of the slice. It returns 1 for
// an empty slice.
func Product[T constraints.Integer](values []T) (product T) {
	product = 1
	for _, v := range values {
		product *= v
	}
	return
}

// FillSlice fills the slice with the given value.
func FillSlice[T any](slice []T, value T) {
	// Fastest way is doubling copies.
	if len(slice) == 0 {
		return
	}
	slice[0] = value
	for filled := 1; filled < len(slice); filled *= 2 {
		copy(slice[filled:], slice[:filled])
	}
}

// Map executes the given function sequentially for every element of in, and
// returns the mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
