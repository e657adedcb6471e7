// Package xnum collects the small numeric helpers shared by the
// admission and config subsystems: rounding a requested footprint up
// to a power of two (and testing one), computing a frame count from a
// byte count, and the ordinary min/max/clamp trio.
package xnum

import "golang.org/x/exp/constraints"

// Clamp restricts v to the closed interval [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Min returns the smaller of a and b.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// RoundUpPow2 returns the smallest power of two that is >= v. Values
// <= 1 round up to 1.
func RoundUpPow2[T constraints.Integer](v T) T {
	if v <= 1 {
		return 1
	}
	v--
	var p T = 1
	for p <= v {
		p <<= 1
	}
	return p
}

// CeilDiv performs integer division rounding away from zero toward
// positive infinity, i.e. the number of fixed-size b-byte frames
// needed to hold a bytes.
func CeilDiv[T constraints.Integer](a, b T) T {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// IsPow2 reports whether v is an exact power of two. Non-positive values
// are never powers of two.
func IsPow2[T constraints.Integer](v T) bool {
	if v <= 0 {
		return false
	}
	return v&(v-1) == 0
}
