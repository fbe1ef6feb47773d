// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ring implements token arithmetic and range partitioning for a
// signed 64-bit token ring, the kind used to assign token ownership across
// nodes in a partitioned wide-column store.
package ring

import (
	"math"
	"math/big"

	"github.com/zeebo/errs"
)

// Error is the error class for this package.
var Error = errs.Class("ring error")

// ErrOutOfRing is returned by WrapToInt64 when a value lies further than
// one full rotation outside [MinInt64, MaxInt64].
var ErrOutOfRing = Error.New("value out of ring")

var (
	minInt64  = big.NewInt(math.MinInt64)
	maxInt64  = big.NewInt(math.MaxInt64)
	fullRange = new(big.Int).Lsh(big.NewInt(1), 64) // 2^64
)

// TokenRange is a half-open interval [Start, End) on the signed 64-bit
// ring. Start == End denotes a full ring.
type TokenRange struct {
	Start int64
	End   int64
}

// NewTokenRange constructs a TokenRange.
func NewTokenRange(start, end int64) TokenRange {
	return TokenRange{Start: start, End: end}
}

// Size returns the number of tokens covered by the range, handling
// wrap-around through MinInt64 per spec: non-wrapping ranges are
// End-Start; wrapping (or full-ring, Start == End) ranges are
// FullRange - (Start - End).
func (r TokenRange) Size() *big.Int {
	start := big.NewInt(r.Start)
	end := big.NewInt(r.End)
	if r.Start < r.End {
		return new(big.Int).Sub(end, start)
	}
	diff := new(big.Int).Sub(start, end)
	return new(big.Int).Sub(fullRange, diff)
}

// Valid reports whether the range's size lies in [1, FullRange].
func (r TokenRange) Valid() bool {
	size := r.Size()
	return size.Sign() > 0 && size.Cmp(fullRange) <= 0
}

// TokenRing exposes ring-wide arithmetic: the total token count, a
// range's size as an arbitrary-precision integer, and the reduction of a
// big integer offset back into the signed 64-bit ring.
type TokenRing struct{}

// NewTokenRing constructs a TokenRing. The ring carries no state of its
// own; it exists as a small namespace for ring-wide arithmetic so callers
// don't reach for free functions that silently assume FullRange.
func NewTokenRing() TokenRing {
	return TokenRing{}
}

// FullRangeSize returns the total number of tokens on the ring, 2^64.
func (TokenRing) FullRangeSize() *big.Int {
	return new(big.Int).Set(fullRange)
}

// RangeSize returns r's size as an arbitrary-precision integer.
func (TokenRing) RangeSize(r TokenRange) *big.Int {
	return r.Size()
}

// WrapToInt64 reduces a big integer that may have exceeded MaxInt64 by at
// most FullRange back into [MinInt64, MaxInt64]. Values already in range
// pass through unchanged. It fails with ErrOutOfRing when v lies further
// than one full rotation outside the range; per spec.md this should never
// happen given valid inputs, but is asserted rather than assumed.
func (TokenRing) WrapToInt64(v *big.Int) (int64, error) {
	if v.Cmp(minInt64) >= 0 && v.Cmp(maxInt64) <= 0 {
		return v.Int64(), nil
	}

	wrapped := new(big.Int).Sub(v, fullRange)
	if wrapped.Cmp(minInt64) >= 0 && wrapped.Cmp(maxInt64) <= 0 {
		return wrapped.Int64(), nil
	}

	return 0, ErrOutOfRing
}
