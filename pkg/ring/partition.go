// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ring

import (
	"math/big"
)

// ErrPartitionInvariant is returned when a split sub-range's sizes don't
// sum to the size of the original range. It is an internal error: it
// must never be silently swallowed, only surfaced to the caller.
var ErrPartitionInvariant = Error.New("partition invariant violated")

// RangePartitioner splits or combines an ordered sequence of token ranges
// into repair units of a target token count.
type RangePartitioner struct {
	ring TokenRing
}

// NewRangePartitioner constructs a RangePartitioner.
func NewRangePartitioner() *RangePartitioner {
	return &RangePartitioner{ring: NewTokenRing()}
}

// Partition splits or combines ranges into tasks, returning an ordered
// slice of task-index -> set-of-ranges (insertion order within a task
// mirrors input order).
//
// Three modes, per spec:
//
//   - tokensPerTask == 0: one task per input range, in input order
//     ("compatibility" mode).
//   - split mode, chosen solely by whether the *first* input range is
//     strictly larger than tokensPerTask: every range is independently
//     split into singleton-task sub-ranges of size tokensPerTask (with a
//     final remainder sub-range).
//   - combine mode otherwise: ranges are packed greedily into tasks up to
//     tokensPerTask each.
//
// The first-range-only decision is a deliberate, preserved design choice:
// callers present ring-ordered vnode ranges of roughly uniform size, so
// the first range is treated as representative of the whole sequence even
// though that can misclassify genuinely heterogeneous inputs.
func (p *RangePartitioner) Partition(ranges []TokenRange, tokensPerTask *big.Int) ([][]TokenRange, error) {
	if tokensPerTask.Sign() == 0 {
		return p.partitionSingleton(ranges)
	}

	if len(ranges) == 0 {
		return nil, nil
	}

	firstSize := p.ring.RangeSize(ranges[0])
	if firstSize.Cmp(tokensPerTask) > 0 {
		return p.partitionSplit(ranges, tokensPerTask)
	}
	return p.partitionCombine(ranges, tokensPerTask)
}

func (p *RangePartitioner) partitionSingleton(ranges []TokenRange) ([][]TokenRange, error) {
	tasks := make([][]TokenRange, len(ranges))
	for i, r := range ranges {
		tasks[i] = []TokenRange{r}
	}
	return tasks, nil
}

func (p *RangePartitioner) partitionSplit(ranges []TokenRange, tokensPerTask *big.Int) ([][]TokenRange, error) {
	var tasks [][]TokenRange
	for _, r := range ranges {
		subs, err := p.splitRange(r, tokensPerTask)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			tasks = append(tasks, []TokenRange{sub})
		}
	}
	return tasks, nil
}

// splitRange splits a single range R=[s,e) of size S into ceil(S/t)
// sub-ranges of size t, with a final remainder sub-range spanning exactly
// to the original end. Endpoints of every sub-range but the last are
// reduced through WrapToInt64; the last sub-range keeps the original end
// verbatim so sizes sum to S exactly even when t doesn't divide S.
func (p *RangePartitioner) splitRange(r TokenRange, t *big.Int) ([]TokenRange, error) {
	size := r.Size()

	n := new(big.Int).Add(size, t)
	n.Sub(n, big.NewInt(1))
	n.Div(n, t) // n = ceil(size/t)

	count := n.Int64()
	if count <= 1 {
		return []TokenRange{r}, nil
	}

	subs := make([]TokenRange, 0, count)
	start := r.Start
	offset := big.NewInt(r.Start)

	for k := int64(0); k < count-1; k++ {
		offset.Add(offset, t)
		end, err := p.ring.WrapToInt64(offset)
		if err != nil {
			return nil, err
		}
		subs = append(subs, TokenRange{Start: start, End: end})
		start = end
	}
	subs = append(subs, TokenRange{Start: start, End: r.End})

	if err := p.checkSizeSum(subs, size); err != nil {
		return nil, err
	}
	return subs, nil
}

func (p *RangePartitioner) partitionCombine(ranges []TokenRange, tokensPerTask *big.Int) ([][]TokenRange, error) {
	var tasks [][]TokenRange
	var current []TokenRange
	accumulated := new(big.Int)

	for _, r := range ranges {
		size := p.ring.RangeSize(r)
		would := new(big.Int).Add(accumulated, size)
		if len(current) > 0 && would.Cmp(tokensPerTask) > 0 {
			tasks = append(tasks, current)
			current = nil
			accumulated = new(big.Int)
		}
		current = append(current, r)
		accumulated.Add(accumulated, size)
	}
	if len(current) > 0 {
		tasks = append(tasks, current)
	}
	return tasks, nil
}

// checkSizeSum verifies that a set of sub-ranges sums to the expected
// total size, surfacing ErrPartitionInvariant rather than letting a
// miscomputed split silently corrupt downstream scheduling.
func (p *RangePartitioner) checkSizeSum(subs []TokenRange, expected *big.Int) error {
	total := new(big.Int)
	for _, s := range subs {
		total.Add(total, s.Size())
	}
	if total.Cmp(expected) != 0 {
		return ErrPartitionInvariant
	}
	return nil
}
