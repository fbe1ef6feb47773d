// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ring

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionZeroTarget(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()

	ranges := []TokenRange{NewTokenRange(0, 10), NewTokenRange(20, 30)}
	tasks, err := p.Partition(ranges, big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, [][]TokenRange{
		{NewTokenRange(0, 10)},
		{NewTokenRange(20, 30)},
	}, tasks)
}

func TestPartitionSplitMode(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()

	tasks, err := p.Partition([]TokenRange{NewTokenRange(0, 10)}, big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, [][]TokenRange{
		{NewTokenRange(0, 3)},
		{NewTokenRange(3, 6)},
		{NewTokenRange(6, 9)},
		{NewTokenRange(9, 10)},
	}, tasks)
}

func TestPartitionSplitAcrossRingBoundary(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()

	target := new(big.Int).Lsh(big.NewInt(1), 63) // FULL_RANGE / 2
	tasks, err := p.Partition([]TokenRange{NewTokenRange(5, -5)}, target)
	require.NoError(t, err)
	require.Equal(t, [][]TokenRange{
		{NewTokenRange(5, math.MinInt64+5)},
		{NewTokenRange(math.MinInt64+5, -5)},
	}, tasks)
}

func TestPartitionCombineMode(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()

	ranges := []TokenRange{NewTokenRange(0, 3), NewTokenRange(3, 6), NewTokenRange(6, 8)}
	tasks, err := p.Partition(ranges, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, [][]TokenRange{
		{NewTokenRange(0, 3)},
		{NewTokenRange(3, 6), NewTokenRange(6, 8)},
	}, tasks)
}

func TestPartitionCombineFitsInOneTask(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()

	ranges := []TokenRange{NewTokenRange(0, 2), NewTokenRange(2, 4), NewTokenRange(4, 6)}
	tasks, err := p.Partition(ranges, big.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, [][]TokenRange{ranges}, tasks)
}

func TestPartitionEmptyInput(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()

	tasks, err := p.Partition(nil, big.NewInt(10))
	require.NoError(t, err)
	require.Nil(t, tasks)
}

// TestPartitionSizeInvariant is P1/P2: every mode's output sub-ranges
// must sum to exactly the input ranges' total size, for every mode.
func TestPartitionSizeInvariant(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()

	cases := []struct {
		name   string
		ranges []TokenRange
		target *big.Int
	}{
		{"zero target", []TokenRange{NewTokenRange(0, 7), NewTokenRange(100, 150)}, big.NewInt(0)},
		{"split mode", []TokenRange{NewTokenRange(0, 17)}, big.NewInt(4)},
		{"combine mode", []TokenRange{NewTokenRange(0, 3), NewTokenRange(3, 5), NewTokenRange(5, 6)}, big.NewInt(4)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var want big.Int
			for _, r := range tc.ranges {
				want.Add(&want, r.Size())
			}

			tasks, err := p.Partition(tc.ranges, tc.target)
			require.NoError(t, err)

			var got big.Int
			for _, task := range tasks {
				for _, r := range task {
					got.Add(&got, r.Size())
				}
			}
			require.Equal(t, 0, want.Cmp(&got))
		})
	}
}

// TestPartitionCombineNeverExceedsTarget is P3: no combine-mode task's
// accumulated size exceeds tokensPerTask unless it consists of a single
// range that was already larger than the target on its own.
func TestPartitionCombineNeverExceedsTarget(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()
	target := big.NewInt(10)

	ranges := []TokenRange{
		NewTokenRange(0, 4), NewTokenRange(4, 8), NewTokenRange(8, 9),
		NewTokenRange(9, 12), NewTokenRange(12, 13),
	}
	tasks, err := p.Partition(ranges, target)
	require.NoError(t, err)

	for _, task := range tasks {
		var sum big.Int
		for _, r := range task {
			sum.Add(&sum, r.Size())
		}
		if len(task) > 1 {
			require.True(t, sum.Cmp(target) <= 0, "combined task %v exceeds target", task)
		}
	}
}

// TestPartitionSplitProducesContiguousChain is P4: split-mode sub-ranges
// for one input range chain end-to-start back to the original bounds.
func TestPartitionSplitProducesContiguousChain(t *testing.T) {
	t.Parallel()
	p := NewRangePartitioner()

	r := NewTokenRange(0, 23)
	tasks, err := p.Partition([]TokenRange{r}, big.NewInt(5))
	require.NoError(t, err)
	require.Len(t, tasks, 5) // ceil(23/5) = 5

	require.Equal(t, r.Start, tasks[0][0].Start)
	for i := 1; i < len(tasks); i++ {
		require.Equal(t, tasks[i-1][0].End, tasks[i][0].Start)
	}
	require.Equal(t, r.End, tasks[len(tasks)-1][0].End)
}
