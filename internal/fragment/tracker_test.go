package fragment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func assertSortedDisjoint(t *testing.T, n *Node) {
	t.Helper()
	ranges := n.Ranges()
	var sum uint64
	for i, r := range ranges {
		require.Greater(t, r.Length, uint64(0))
		sum += r.Length
		if i > 0 {
			require.Less(t, ranges[i-1].end(), r.Offset)
		}
	}
	require.Equal(t, sum, n.CoveredSum())
}

func TestAddRangeSortedDisjointAndSum(t *testing.T) {
	tr := New()
	n := tr.Add("f", 100, nil, 1)

	AddRange(n, 50, 10)
	AddRange(n, 0, 8)
	AddRange(n, 8, 4) // touches [0,8)
	AddRange(n, 70, 5)
	AddRange(n, 60, 15) // touches [50,60), fills the [60,70) gap and covers [70,75)
	assertSortedDisjoint(t, n)
}

func TestAddRangeIdempotent(t *testing.T) {
	tr := New()
	n := tr.Add("f", 100, nil, 1)
	AddRange(n, 10, 20)
	before := n.Ranges()
	beforeSum := n.CoveredSum()
	AddRange(n, 10, 20)
	require.Equal(t, before, n.Ranges())
	require.Equal(t, beforeSum, n.CoveredSum())
}

func TestIsCompletePermutationInvariant(t *testing.T) {
	perms := [][]Range{
		{{Offset: 0, Length: 4}, {Offset: 4, Length: 4}, {Offset: 8, Length: 4}},
		{{Offset: 4, Length: 4}, {Offset: 0, Length: 4}, {Offset: 8, Length: 4}},
		{{Offset: 8, Length: 4}, {Offset: 4, Length: 4}, {Offset: 0, Length: 4}},
	}
	for _, perm := range perms {
		tr := New()
		n := tr.Add("f", 12, nil, 1)
		for _, r := range perm {
			AddRange(n, r.Offset, r.Length)
		}
		require.True(t, IsComplete(n), "perm %v should complete", perm)
	}
}

func TestRangeExists(t *testing.T) {
	tr := New()
	n := tr.Add("f", 100, nil, 1)
	AddRange(n, 10, 10) // [10,20)

	require.True(t, RangeExists(n, 15, 1))
	require.True(t, RangeExists(n, 5, 10)) // overlaps start
	require.True(t, RangeExists(n, 19, 5)) // overlaps end
	require.False(t, RangeExists(n, 20, 5))
	require.False(t, RangeExists(n, 0, 10))
}

func TestLockCountBlocksCompletion(t *testing.T) {
	tr := New()
	n := tr.Add("f", 4, nil, 2)
	AddRange(n, 0, 4)
	require.False(t, IsComplete(n))
	UnlockNode(n)
	require.True(t, IsComplete(n))
}

func TestZeroSizeAlwaysComplete(t *testing.T) {
	tr := New()
	n := tr.Add("dir", 0, nil, 1)
	require.True(t, IsComplete(n))
}

func TestDiscardRemovesNode(t *testing.T) {
	tr := New()
	n := tr.Add("f", 4, nil, 1)
	AddRange(n, 0, 4)
	tr.Lock()
	if IsComplete(n) {
		tr.Discard(n)
	}
	tr.Unlock()
	require.Equal(t, 0, tr.Len())
}
