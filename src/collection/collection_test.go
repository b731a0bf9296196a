package collection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllRespectsWindow(t *testing.T) {
	c := New([]int{1, 2, 3, 4, 5}, 1, 2)
	require.Equal(t, []int{2, 3}, c.All())
}

func TestUnboundedLimitRunsToEnd(t *testing.T) {
	c := New([]int{1, 2, 3, 4, 5}, 2, 0)
	require.Equal(t, []int{3, 4, 5}, c.All())
}

func TestOffsetBeyondSizeYieldsEmpty(t *testing.T) {
	c := New([]int{1, 2, 3}, 10, 2)
	require.Empty(t, c.All())
}

func TestCountAndTotalCount(t *testing.T) {
	c := New([]int{1, 2, 3, 4, 5}, 1, 2)
	require.Equal(t, 2, c.Count())
	require.Equal(t, 5, c.TotalCount())
}

func TestAtIndexesWithinWindow(t *testing.T) {
	c := New([]int{10, 20, 30, 40}, 1, 2)
	v, ok := c.At(0)
	require.True(t, ok)
	require.Equal(t, 20, v)

	_, ok = c.At(5)
	require.False(t, ok)
}

func TestEachStopsEarly(t *testing.T) {
	c := New([]int{1, 2, 3, 4}, 0, 0)
	var seen []int
	c.Each(func(v int) bool {
		seen = append(seen, v)
		return v < 3
	})
	require.Equal(t, []int{1, 2, 3}, seen)
}
