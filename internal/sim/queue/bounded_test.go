package queue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"actionforge.ai/internal/sim/queue"
)

func TestBounded_RejectsWhenFull(t *testing.T) {
	q := queue.NewBounded[int](3)
	for i := 0; i < 3; i++ {
		require.True(t, q.EnqueueLast(i))
	}
	require.True(t, q.IsFull())
	require.False(t, q.EnqueueLast(99))
	require.False(t, q.EnqueueFirst(99))
	require.False(t, q.EnqueueBefore(99, func(int) bool { return true }))
	require.Equal(t, 3, q.Len())
	require.Equal(t, []int{0, 1, 2}, q.Items())
}

func TestBounded_ClampsCapacity(t *testing.T) {
	q := queue.NewBounded[string](0)
	require.Equal(t, 1, q.Cap())
	require.True(t, q.EnqueueLast("a"))
	require.False(t, q.EnqueueLast("b"))
}

func TestBounded_FrontAndBackOrdering(t *testing.T) {
	q := queue.NewBounded[string](10)
	q.EnqueueLast("b")
	q.EnqueueLast("c")
	q.EnqueueFirst("a")

	head, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, "a", head)

	var got []string
	for {
		v, ok := q.Next()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
	require.True(t, q.IsEmpty())

	_, ok = q.Next()
	require.False(t, ok)
}

func TestBounded_EnqueueBeforeKeepsClassFIFO(t *testing.T) {
	q := queue.NewBounded[string](10)
	isLow := func(s string) bool { return s[0] == 'L' }
	q.EnqueueLast("L1")
	q.EnqueueBefore("H1", isLow)
	q.EnqueueLast("L2")
	q.EnqueueBefore("H2", isLow)
	q.EnqueueBefore("H3", func(string) bool { return false })

	require.Equal(t, []string{"H1", "H2", "L1", "L2", "H3"}, q.Items())
}

func TestBounded_FilterUntilFirstHit(t *testing.T) {
	q := queue.NewBounded[int](10)
	for _, v := range []int{1, 3, 4, 5, 6} {
		q.EnqueueLast(v)
	}
	var visited []int
	hit, ok := q.FilterUntilFirstHit(func(v int) bool {
		visited = append(visited, v)
		return v%2 == 0
	})
	require.True(t, ok)
	require.Equal(t, 4, hit)
	require.Equal(t, []int{1, 3, 4}, visited)
	require.Equal(t, []int{5, 6}, q.Items())

	// Rejected items are gone; they are not re-checked on the next scan.
	visited = nil
	hit, ok = q.FilterUntilFirstHit(func(v int) bool {
		visited = append(visited, v)
		return v == 6
	})
	require.True(t, ok)
	require.Equal(t, 6, hit)
	require.Equal(t, []int{5, 6}, visited)
	require.True(t, q.IsEmpty())
}

func TestBounded_FilterUntilFirstHitDrainsOnMiss(t *testing.T) {
	q := queue.NewBounded[int](10)
	q.EnqueueLast(1)
	q.EnqueueLast(3)
	_, ok := q.FilterUntilFirstHit(func(int) bool { return false })
	require.False(t, ok)
	require.True(t, q.IsEmpty())
}

func TestBounded_ClearAndSlots(t *testing.T) {
	q := queue.NewBounded[int](queue.Unbounded)
	for i := 0; i < 500; i++ {
		require.True(t, q.EnqueueLast(i))
	}
	slots := q.Slots()
	require.Len(t, slots, 500)
	require.False(t, slots[0].Time.IsZero())
	require.False(t, q.IsFull())

	q.Clear()
	require.True(t, q.IsEmpty())
	require.Len(t, slots, 500)
}
