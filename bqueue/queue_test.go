package bqueue

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueSingleThread(t *testing.T) {
	q := New[int](4)

	require.True(t, q.TryPush(10))
	v, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, 10, v)
	_, ok = q.TryPop()
	require.False(t, ok)

	require.True(t, q.TryPush(11))
	require.True(t, q.TryPush(12))
	require.True(t, q.TryPush(13))
	for _, want := range []int{11, 12, 13} {
		v, ok = q.TryPop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok = q.TryPop()
	require.False(t, ok)
}

func TestQueueFullReturnsFalse(t *testing.T) {
	q := New[int](2)
	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	require.False(t, q.TryPush(3))
	require.False(t, q.IsEmpty())

	v, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.True(t, q.TryPush(3))
}

// TestQueueSaturation mirrors spec.md scenario 5 and bqueue.rs's
// test_multithread_mc: two producers push 100,000 and 900,000 values, two
// consumers pop 50,000 and 950,000, and the union recovers exactly 0..1e6.
func TestQueueSaturation(t *testing.T) {
	const total = 1_000_000
	q := New[int](total)

	var wg sync.WaitGroup
	wg.Add(4)

	var mu1, mu2 sync.Mutex
	var got1, got2 []int

	go func() {
		defer wg.Done()
		elements := make([]int, 0, 50_000)
		for i := 0; i < 50_000; i++ {
			for {
				if v, ok := q.TryPop(); ok {
					elements = append(elements, v)
					break
				}
			}
		}
		mu1.Lock()
		got1 = elements
		mu1.Unlock()
	}()

	go func() {
		defer wg.Done()
		elements := make([]int, 0, 950_000)
		for i := 0; i < 950_000; i++ {
			for {
				if v, ok := q.TryPop(); ok {
					elements = append(elements, v)
					break
				}
			}
		}
		mu2.Lock()
		got2 = elements
		mu2.Unlock()
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100_000; i++ {
			for !q.TryPush(i) {
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 100_000; i < total; i++ {
			for !q.TryPush(i) {
			}
		}
	}()

	wg.Wait()

	all := append(got1, got2...)
	require.Len(t, all, total)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v)
	}
}
