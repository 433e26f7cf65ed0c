package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFOOrderAndClose(t *testing.T) {
	q := New[int](4)
	done := make(chan struct{})
	var got []int

	go func() {
		for {
			v, ok := q.Get()
			if !ok {
				close(done)
				return
			}
			got = append(got, v)
		}
	}()

	for i := 0; i < 10; i++ {
		require.True(t, q.Put(i))
	}
	q.Close()
	<-done

	require.Len(t, got, 10)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestPutAfterCloseFails(t *testing.T) {
	q := New[int](1)
	q.Close()
	require.False(t, q.Put(1))
}

func TestTryGetNonBlocking(t *testing.T) {
	q := New[string](2)
	_, ok := q.TryGet()
	require.False(t, ok)

	q.Put("x")
	v, ok := q.TryGet()
	require.True(t, ok)
	require.Equal(t, "x", v)
}

func TestUnboundedCapacity(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 1000; i++ {
		require.True(t, q.Put(i))
	}
	require.Equal(t, 1000, q.Len())
}
