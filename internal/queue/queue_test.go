package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueue_PushPop(t *testing.T) {
	q := New[string]()

	require.True(t, q.Push("a"), "push should succeed")

	got, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "a", got)
}

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Push(i)
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueue_TryPopEmpty(t *testing.T) {
	q := New[int]()
	_, ok := q.TryPop()
	assert.False(t, ok, "pop from empty queue should return false")
}

func TestQueue_WaitSignalsPush(t *testing.T) {
	q := New[int]()
	done := make(chan int)

	go func() {
		<-q.Wait()
		v, _ := q.TryPop()
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(7)

	select {
	case v := <-done:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("wait did not fire")
	}
}

func TestQueue_CloseWakesWaiter(t *testing.T) {
	q := New[int]()
	done := make(chan struct{})

	go func() {
		<-q.Wait()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not wake waiter")
	}
	assert.True(t, q.Closed())
}

func TestQueue_PushAfterClose(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Push(2), "push after close should return false")

	v, ok := q.TryPop()
	require.True(t, ok, "items queued before close stay available")
	assert.Equal(t, 1, v)
}

func TestQueue_Len(t *testing.T) {
	q := New[int]()
	assert.Equal(t, 0, q.Len())

	q.Push(1)
	q.Push(2)
	assert.Equal(t, 2, q.Len())

	q.TryPop()
	assert.Equal(t, 1, q.Len())
	q.TryPop()
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base + i)
			}
		}(p * 1000)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		seen[v] = true
	}
	assert.Len(t, seen, producers*perProducer)
}
