package loop

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngressQueue_FIFO(t *testing.T) {
	q := newIngressQueue()
	for _, name := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(task{name: name}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.name)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestIngressQueue_SignalCoalesces(t *testing.T) {
	q := newIngressQueue()
	q.Enqueue(task{name: "a"})
	q.Enqueue(task{name: "b"})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
}

func TestIngressQueue_ClosedRejectsPosts(t *testing.T) {
	q := newIngressQueue()
	q.Close()
	assert.False(t, q.Enqueue(task{name: "late"}))
	assert.Equal(t, 0, q.Len())
}

func TestIngressQueue_ConcurrentEnqueue(t *testing.T) {
	q := newIngressQueue()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(task{name: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
