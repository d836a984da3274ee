package queue

import (
	"sort"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueOrderSingleProducer(t *testing.T) {
	q := New[int](64)
	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.Dequeue()
	require.False(t, ok)
	require.True(t, q.IsEmpty())
}

// TestLFQProducerConsumer: one producer enqueues 0..99999, seven consumers
// dequeue concurrently; the union of consumed values must equal the input
// set exactly once each, the queue must end empty, and every cell except
// the current dummy node must be freed.
func TestLFQProducerConsumer(t *testing.T) {
	const n = 100_000
	const consumers = 7

	q := New[int](DefaultCapacity)

	var wg sync.WaitGroup
	results := make([][]int, consumers)
	done := make(chan struct{})

	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var out []int
			for {
				select {
				case <-done:
					for {
						v, ok := q.Dequeue()
						if !ok {
							results[idx] = out
							return
						}
						out = append(out, v)
					}
				default:
					v, ok := q.Dequeue()
					if ok {
						out = append(out, v)
					}
				}
			}
		}(c)
	}

	for i := 0; i < n; i++ {
		q.Enqueue(i)
	}
	enqueued, _ := q.Counts()
	for enqueued != int64(n) {
		enqueued, _ = q.Counts()
	}

	for {
		_, dequeued := q.Counts()
		if dequeued == int64(n) {
			break
		}
	}
	close(done)
	wg.Wait()

	var all []int
	for _, r := range results {
		all = append(all, r...)
	}
	require.Len(t, all, n)
	sort.Ints(all)
	for i := 0; i < n; i++ {
		require.Equal(t, i, all[i])
	}
	require.True(t, q.IsEmpty())
	require.Equal(t, len(q.cells)-1, q.FreeCells())
}

// TestLinearizability is a gopter property test: any sequence of enqueues
// followed by dequeues on a single goroutine returns exactly that sequence
// in FIFO order.
func TestLinearizability(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("FIFO order is preserved", prop.ForAll(
		func(xs []int) bool {
			q := New[int](DefaultCapacity)
			for _, x := range xs {
				q.Enqueue(x)
			}
			for _, want := range xs {
				got, ok := q.Dequeue()
				if !ok || got != want {
					return false
				}
			}
			_, ok := q.Dequeue()
			return !ok
		},
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}

func TestDebugCounters(t *testing.T) {
	q := New[int](16)
	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	for i := 0; i < 3; i++ {
		q.Dequeue()
	}
	enq, deq := q.Counts()
	require.Equal(t, int64(5), enq)
	require.Equal(t, int64(3), deq)
}
