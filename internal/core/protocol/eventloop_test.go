package protocol

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventLoopRunsInOrder(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop()
	loop.Start()

	out := make([]int, 0, 10)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		loop.Post(func() {
			out = append(out, i)
			if i == 9 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events not processed in time")
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, out)
	loop.Stop()
}

func TestEventLoopStopDrainsQueue(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop()

	var counter int32
	for i := 0; i < 5; i++ {
		loop.Post(func() { atomic.AddInt32(&counter, 1) })
	}

	// events posted before the consumer started must still run on stop
	loop.Start()
	loop.Stop()
	require.Equal(t, int32(5), atomic.LoadInt32(&counter))
}

func TestEventLoopMustPostBypassesQueueBound(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop()

	var counter int32
	for i := 0; i < eventQueueMaxSize; i++ {
		loop.Post(func() { atomic.AddInt32(&counter, 1) })
	}
	// the bounded path is full now, a best-effort post is dropped
	loop.Post(func() { atomic.AddInt32(&counter, 1) })
	// a pipeline continuation must survive the same pressure
	loop.MustPost(func() { atomic.AddInt32(&counter, 1) })

	loop.Start()
	loop.Stop()
	require.Equal(t, int32(eventQueueMaxSize+1), atomic.LoadInt32(&counter))
}

func TestEventLoopDropsAfterStop(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop()
	loop.Start()
	loop.Stop()

	var ran int32
	loop.Post(func() { atomic.AddInt32(&ran, 1) })
	require.Equal(t, int32(0), atomic.LoadInt32(&ran))
}
