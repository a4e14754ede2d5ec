package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

func newRunnerFixture(t *testing.T) (*EventLoop, *domain.Trade, *domain.Offer) {
	t.Helper()

	loop := NewEventLoop()
	loop.Start()
	t.Cleanup(loop.Stop)

	offer := &domain.Offer{ID: "offer-1"}
	trade := domain.NewTrade(offer, domain.RoleBuyer, domain.InitiatorTaker)
	return loop, trade, offer
}

func TestTaskRunnerRunsTasksInOrder(t *testing.T) {
	t.Parallel()

	loop, trade, offer := newRunnerFixture(t)

	var order []string
	done := make(chan struct{})

	runner := NewTaskRunner(trade, offer, &Services{}, nil, loop,
		func() { close(done) },
		func(taskName, reason string) { t.Errorf("unexpected fault in %s: %s", taskName, reason) },
	)
	runner.AddTasks(
		Task{Name: "first", Run: func(c *TaskContext) {
			order = append(order, "first")
			c.Complete()
		}},
		Task{Name: "second", Run: func(c *TaskContext) {
			order = append(order, "second")
			c.Complete()
		}},
		Task{Name: "third", Run: func(c *TaskContext) {
			order = append(order, "third")
			c.Complete()
		}},
	)
	loop.Post(runner.Run)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not complete")
	}
	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestTaskRunnerShortCircuitsOnFailure(t *testing.T) {
	t.Parallel()

	loop, trade, offer := newRunnerFixture(t)

	var order []string
	fault := make(chan string, 1)

	runner := NewTaskRunner(trade, offer, &Services{}, nil, loop,
		func() { t.Error("pipeline must not complete") },
		func(taskName, reason string) { fault <- taskName + ":" + reason },
	)
	runner.AddTasks(
		Task{Name: "ok", Run: func(c *TaskContext) {
			order = append(order, "ok")
			c.Complete()
		}},
		Task{Name: "failing", Run: func(c *TaskContext) {
			order = append(order, "failing")
			c.Fail("boom")
		}},
		Task{Name: "skipped", Run: func(c *TaskContext) {
			order = append(order, "skipped")
			c.Complete()
		}},
	)
	loop.Post(runner.Run)

	select {
	case got := <-fault:
		require.Equal(t, "failing:boom", got)
	case <-time.After(time.Second):
		t.Fatal("fault continuation not invoked")
	}
	require.Equal(t, []string{"ok", "failing"}, order)
}

func TestTaskRunnerAsyncOutcomeMarshaledOntoLoop(t *testing.T) {
	t.Parallel()

	loop, trade, offer := newRunnerFixture(t)

	done := make(chan struct{})
	runner := NewTaskRunner(trade, offer, &Services{}, nil, loop,
		func() { close(done) },
		func(taskName, reason string) { t.Errorf("unexpected fault: %s", reason) },
	)
	var fetched string
	var applied string
	runner.AddTasks(
		Task{Name: "async_ok", Run: func(c *TaskContext) {
			c.Async(func() error {
				time.Sleep(10 * time.Millisecond)
				fetched = "txid-1"
				return nil
			}, func() error {
				applied = fetched
				return nil
			})
		}},
	)
	loop.Post(runner.Run)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async task did not complete")
	}
	require.Equal(t, "txid-1", applied)
}

func TestTaskRunnerAsyncApplyFailure(t *testing.T) {
	t.Parallel()

	loop, trade, offer := newRunnerFixture(t)

	fault := make(chan string, 1)
	runner := NewTaskRunner(trade, offer, &Services{}, nil, loop,
		func() { t.Error("pipeline must not complete") },
		func(taskName, reason string) { fault <- reason },
	)
	runner.AddTasks(
		Task{Name: "async_apply_fail", Run: func(c *TaskContext) {
			c.Async(func() error { return nil },
				func() error { return errors.New("state rewind") })
		}},
	)
	loop.Post(runner.Run)

	select {
	case got := <-fault:
		require.Equal(t, "state rewind", got)
	case <-time.After(time.Second):
		t.Fatal("fault continuation not invoked")
	}
}

func TestTaskRunnerAsyncFailure(t *testing.T) {
	t.Parallel()

	loop, trade, offer := newRunnerFixture(t)

	fault := make(chan string, 1)
	runner := NewTaskRunner(trade, offer, &Services{}, nil, loop,
		func() { t.Error("pipeline must not complete") },
		func(taskName, reason string) { fault <- reason },
	)
	runner.AddTasks(
		Task{Name: "async_fail", Run: func(c *TaskContext) {
			c.Async(func() error { return errors.New("wallet unavailable") }, nil)
		}},
	)
	loop.Post(runner.Run)

	select {
	case got := <-fault:
		require.Equal(t, "wallet unavailable", got)
	case <-time.After(time.Second):
		t.Fatal("fault continuation not invoked")
	}
}

func TestTaskContextSignalsExactlyOnce(t *testing.T) {
	// not parallel: replaces the package level violation hook
	loop, trade, offer := newRunnerFixture(t)

	violations := make(chan string, 2)
	prev := onContractViolation
	onContractViolation = func(msg string) { violations <- msg }
	t.Cleanup(func() { onContractViolation = prev })

	done := make(chan struct{})
	runner := NewTaskRunner(trade, offer, &Services{}, nil, loop,
		func() { close(done) },
		func(taskName, reason string) { t.Errorf("unexpected fault: %s", reason) },
	)
	runner.AddTasks(
		Task{Name: "double_signal", Run: func(c *TaskContext) {
			c.Complete()
			c.Complete()
			c.Fail("late failure")
		}},
	)
	loop.Post(runner.Run)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not complete")
	}
	// the first signal wins, the two extra ones are programming errors
	require.Len(t, violations, 2)
}
