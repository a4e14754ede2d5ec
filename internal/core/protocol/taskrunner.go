package protocol

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// Task is one atomic, named step of a pipeline. It reads and writes the
// trade and its working state through the TaskContext and signals its
// terminal outcome exactly once via Complete or Fail.
type Task struct {
	Name string
	Run  func(c *TaskContext)
}

// onContractViolation is invoked when a task breaks the exactly-once
// signaling contract. That is a programming error, not a protocol failure;
// tests replace this hook to fail loudly.
var onContractViolation = func(msg string) { log.Error(msg) }

// TaskContext is the handover object passed to each task. It carries the
// trade, the working state and the service ports, and owns the one-shot
// success/failure signal.
type TaskContext struct {
	Trade *domain.Trade
	Model *domain.ProcessModel

	Services *Services
	// Offer is the read-only snapshot of the offer the trade is based on.
	Offer *domain.Offer
	// AcceptedResolvers is the snapshot of locally accepted dispute
	// resolvers taken when the pipeline was built.
	AcceptedResolvers []domain.NodeAddress

	loop     *EventLoop
	taskName string
	signaled bool
	report   func(failed bool, reason string)
}

// Complete signals successful termination of the task.
func (c *TaskContext) Complete() {
	if c.signaled {
		onContractViolation(fmt.Sprintf(
			"task %s: duplicate completion signal", c.taskName))
		return
	}
	c.signaled = true
	c.report(false, "")
}

// Fail aborts the pipeline with the given human-readable reason.
func (c *TaskContext) Fail(reason string) {
	if c.signaled {
		onContractViolation(fmt.Sprintf(
			"task %s: completion signal after failure: %s", c.taskName, reason))
		return
	}
	c.signaled = true
	c.report(true, reason)
}

// Failf is Fail with formatting.
func (c *TaskContext) Failf(format string, args ...interface{}) {
	c.Fail(fmt.Sprintf(format, args...))
}

// Async runs fn on a worker goroutine and marshals its outcome back onto
// the event loop before signaling, so tasks performing network or wallet
// I/O never block the event queue. The worker must not touch the trade or
// the working state: fn does the I/O and captures its results, apply runs
// on the loop afterwards and is the only place allowed to mutate. A nil
// apply just completes.
func (c *TaskContext) Async(fn func() error, apply func() error) {
	go func() {
		err := fn()
		c.loop.MustPost(func() {
			if err != nil {
				c.Fail(err.Error())
				return
			}
			if apply != nil {
				if err := apply(); err != nil {
					c.Fail(err.Error())
					return
				}
			}
			c.Complete()
		})
	}()
}

// TaskRunner executes a fixed ordered list of tasks for one protocol event,
// short-circuiting on the first failure. Exactly one of the success or fault
// continuation runs, and prior tasks' side effects are not rolled back:
// tasks are written to be individually safe-to-have-happened.
type TaskRunner struct {
	trade             *domain.Trade
	offer             *domain.Offer
	services          *Services
	acceptedResolvers []domain.NodeAddress
	loop              *EventLoop

	tasks     []Task
	onSuccess func()
	onFault   func(taskName, reason string)
	started   bool
}

// NewTaskRunner builds a runner bound to one trade and one event.
func NewTaskRunner(
	trade *domain.Trade, offer *domain.Offer,
	services *Services, acceptedResolvers []domain.NodeAddress,
	loop *EventLoop,
	onSuccess func(), onFault func(taskName, reason string),
) *TaskRunner {
	return &TaskRunner{
		trade:             trade,
		offer:             offer,
		services:          services,
		acceptedResolvers: acceptedResolvers,
		loop:              loop,
		onSuccess:         onSuccess,
		onFault:           onFault,
	}
}

// AddTasks appends tasks in the exact order they must run. The order encodes
// the protocol's ordering invariants.
func (r *TaskRunner) AddTasks(tasks ...Task) {
	r.tasks = append(r.tasks, tasks...)
}

// Run starts the pipeline. Must be invoked on the event loop.
func (r *TaskRunner) Run() {
	if r.started {
		onContractViolation("task runner started twice")
		return
	}
	r.started = true
	pipelinesStarted.Inc()
	r.runTask(0)
}

func (r *TaskRunner) runTask(i int) {
	if i >= len(r.tasks) {
		pipelinesCompleted.Inc()
		r.onSuccess()
		return
	}

	task := r.tasks[i]
	log.WithFields(log.Fields{
		"trade": r.trade.ID,
		"task":  task.Name,
	}).Debug("running task")

	ctx := &TaskContext{
		Trade:             r.trade,
		Model:             r.trade.ProcessModel(),
		Services:          r.services,
		Offer:             r.offer,
		AcceptedResolvers: r.acceptedResolvers,
		loop:              r.loop,
		taskName:          task.Name,
		report: func(failed bool, reason string) {
			if failed {
				pipelinesFailed.WithLabelValues(task.Name).Inc()
				r.onFault(task.Name, reason)
				return
			}
			// each task completion re-enters the event queue, making the
			// boundary between tasks an explicit suspension point; the
			// continuation must never be lost or the pipeline wedges
			r.loop.MustPost(func() { r.runTask(i + 1) })
		},
	}
	task.Run(ctx)
}
