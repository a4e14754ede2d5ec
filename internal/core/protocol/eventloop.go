package protocol

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

const eventQueueMaxSize = 100

// EventLoop is the single logical event queue all protocol logic runs on:
// message dispatch, task completions, timer expiry and UI-triggered events.
// Funneling everything through one goroutine is what guarantees at most one
// pipeline per trade without explicit locks.
type EventLoop struct {
	mu    sync.Mutex
	queue []func()

	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	stopped sync.Once
}

// NewEventLoop returns a stopped event loop. Use Start and Stop to manage it.
func NewEventLoop() *EventLoop {
	return &EventLoop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start spawns the consumer goroutine.
func (l *EventLoop) Start() {
	l.once.Do(func() {
		go l.run()
	})
}

// Stop drains pending events and stops the consumer. Events posted after
// Stop are dropped.
func (l *EventLoop) Stop() {
	l.stopped.Do(func() {
		close(l.quit)
		<-l.done
	})
}

// Post enqueues fn for execution on the loop goroutine. It never blocks the
// caller: when the queue is full or the loop is stopped the event is dropped
// with an error log, matching the transport contract that delivery is best
// effort and duplicates are tolerated.
func (l *EventLoop) Post(fn func()) {
	if l.isStopped() {
		log.Error("event loop: event posted after stop, dropped")
		return
	}
	l.mu.Lock()
	if len(l.queue) >= eventQueueMaxSize {
		l.mu.Unlock()
		log.Error("event loop: queue full, event dropped")
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.notify()
}

// MustPost enqueues fn bypassing the queue bound. Pipeline continuations and
// task outcomes go through here: losing one would leave a trade with its
// pipeline marked active forever, so they are never dropped, no matter how
// loaded the queue is.
func (l *EventLoop) MustPost(fn func()) {
	if l.isStopped() {
		log.Error("event loop: event posted after stop, dropped")
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.notify()
}

func (l *EventLoop) isStopped() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

func (l *EventLoop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		l.queue = nil
		return nil, false
	}
	fn := l.queue[0]
	l.queue = l.queue[1:]
	return fn, true
}

func (l *EventLoop) run() {
	defer close(l.done)
	for {
		if fn, ok := l.pop(); ok {
			fn()
			continue
		}
		select {
		case <-l.wake:
		case <-l.quit:
			// drain what was already queued before quitting
			for {
				fn, ok := l.pop()
				if !ok {
					return
				}
				fn()
			}
		}
	}
}
