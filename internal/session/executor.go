package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/metrics"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the callback. It returns false if it already ran or was stopped.
	Stop() bool
}

// Scheduler provides time to the engines. Callbacks scheduled through the
// session's scheduler run on the session executor.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// wallClock is the production Scheduler; callbacks run on timer goroutines.
type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Executor runs submitted tasks one at a time, in submission order, on a
// single goroutine. Every session mutation goes through it.
type Executor struct {
	logger  *log.Logger
	tasks   chan func()
	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
}

// NewExecutor starts the executor goroutine.
func NewExecutor(logger *log.Logger, queueSize int) *Executor {
	if logger == nil {
		panic("Executor: logger cannot be nil")
	}
	if queueSize < 1 {
		queueSize = 1
	}
	e := &Executor{
		logger:  logger,
		tasks:   make(chan func(), queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go_func_utils.SafeGo(logger, e.run)
	return e
}

func (e *Executor) run() {
	defer close(e.stopped)
	for {
		select {
		case fn := <-e.tasks:
			metrics.ExecutorQueueDepth.Dec()
			fn()
		case <-e.done:
			return
		}
	}
}

// Submit queues fn. It blocks while the queue is full and fails once the
// executor is closed.
func (e *Executor) Submit(fn func()) error {
	select {
	case <-e.done:
		return ErrExecutorStopped
	default:
	}
	select {
	case e.tasks <- fn:
		metrics.ExecutorQueueDepth.Inc()
		return nil
	case <-e.done:
		return ErrExecutorStopped
	}
}

// Do runs fn on the executor and waits for its result. It must not be called
// from a task.
func (e *Executor) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if err := e.Submit(func() { result <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrExecutorStopped
	}
}

// Close stops the executor after the running task finishes. Queued tasks
// are discarded.
func (e *Executor) Close() {
	e.closeOnce.Do(func() { close(e.done) })
	<-e.stopped
}

// executorScheduler wraps a clock so that callbacks run as executor tasks.
// Stop takes effect even when the clock already fired and the task is
// queued: the task checks the flag on the executor before running.
type executorScheduler struct {
	clock    Scheduler
	executor *Executor
}

func (s executorScheduler) Now() time.Time { return s.clock.Now() }

func (s executorScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &executorTimer{}
	t.inner = s.clock.AfterFunc(d, func() {
		_ = s.executor.Submit(func() {
			if t.cancelled.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

type executorTimer struct {
	inner     Timer
	cancelled atomic.Bool
}

func (t *executorTimer) Stop() bool {
	t.inner.Stop()
	return t.cancelled.CompareAndSwap(false, true)
}
