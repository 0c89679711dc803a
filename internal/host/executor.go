package host

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Iron-Ham/mapswitch/internal/logging"
)

var (
	// ErrExecutorStopped is returned by Do when the executor exits before
	// the task ran.
	ErrExecutorStopped = errors.New("executor stopped")
	// ErrTaskPanicked is returned by Do when the task panicked.
	ErrTaskPanicked = errors.New("executor task panicked")
)

type executorKey struct{}

// Task is a unit of work run on the executor goroutine.
type Task func(ctx context.Context)

// Executor runs tasks one at a time, in submission order, on a single
// goroutine. It is the only context allowed to touch the server process and
// its working directory. Tasks receive a context marked so OnExecutor can
// recognise it.
type Executor struct {
	mu      sync.Mutex
	queue   []Task
	wake    chan struct{}
	stopped chan struct{}
	logger  *logging.Logger
}

// NewExecutor creates an idle executor. Call Run to start draining it.
func NewExecutor(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  logger.With("component", "executor"),
	}
}

// OnExecutor reports whether ctx was handed out by an executor.
func OnExecutor(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(executorKey{}).(bool)
	return v
}

// OnExecutor reports whether ctx belongs to the executor goroutine.
func (e *Executor) OnExecutor(ctx context.Context) bool {
	return OnExecutor(ctx)
}

// Schedule appends fn to the queue. It never blocks.
func (e *Executor) Schedule(fn Task) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the executor and waits for it. Called from the executor
// itself it runs fn inline, since queueing would deadlock.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if OnExecutor(ctx) {
		return fn(ctx)
	}

	done := make(chan error, 1)
	e.Schedule(func(ectx context.Context) {
		err := ErrTaskPanicked
		defer func() { done <- err }()
		err = fn(ectx)
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		// The task may have run just before the executor stopped.
		select {
		case err := <-done:
			return err
		default:
			return ErrExecutorStopped
		}
	}
}

// Run drains the queue until ctx is done. Tasks still queued at that point
// are dropped. Run must be called at most once.
func (e *Executor) Run(ctx context.Context) error {
	defer close(e.stopped)

	ectx := context.WithValue(ctx, executorKey{}, true)
	for {
		task, ok := e.next()
		if ok {
			e.safeRun(ectx, task)
			continue
		}

		select {
		case <-ctx.Done():
			if n := e.drop(); n > 0 {
				e.logger.Warn("executor stopped with queued tasks", "dropped", n)
			}
			return ctx.Err()
		case <-e.wake:
		}
	}
}

// Stopped is closed once Run has returned.
func (e *Executor) Stopped() <-chan struct{} {
	return e.stopped
}

// Pending returns the number of queued tasks.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Executor) next() (Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	task := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return task, true
}

func (e *Executor) drop() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.queue)
	e.queue = nil
	return n
}

// safeRun keeps one panicking task from killing the executor.
func (e *Executor) safeRun(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor task panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	task(ctx)
}
