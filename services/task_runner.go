package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sahilchouksey/studyquiz-api/utils"
)

var (
	// ErrRunnerStopped is returned when work is submitted after Shutdown
	ErrRunnerStopped = errors.New("background runner is shutting down")
	// ErrTaskDropped is passed to the drop callback of a task whose context
	// ended before a worker slot freed up
	ErrTaskDropped = errors.New("task dropped before it started")
)

// TaskRunner runs keyed background work with bounded concurrency. Each task
// gets its own timeout and can be cancelled by key.
type TaskRunner struct {
	slots chan struct{}
	wg    sync.WaitGroup

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
	stopped  bool
}

// NewTaskRunner creates a runner executing at most workers tasks at once
func NewTaskRunner(workers int) *TaskRunner {
	if workers < 1 {
		workers = 1
	}
	return &TaskRunner{
		slots:  make(chan struct{}, workers),
		active: make(map[string]context.CancelFunc),
	}
}

// Go schedules fn under key. A task already running under the same key is
// left alone and the new one is dropped.
func (r *TaskRunner) Go(key string, timeout time.Duration, fn func(ctx context.Context)) error {
	return r.GoOrDrop(key, timeout, fn, nil)
}

// GoOrDrop is Go with a callback for a task that never starts because its
// timeout, Cancel or Shutdown came first. dropped runs on the task goroutine
// with an error wrapping ErrTaskDropped.
func (r *TaskRunner) GoOrDrop(key string, timeout time.Duration, fn func(ctx context.Context), dropped func(err error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	r.activeMu.Lock()
	if r.stopped {
		r.activeMu.Unlock()
		cancel()
		return ErrRunnerStopped
	}
	if _, running := r.active[key]; running {
		r.activeMu.Unlock()
		cancel()
		return nil
	}
	r.active[key] = cancel
	r.wg.Add(1)
	r.activeMu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.finish(key, cancel)
		defer func() {
			if rec := recover(); rec != nil {
				utils.WithComponent("Task Runner").WithField("task", key).Errorf("Task panicked: %v", rec)
			}
		}()

		select {
		case r.slots <- struct{}{}:
			defer func() { <-r.slots }()
		case <-ctx.Done():
		}
		// a slot and cancellation can become ready together
		if err := ctx.Err(); err != nil {
			utils.WithComponent("Task Runner").WithField("task", key).Warn("Task dropped before it started")
			if dropped != nil {
				dropped(fmt.Errorf("%w: %v", ErrTaskDropped, err))
			}
			return
		}
		fn(ctx)
	}()
	return nil
}

func (r *TaskRunner) finish(key string, cancel context.CancelFunc) {
	cancel()
	r.activeMu.Lock()
	delete(r.active, key)
	r.activeMu.Unlock()
}

// Cancel stops the task running under key, if any
func (r *TaskRunner) Cancel(key string) bool {
	r.activeMu.Lock()
	cancel, ok := r.active[key]
	r.activeMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether a task with key is queued or running
func (r *TaskRunner) Running(key string) bool {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	_, ok := r.active[key]
	return ok
}

// Shutdown cancels outstanding tasks and waits for them or for ctx
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.activeMu.Lock()
	r.stopped = true
	for _, cancel := range r.active {
		cancel()
	}
	r.activeMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
