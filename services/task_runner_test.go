package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunnerRunsTask(t *testing.T) {
	r := NewTaskRunner(2)
	done := make(chan struct{})

	require.NoError(t, r.Go("a", time.Second, func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	require.NoError(t, r.Shutdown(context.Background()))
	assert.False(t, r.Running("a"))
}

func TestTaskRunnerDropsDuplicateKey(t *testing.T) {
	r := NewTaskRunner(2)
	release := make(chan struct{})
	var runs int32

	require.NoError(t, r.Go("doc:1", time.Second, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
		<-release
	}))
	require.NoError(t, r.Go("doc:1", time.Second, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	}))
	assert.True(t, r.Running("doc:1"))

	close(release)
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestTaskRunnerCancel(t *testing.T) {
	r := NewTaskRunner(1)
	cancelled := make(chan struct{})

	require.NoError(t, r.Go("job", time.Minute, func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	require.Eventually(t, func() bool { return r.Cancel("job") }, time.Second, 10*time.Millisecond)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled")
	}
}

func TestTaskRunnerRejectsAfterShutdown(t *testing.T) {
	r := NewTaskRunner(1)
	require.NoError(t, r.Shutdown(context.Background()))
	assert.ErrorIs(t, r.Go("late", time.Second, func(context.Context) {}), ErrRunnerStopped)
}

func TestTaskRunnerRecoversPanics(t *testing.T) {
	r := NewTaskRunner(1)
	require.NoError(t, r.Go("boom", time.Second, func(context.Context) { panic("boom") }))
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestTaskRunnerReportsTaskDroppedWhileQueued(t *testing.T) {
	r := NewTaskRunner(1)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, r.Go("busy", time.Minute, func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	var ran int32
	dropped := make(chan error, 1)
	require.NoError(t, r.GoOrDrop("extract:42", 50*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&ran, 1)
	}, func(err error) { dropped <- err }))

	select {
	case err := <-dropped:
		assert.ErrorIs(t, err, ErrTaskDropped)
		assert.ErrorContains(t, err, context.DeadlineExceeded.Error())
	case <-time.After(time.Second):
		t.Fatal("drop was not reported")
	}
	assert.Eventually(t, func() bool { return !r.Running("extract:42") }, time.Second, 10*time.Millisecond)

	close(release)
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestTaskRunnerReportsQueuedTasksOnShutdown(t *testing.T) {
	r := NewTaskRunner(1)
	started := make(chan struct{})
	require.NoError(t, r.Go("busy", time.Minute, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	var drops int32
	for _, key := range []string{"a", "b"} {
		require.NoError(t, r.GoOrDrop(key, time.Minute, func(ctx context.Context) {}, func(err error) {
			if errors.Is(err, ErrTaskDropped) {
				atomic.AddInt32(&drops, 1)
			}
		}))
	}

	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&drops))
}
