package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bis0908/naver-blog-image-downloader/internal/batch"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
)

func newTestJob() *Job {
	return NewJobRegistry().NewJob(batch.New(transform.New()))
}

func TestJobRegistry_NewJobAndGet(t *testing.T) {
	registry := NewJobRegistry()

	first := registry.NewJob(batch.New(transform.New()))
	second := registry.NewJob(batch.New(transform.New()))

	assert.NotEqual(t, first.ID, second.ID)
	for _, job := range []*Job{first, second} {
		_, err := uuid.Parse(job.ID)
		assert.NoError(t, err)

		got, ok := registry.Get(job.ID)
		require.True(t, ok)
		assert.Same(t, job, got)
	}

	_, ok := registry.Get("not-a-job")
	assert.False(t, ok)
}

func TestJobRegistry_Remove(t *testing.T) {
	registry := NewJobRegistry()
	job := registry.NewJob(batch.New(transform.New()))

	registry.Remove(job.ID)

	_, ok := registry.Get(job.ID)
	assert.False(t, ok)

	// Removing twice is harmless.
	registry.Remove(job.ID)
}

func TestJob_ProgressReachesSubscribers(t *testing.T) {
	job := newTestJob()
	events := job.Subscribe()
	defer job.Unsubscribe(events)

	job.Progress(25, "transforming image 1/4")

	select {
	case ev := <-events:
		assert.Equal(t, job.ID, ev.JobID)
		assert.Equal(t, 25, ev.Percent)
		assert.Equal(t, "transforming image 1/4", ev.Message)
		assert.Equal(t, JobStateRunning, ev.Status)
		assert.False(t, ev.Done)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	status := job.Status()
	assert.Equal(t, JobStateRunning, status.Status)
	assert.Equal(t, 25, status.Progress.Percent)
	assert.Nil(t, status.Result)
}

func TestJob_CompleteClosesSubscribers(t *testing.T) {
	job := newTestJob()
	events := job.Subscribe()

	job.Complete(batch.Result{SuccessCount: 2})

	_, open := <-events
	assert.False(t, open)

	status := job.Status()
	assert.Equal(t, JobStateCompleted, status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, 2, status.Result.SuccessCount)

	ev := job.Event()
	assert.True(t, ev.Done)
	assert.Equal(t, JobStateCompleted, ev.Status)
	require.NotNil(t, ev.Result)

	// Late subscribers observe the closed channel immediately.
	late := job.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestJob_CancelMarksStatus(t *testing.T) {
	job := newTestJob()

	assert.False(t, job.Status().CancelRequested)
	job.Cancel()
	assert.True(t, job.Status().CancelRequested)
}

func TestJob_LogBufferIsBounded(t *testing.T) {
	job := newTestJob()

	for i := 1; i <= maxJobLogLines+25; i++ {
		job.Log(fmt.Sprintf("line %d", i))
	}

	logs := job.Status().Logs
	require.Len(t, logs, maxJobLogLines)
	assert.Equal(t, "line 26", logs[0])
	assert.Equal(t, fmt.Sprintf("line %d", maxJobLogLines+25), logs[len(logs)-1])
}

func TestFinalState(t *testing.T) {
	tests := []struct {
		name   string
		result batch.Result
		want   string
	}{
		{name: "cancelled", result: batch.Result{Cancelled: true, SuccessCount: 3}, want: JobStateCancelled},
		{name: "all failed", result: batch.Result{FailCount: 4}, want: JobStateFailed},
		{name: "partial failure counts as completed", result: batch.Result{SuccessCount: 3, FailCount: 1}, want: JobStateCompleted},
		{name: "all succeeded", result: batch.Result{SuccessCount: 5}, want: JobStateCompleted},
		{name: "empty batch", result: batch.Result{}, want: JobStateCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, finalState(tt.result))
		})
	}
}

func TestJobRegistry_List(t *testing.T) {
	registry := NewJobRegistry()

	ids := make(map[string]bool, 3)
	for range 3 {
		job := registry.NewJob(batch.New(transform.New()))
		ids[job.ID] = true
	}

	listed := registry.List()
	require.Len(t, listed, 3)
	for _, status := range listed {
		assert.True(t, ids[status.ID])
		assert.Equal(t, JobStateRunning, status.Status)
	}
}

func TestJob_SlowSubscriberDoesNotBlockWorker(t *testing.T) {
	job := newTestJob()
	events := job.Subscribe()
	defer job.Unsubscribe(events)

	// Overflow the subscriber buffer without draining it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 200 {
			job.Progress(i%100, "update")
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}
}
