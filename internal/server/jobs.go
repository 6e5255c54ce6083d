package server

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bis0908/naver-blog-image-downloader/internal/batch"
	"github.com/bis0908/naver-blog-image-downloader/internal/progress"
)

// Job states reported by the status endpoint.
const (
	JobStateRunning   = "running"
	JobStateCompleted = "completed"
	JobStateCancelled = "cancelled"
	JobStateFailed    = "failed"
)

// maxJobLogLines caps the per-job log buffer returned by the status
// endpoint.
const maxJobLogLines = 100

// ProgressEvent is one update streamed to WebSocket subscribers.
type ProgressEvent struct {
	JobID   string        `json:"job_id"`
	Percent int           `json:"percent"`
	Message string        `json:"message,omitempty"`
	Status  string        `json:"status"`
	Done    bool          `json:"done"`
	Result  *batch.Result `json:"result,omitempty"`
}

// JobStatus is the point-in-time view of a job returned by the API.
type JobStatus struct {
	ID              string         `json:"id"`
	Status          string         `json:"status"`
	CancelRequested bool           `json:"cancel_requested,omitempty"`
	Progress        progress.State `json:"progress"`
	Logs            []string       `json:"logs,omitempty"`
	Result          *batch.Result  `json:"result,omitempty"`
}

// Job tracks one asynchronous batch invocation. Its Progress, Log, and
// Complete methods are wired as the processor callbacks and run on the
// worker goroutine.
type Job struct {
	ID      string
	proc    *batch.Processor
	tracker *progress.Tracker

	mu              sync.Mutex
	logs            []string
	result          *batch.Result
	done            bool
	cancelRequested bool
	subscribers     map[chan ProgressEvent]struct{}
}

// Progress records an update and fans it out to subscribers.
func (j *Job) Progress(percent int, message string) {
	j.tracker.Update(percent, message)
	j.publish(ProgressEvent{
		JobID:   j.ID,
		Percent: percent,
		Message: message,
		Status:  JobStateRunning,
	})
}

// Log appends a line to the job's bounded log buffer.
func (j *Job) Log(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.logs = append(j.logs, message)
	if len(j.logs) > maxJobLogLines {
		j.logs = j.logs[len(j.logs)-maxJobLogLines:]
	}
}

// Complete stores the final result and closes all subscriber channels so
// stream consumers observe the terminal state.
func (j *Job) Complete(result batch.Result) {
	j.tracker.Done()

	j.mu.Lock()
	j.result = &result
	j.done = true
	subs := j.subscribers
	j.subscribers = nil
	j.mu.Unlock()

	for ch := range subs {
		close(ch)
	}
	jobsActive.Dec()
}

// Cancel asks the worker to stop at the next item boundary.
func (j *Job) Cancel() {
	j.mu.Lock()
	j.cancelRequested = true
	j.mu.Unlock()

	j.proc.RequestCancel()
}

// Subscribe registers a progress listener. The channel is closed when the
// job finishes; subscribing to a finished job yields a closed channel.
func (j *Job) Subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, 64)

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.done {
		close(ch)
		return ch
	}
	j.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a listener registered with Subscribe.
func (j *Job) Unsubscribe(ch chan ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.subscribers != nil {
		delete(j.subscribers, ch)
	}
}

func (j *Job) publish(ev ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for ch := range j.subscribers {
		// Drop updates for slow consumers rather than stalling the worker.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Status returns a snapshot of the job for the API.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := JobStatus{
		ID:              j.ID,
		Status:          JobStateRunning,
		CancelRequested: j.cancelRequested,
		Progress:        j.tracker.Snapshot(),
		Logs:            append([]string(nil), j.logs...),
		Result:          j.result,
	}
	if j.done {
		status.Status = finalState(*j.result)
	}
	return status
}

// Event captures the job's current state as a progress event.
func (j *Job) Event() ProgressEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := j.tracker.Snapshot()
	ev := ProgressEvent{
		JobID:   j.ID,
		Percent: snap.Percent,
		Message: snap.Message,
		Status:  JobStateRunning,
	}
	if j.done {
		ev.Status = finalState(*j.result)
		ev.Done = true
		ev.Result = j.result
	}
	return ev
}

func finalState(result batch.Result) string {
	switch {
	case result.Cancelled:
		return JobStateCancelled
	case result.SuccessCount == 0 && result.FailCount > 0:
		return JobStateFailed
	default:
		return JobStateCompleted
	}
}

// JobRegistry tracks jobs by ID for the status, cancel, and progress
// stream endpoints. Finished jobs stay queryable until the server exits.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*Job)}
}

// NewJob registers a fresh job around the given processor.
func (r *JobRegistry) NewJob(proc *batch.Processor) *Job {
	job := &Job{
		ID:          uuid.NewString(),
		proc:        proc,
		tracker:     progress.NewTracker(),
		subscribers: make(map[chan ProgressEvent]struct{}),
	}
	job.tracker.Start("batch")

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	jobsActive.Inc()
	return job
}

// Get looks up a job by ID.
func (r *JobRegistry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	return job, ok
}

// Remove discards a job that never started running.
func (r *JobRegistry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	r.mu.Unlock()

	if ok {
		jobsActive.Dec()
	}
}

// List snapshots all known jobs, oldest first.
func (r *JobRegistry) List() []JobStatus {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, job.Status())
	}
	sort.Slice(statuses, func(i, k int) bool {
		if !statuses[i].Progress.StartedAt.Equal(statuses[k].Progress.StartedAt) {
			return statuses[i].Progress.StartedAt.Before(statuses[k].Progress.StartedAt)
		}
		return statuses[i].ID < statuses[k].ID
	})
	return statuses
}
