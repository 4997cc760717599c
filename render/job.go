package render

import (
	"context"
	"sync"
	"time"

	"github.com/drummonds/pagerender/document"
	"github.com/oklog/ulid/v2"
)

// JobStatus represents the status of a render job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status can no longer change
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobSnapshot is a point in time copy of a job's observable state
type JobSnapshot struct {
	ID          ulid.ULID  `json:"id"`
	Document    string     `json:"document"`
	PageIndex   int        `json:"pageIndex"`
	DPI         float64    `json:"dpi"`
	Status      JobStatus  `json:"status"`
	Progress    float64    `json:"progress"` // 0-1
	Error       string     `json:"error,omitempty"`
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
	Bytes       int        `json:"bytes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobObserver is told about every job state change. Calls come from the
// goroutine making the change and must not block for long.
type JobObserver interface {
	JobChanged(JobSnapshot)
}

// Job is one queued page render. Jobs are shared by pointer between the
// queue, workers and callers; exactly one terminal transition happens.
type Job struct {
	id        ulid.ULID
	page      document.Page
	opts      Options
	createdAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	observer  JobObserver

	mu          sync.Mutex
	status      JobStatus
	progress    float64
	result      *ImageBuffer
	err         error
	startedAt   time.Time
	completedAt time.Time
}

func newJob(parent context.Context, page document.Page, opts Options, observer JobObserver) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		id:        ulid.Make(),
		page:      page,
		opts:      opts,
		createdAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		observer:  observer,
		status:    JobStatusPending,
	}
}

// ID is unique and sorts by creation time
func (j *Job) ID() ulid.ULID { return j.id }

// PageIndex is the index of the rendered page in its document
func (j *Job) PageIndex() int { return j.page.Handle().Index }

// Page is the page being rendered
func (j *Job) Page() document.Page { return j.page }

// Options are the options the job renders with
func (j *Job) Options() Options { return j.opts }

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress is the completed fraction of the render, 0 to 1
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Err is the failure of a Failed job
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed once the job reaches a terminal status
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job is terminal or timeout passes and reports
// whether it finished. A negative timeout waits forever.
func (j *Job) Wait(timeout time.Duration) bool {
	if timeout < 0 {
		<-j.done
		return true
	}
	select {
	case <-j.done:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-j.done:
		return true
	case <-t.C:
		return false
	}
}

// Cancel stops a pending or running job. It returns false when the job was
// already terminal.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return false
	}
	j.terminateLocked(JobStatusCancelled, nil, nil)
	snap := j.snapshotLocked()
	j.mu.Unlock()

	j.cancel()
	j.notify(snap)
	return true
}

// Result waits for the job and returns its image. Jobs that did not complete
// return a render error.
func (j *Job) Result() (*ImageBuffer, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.status {
	case JobStatusCompleted:
		return j.result.Clone(), nil
	case JobStatusCancelled:
		return nil, renderErrorf(nil, "job %s was cancelled", j.id)
	}
	return nil, renderErrorf(j.err, "job %s failed: %v", j.id, j.err)
}

// Snapshot copies the job's observable state
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() JobSnapshot {
	s := JobSnapshot{
		ID:        j.id,
		PageIndex: j.page.Handle().Index,
		DPI:       j.opts.DPI,
		Status:    j.status,
		Progress:  j.progress,
		CreatedAt: j.createdAt,
	}
	if src := j.page.Handle().Source; src != nil {
		s.Document = src.ID
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	if j.result != nil {
		s.Width, s.Height, s.Bytes = j.result.Width(), j.result.Height(), j.result.Len()
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt
		s.CompletedAt = &t
	}
	return s
}

func (j *Job) notify(s JobSnapshot) {
	if j.observer != nil {
		j.observer.JobChanged(s)
	}
}

// start moves a pending job to running; false means it was cancelled
func (j *Job) start() bool {
	j.mu.Lock()
	if j.status != JobStatusPending {
		j.mu.Unlock()
		return false
	}
	j.status = JobStatusRunning
	j.startedAt = time.Now()
	snap := j.snapshotLocked()
	j.mu.Unlock()
	j.notify(snap)
	return true
}

func (j *Job) setProgress(p float64) {
	j.mu.Lock()
	if j.status != JobStatusRunning || p <= j.progress {
		j.mu.Unlock()
		return
	}
	j.progress = min(p, 1)
	j.mu.Unlock()
}

// finish records the outcome of a running job. A job cancelled meanwhile
// keeps its cancelled status and the result is dropped.
func (j *Job) finish(buf *ImageBuffer, err error) {
	j.mu.Lock()
	if j.status != JobStatusRunning {
		j.mu.Unlock()
		return
	}
	if err != nil {
		j.terminateLocked(JobStatusFailed, nil, err)
	} else {
		j.progress = 1
		j.terminateLocked(JobStatusCompleted, buf, nil)
	}
	snap := j.snapshotLocked()
	j.mu.Unlock()
	j.cancel()
	j.notify(snap)
}

func (j *Job) terminateLocked(status JobStatus, buf *ImageBuffer, err error) {
	j.status = status
	j.result = buf
	j.err = err
	j.completedAt = time.Now()
	close(j.done)
}

func (j *Job) pending() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == JobStatusPending
}

func (j *Job) finishedBefore(t time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status.Terminal() && j.completedAt.Before(t)
}
