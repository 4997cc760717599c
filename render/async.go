package render

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/drummonds/pagerender/document"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// AsyncRenderer runs render jobs on a fixed pool of workers that take jobs
// in submission order. Only Job.Wait, WaitAll and Close block.
type AsyncRenderer struct {
	renderer *Renderer
	observer JobObserver
	workers  int

	ctx    context.Context
	cancel context.CancelFunc
	jobs   *xsync.MapOf[ulid.ULID, *Job]

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Job
	closed bool
	wg     sync.WaitGroup
}

// AsyncOption configures an AsyncRenderer
type AsyncOption func(*AsyncRenderer)

// WithWorkers overrides the renderer's thread count
func WithWorkers(n int) AsyncOption {
	return func(a *AsyncRenderer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithObserver reports every job state change to o
func WithObserver(o JobObserver) AsyncOption {
	return func(a *AsyncRenderer) { a.observer = o }
}

// NewAsyncRenderer starts the workers. The worker count is fixed for the
// lifetime of the AsyncRenderer.
func NewAsyncRenderer(r *Renderer, opts ...AsyncOption) *AsyncRenderer {
	a := &AsyncRenderer{
		renderer: r,
		workers:  r.ThreadCount(),
		jobs:     xsync.NewMapOf[ulid.ULID, *Job](),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cond = sync.NewCond(&a.mu)
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.wg.Add(a.workers)
	for i := 0; i < a.workers; i++ {
		go a.worker(i)
	}
	Logger.Info("Async renderer started", "workers", a.workers, "backend", r.Backend())
	return a
}

// Workers is the size of the worker pool
func (a *AsyncRenderer) Workers() int { return a.workers }

// QueueRender submits a page and returns its pending job immediately
func (a *AsyncRenderer) QueueRender(page document.Page, opts Options) (*Job, error) {
	if page == nil {
		return nil, invalidArgf("page is nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, renderErrorf(nil, "async renderer is closed")
	}
	job := newJob(a.ctx, page, opts, a.observer)
	a.jobs.Store(job.id, job)
	// Observers see pending before any worker can report running.
	job.notify(job.Snapshot())
	a.queue = append(a.queue, job)
	a.cond.Signal()
	a.mu.Unlock()

	Logger.Debug("Queued render job", "job", job.id.String(), "page", page.Handle().String(), "dpi", opts.DPI)
	return job, nil
}

// QueueBatch submits the pages at indices in order, skipping indices the
// document cannot produce
func (a *AsyncRenderer) QueueBatch(doc document.Document, indices []int, opts Options) ([]*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(indices))
	for _, index := range indices {
		page := pageAt(doc, index)
		if page == nil {
			Logger.Debug("Skipping missing page in batch", "index", index)
			continue
		}
		job, err := a.QueueRender(page, opts)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// PendingCount is the number of queued jobs no worker has started
func (a *AsyncRenderer) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, job := range a.queue {
		if job.pending() {
			n++
		}
	}
	return n
}

// Job looks a job up by id
func (a *AsyncRenderer) Job(id ulid.ULID) (*Job, bool) {
	return a.jobs.Load(id)
}

// Jobs returns every known job, oldest first
func (a *AsyncRenderer) Jobs() []*Job {
	jobs := make([]*Job, 0, a.jobs.Size())
	a.jobs.Range(func(_ ulid.ULID, job *Job) bool {
		jobs = append(jobs, job)
		return true
	})
	slices.SortFunc(jobs, func(x, y *Job) int { return x.id.Compare(y.id) })
	return jobs
}

// CancelAll cancels every job that has not finished and returns how many
func (a *AsyncRenderer) CancelAll() int {
	n := 0
	a.jobs.Range(func(_ ulid.ULID, job *Job) bool {
		if job.Cancel() {
			n++
		}
		return true
	})
	if n > 0 {
		Logger.Info("Cancelled render jobs", "count", n)
	}
	return n
}

// WaitAll waits until every known job is terminal or timeout passes. A
// negative timeout waits forever.
func (a *AsyncRenderer) WaitAll(timeout time.Duration) bool {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for _, job := range a.Jobs() {
		remaining := time.Duration(-1)
		if !deadline.IsZero() {
			remaining = max(time.Until(deadline), 0)
		}
		if !job.Wait(remaining) {
			return false
		}
	}
	return true
}

// Prune forgets terminal jobs that finished more than olderThan ago
func (a *AsyncRenderer) Prune(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	n := 0
	a.jobs.Range(func(id ulid.ULID, job *Job) bool {
		if job.finishedBefore(cutoff) {
			a.jobs.Delete(id)
			n++
		}
		return true
	})
	return n
}

// Close cancels outstanding jobs and stops the workers
func (a *AsyncRenderer) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.cond.Broadcast()
	a.mu.Unlock()

	a.CancelAll()
	a.cancel()
	a.wg.Wait()
	Logger.Info("Async renderer stopped")
	return nil
}

// next blocks for the oldest queued job; nil means the renderer closed
func (a *AsyncRenderer) next() *Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.queue) == 0 && !a.closed {
		a.cond.Wait()
	}
	if a.closed {
		return nil
	}
	job := a.queue[0]
	a.queue[0] = nil
	a.queue = a.queue[1:]
	return job
}

func (a *AsyncRenderer) worker(id int) {
	defer a.wg.Done()
	l := a.renderer.newLease()
	defer func() {
		if err := l.release(); err != nil {
			Logger.Warn("Worker failed to release render context", "worker", id, "error", err)
		}
	}()

	for {
		job := a.next()
		if job == nil {
			return
		}
		a.run(l, job)
	}
}

func (a *AsyncRenderer) run(l *lease, job *Job) {
	if !job.start() {
		return
	}
	var buf *ImageBuffer
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				Logger.Error("Render job panicked", "job", job.id.String(), "panic", p)
				l.discard()
				err = renderErrorf(nil, "render job panic: %v", p)
			}
		}()
		buf, err = a.renderer.renderJob(job.ctx, l, job)
	}()
	job.finish(buf, err)

	if err != nil {
		Logger.Debug("Render job failed", "job", job.id.String(), "error", err)
	} else {
		Logger.Debug("Render job completed", "job", job.id.String(),
			"width", buf.Width(), "height", buf.Height(), "size", humanize.IBytes(uint64(buf.Len())))
	}
}

// renderJob renders a job's page, tiled when a tile size is configured
func (r *Renderer) renderJob(ctx context.Context, l *lease, job *Job) (*ImageBuffer, error) {
	if size := int(r.tileSize.Load()); size > 0 && !job.opts.UseClipRect {
		return r.renderTiled(ctx, l, job.page, size, size, job.opts, func(done, total int) bool {
			job.setProgress(float64(done) / float64(total))
			return true
		})
	}
	return r.render(ctx, l, job.page, job.opts, job.setProgress)
}

// Errors collects the failures of the given jobs
func Errors(jobs []*Job) error {
	var result *multierror.Error
	for _, job := range jobs {
		if err := job.Err(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
