package render

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses map[string][]JobStatus
}

func (o *recordingObserver) JobChanged(s JobSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.statuses == nil {
		o.statuses = make(map[string][]JobStatus)
	}
	o.statuses[s.ID.String()] = append(o.statuses[s.ID.String()], s.Status)
}

func (o *recordingObserver) history(id string) []JobStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]JobStatus(nil), o.statuses[id]...)
}

func newTestAsync(t *testing.T, r *Renderer, opts ...AsyncOption) *AsyncRenderer {
	t.Helper()
	a := NewAsyncRenderer(r, opts...)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAsync_CompletesJob(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, DefaultConfig())
	observer := &recordingObserver{}
	a := newTestAsync(t, r, WithWorkers(2), WithObserver(observer))

	job, err := a.QueueRender(letterDoc(1).Page(0), DefaultOptions())
	if err != nil {
		t.Fatalf("QueueRender failed: %v", err)
	}
	if !job.Wait(5 * time.Second) {
		t.Fatal("Job did not finish")
	}
	if job.Status() != JobStatusCompleted || job.Progress() != 1 {
		t.Fatalf("Expected completed with full progress, got %s %v", job.Status(), job.Progress())
	}
	buf, err := job.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if buf.Width() != 1275 || buf.Height() != 1650 {
		t.Errorf("Expected 1275x1650, got %dx%d", buf.Width(), buf.Height())
	}
	if job.PageIndex() != 0 {
		t.Errorf("Expected page index 0, got %d", job.PageIndex())
	}

	want := []JobStatus{JobStatusPending, JobStatusRunning, JobStatusCompleted}
	got := observer.history(job.ID().String())
	if len(got) != len(want) {
		t.Fatalf("Expected transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if found, ok := a.Job(job.ID()); !ok || found != job {
		t.Error("Job lookup by id failed")
	}
}

func TestAsync_CancelBeforePickup(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{}), started: make(chan struct{}, 1)}
	r := newTestRenderer(t, engine, DefaultConfig())
	a := newTestAsync(t, r, WithWorkers(1))
	doc := letterDoc(2)

	first, _ := a.QueueRender(doc.Page(0), DefaultOptions())
	<-engine.started
	second, _ := a.QueueRender(doc.Page(1), DefaultOptions())

	if a.PendingCount() != 1 {
		t.Errorf("Expected one pending job, got %d", a.PendingCount())
	}
	if !second.Cancel() {
		t.Fatal("Cancel of a pending job should succeed")
	}
	if second.Status() != JobStatusCancelled {
		t.Fatalf("Expected cancelled, got %s", second.Status())
	}
	if !second.Wait(0) {
		t.Error("Cancelled job should be terminal")
	}
	_, err := second.Result()
	assertKind(t, err, ErrRender)
	if second.Cancel() {
		t.Error("Second Cancel should report no change")
	}
	if a.PendingCount() != 0 {
		t.Errorf("Cancelled job should not count as pending, got %d", a.PendingCount())
	}

	close(engine.block)
	if !first.Wait(5 * time.Second) {
		t.Fatal("First job did not finish")
	}
	if first.Status() != JobStatusCompleted {
		t.Errorf("Expected first job completed, got %s", first.Status())
	}
	if engine.calls.Load() != 1 {
		t.Errorf("Cancelled job must not render, engine calls %d", engine.calls.Load())
	}
}

func TestAsync_CancelRunning(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{}), started: make(chan struct{}, 1)}
	r := newTestRenderer(t, engine, DefaultConfig())
	a := newTestAsync(t, r, WithWorkers(1))

	job, _ := a.QueueRender(letterDoc(1).Page(0), DefaultOptions())
	<-engine.started
	if job.Status() != JobStatusRunning {
		t.Fatalf("Expected running, got %s", job.Status())
	}
	if job.Wait(10 * time.Millisecond) {
		t.Fatal("Blocked job should not finish")
	}
	if !job.Cancel() {
		t.Fatal("Cancel of a running job should succeed")
	}
	if !job.Wait(time.Second) {
		t.Fatal("Cancel should wake waiters")
	}
	if job.Status() != JobStatusCancelled {
		t.Errorf("Expected cancelled, got %s", job.Status())
	}

	// the worker observes the cancellation and moves on
	next, _ := a.QueueRender(letterDoc(1).Page(0), DefaultOptions().WithDPI(72))
	close(engine.block)
	if !next.Wait(5 * time.Second) {
		t.Fatal("Worker did not recover from the cancelled job")
	}
}

func TestAsync_BatchAndWaitAll(t *testing.T) {
	engine := &fakeEngine{}
	cfg := DefaultConfig()
	cfg.Threads = 4
	r := newTestRenderer(t, engine, cfg)
	a := newTestAsync(t, r)
	if a.Workers() != 4 {
		t.Fatalf("Expected 4 workers, got %d", a.Workers())
	}

	doc := letterDoc(50)
	indices := make([]int, 50)
	for i := range indices {
		indices[i] = i
	}
	jobs, err := a.QueueBatch(doc, append(indices, 50, -1), DefaultOptions().WithDPI(18))
	if err != nil {
		t.Fatalf("QueueBatch failed: %v", err)
	}
	if len(jobs) != 50 {
		t.Fatalf("Missing pages should be skipped, got %d jobs", len(jobs))
	}
	if !a.WaitAll(-1) {
		t.Fatal("WaitAll returned false without timeout")
	}
	for i, job := range jobs {
		if !job.Status().Terminal() {
			t.Fatalf("Job %d not terminal: %s", i, job.Status())
		}
		if job.PageIndex() != i {
			t.Errorf("Job %d renders page %d", i, job.PageIndex())
		}
	}
	if a.PendingCount() != 0 {
		t.Errorf("Expected no pending jobs, got %d", a.PendingCount())
	}
	if err := Errors(jobs); err != nil {
		t.Errorf("Unexpected failures: %v", err)
	}
	if len(a.Jobs()) != 50 {
		t.Errorf("Expected 50 known jobs, got %d", len(a.Jobs()))
	}
}

func TestAsync_WaitAllTimeout(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	r := newTestRenderer(t, engine, DefaultConfig())
	a := newTestAsync(t, r, WithWorkers(1))

	a.QueueRender(letterDoc(1).Page(0), DefaultOptions())
	if a.WaitAll(20 * time.Millisecond) {
		t.Error("WaitAll should time out while a job is blocked")
	}
	if n := a.CancelAll(); n != 1 {
		t.Errorf("Expected to cancel 1 job, cancelled %d", n)
	}
	if !a.WaitAll(time.Second) {
		t.Error("WaitAll should succeed once jobs are cancelled")
	}
	close(engine.block)
}

func TestAsync_FailedJob(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{fail: errors.New("broken xref")}, DefaultConfig())
	a := newTestAsync(t, r, WithWorkers(1))

	job, _ := a.QueueRender(letterDoc(1).Page(0), DefaultOptions())
	job.Wait(-1)
	if job.Status() != JobStatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status())
	}
	if job.Err() == nil || job.Err().Error() != "broken xref" {
		t.Errorf("Expected engine error, got %v", job.Err())
	}
	_, err := job.Result()
	assertKind(t, err, ErrRender)
	if snap := job.Snapshot(); snap.Error != "broken xref" || snap.CompletedAt == nil {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestAsync_PanicIsContained(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{panics: true}, DefaultConfig())
	a := newTestAsync(t, r, WithWorkers(1))

	job, _ := a.QueueRender(letterDoc(1).Page(0), DefaultOptions())
	if !job.Wait(5 * time.Second) {
		t.Fatal("Job did not finish")
	}
	if job.Status() != JobStatusFailed {
		t.Errorf("Expected failed, got %s", job.Status())
	}
}

func TestAsync_TiledJobs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TileSize = 256
	r := newTestRenderer(t, &fakeEngine{}, cfg)
	a := newTestAsync(t, r, WithWorkers(1))

	job, _ := a.QueueRender(letterDoc(1).Page(0), DefaultOptions())
	buf, err := job.Result()
	if err != nil {
		t.Fatalf("Tiled job failed: %v", err)
	}
	if buf.Width() != 1275 || buf.Height() != 1650 || job.Progress() != 1 {
		t.Errorf("Unexpected tiled result %dx%d progress %v", buf.Width(), buf.Height(), job.Progress())
	}
}

func TestAsync_RejectsAndCloses(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, DefaultConfig())
	a := NewAsyncRenderer(r, WithWorkers(2))

	_, err := a.QueueRender(nil, DefaultOptions())
	assertKind(t, err, ErrInvalidArgument)
	_, err = a.QueueRender(letterDoc(1).Page(0), DefaultOptions().WithDPI(-1))
	assertKind(t, err, ErrInvalidArgument)

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err = a.QueueRender(letterDoc(1).Page(0), DefaultOptions())
	assertKind(t, err, ErrRender)
}

func TestAsync_Prune(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, DefaultConfig())
	a := newTestAsync(t, r, WithWorkers(1))

	job, _ := a.QueueRender(letterDoc(1).Page(0), DefaultOptions().WithDPI(18))
	job.Wait(-1)
	if n := a.Prune(time.Hour); n != 0 {
		t.Errorf("Recent job should be kept, pruned %d", n)
	}
	if n := a.Prune(-time.Second); n != 1 {
		t.Errorf("Expected to prune 1 job, pruned %d", n)
	}
	if _, ok := a.Job(job.ID()); ok {
		t.Error("Pruned job still known")
	}
}

func TestJob_WaitForever(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, DefaultConfig())
	a := newTestAsync(t, r, WithWorkers(1))
	job, _ := a.QueueRender(letterDoc(1).Page(0), DefaultOptions().WithDPI(18))

	done := make(chan bool)
	go func() { done <- job.Wait(-1) }()
	select {
	case ok := <-done:
		if !ok {
			t.Error("Wait without timeout must return true")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
	}
}
