package database

import (
	"sync"

	"github.com/drummonds/pagerender/render"
)

// JobLedger records render job transitions in a Repository. It implements
// render.JobObserver; writes happen on one goroutine in arrival order so
// workers never wait on the database.
type JobLedger struct {
	repo   Repository
	events chan render.JobSnapshot
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewJobLedger starts a ledger writer with room for buffer pending updates
func NewJobLedger(repo Repository, buffer int) *JobLedger {
	if buffer < 1 {
		buffer = 1
	}
	l := &JobLedger{
		repo:   repo,
		events: make(chan render.JobSnapshot, buffer),
		done:   make(chan struct{}),
	}
	go l.write()
	return l
}

// JobChanged queues a snapshot for persistence. Updates after Close are
// dropped.
func (l *JobLedger) JobChanged(s render.JobSnapshot) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		Logger.Debug("Job ledger closed, dropping update", "job", s.ID.String(), "status", s.Status)
		return
	}
	l.events <- s
}

func (l *JobLedger) write() {
	defer close(l.done)
	for s := range l.events {
		if err := l.repo.SaveJob(JobFromSnapshot(s)); err != nil {
			Logger.Error("Unable to record render job", "job", s.ID.String(), "status", s.Status, "error", err)
		}
	}
}

// Close flushes pending updates and stops the writer. The repository is
// left open.
func (l *JobLedger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.events)
	l.mu.Unlock()
	<-l.done
}
