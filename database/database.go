package database

import (
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger = slog.New(slog.DiscardHandler)

// Repository defines the job ledger operations
type Repository interface {
	Close() error
	// SaveJob inserts a job or updates it unless it is already terminal
	SaveJob(job *Job) error
	GetJob(jobID ulid.ULID) (*Job, error)
	GetRecentJobs(limit, offset int) ([]Job, error)
	GetActiveJobs() ([]Job, error)
	GetJobsForDocument(documentID string) ([]Job, error)
	DeleteOldJobs(olderThan time.Duration) (int, error)
}
