package database

import (
	"time"

	"github.com/drummonds/pagerender/render"
	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunJob represents the jobs table for Bun ORM
type BunJob struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          string     `bun:"id,pk"` // ULID as string
	Document    string     `bun:"document,notnull"`
	PageIndex   int        `bun:"page_index,notnull"`
	DPI         float64    `bun:"dpi,notnull"`
	Status      string     `bun:"status,default:'pending'"`
	Progress    int        `bun:"progress,default:0"`
	Width       int        `bun:"width,default:0"`
	Height      int        `bun:"height,default:0"`
	Bytes       int        `bun:"bytes,default:0"`
	Error       string     `bun:"error,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

// ToJob converts BunJob to Job
func (bj *BunJob) ToJob() (*Job, error) {
	parsedULID, err := ulid.Parse(bj.ID)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          parsedULID,
		Document:    bj.Document,
		PageIndex:   bj.PageIndex,
		DPI:         bj.DPI,
		Status:      render.JobStatus(bj.Status),
		Progress:    bj.Progress,
		Width:       bj.Width,
		Height:      bj.Height,
		Bytes:       bj.Bytes,
		Error:       bj.Error,
		CreatedAt:   bj.CreatedAt,
		UpdatedAt:   bj.UpdatedAt,
		StartedAt:   bj.StartedAt,
		CompletedAt: bj.CompletedAt,
	}, nil
}

// FromJob converts Job to BunJob
func FromJob(job *Job) *BunJob {
	return &BunJob{
		ID:          job.ID.String(),
		Document:    job.Document,
		PageIndex:   job.PageIndex,
		DPI:         job.DPI,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Width:       job.Width,
		Height:      job.Height,
		Bytes:       job.Bytes,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}
