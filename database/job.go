package database

import (
	"time"

	"github.com/drummonds/pagerender/render"
	"github.com/oklog/ulid/v2"
)

// Job is the persisted record of one render job
type Job struct {
	ID          ulid.ULID        `json:"id"`
	Document    string           `json:"document"`
	PageIndex   int              `json:"pageIndex"`
	DPI         float64          `json:"dpi"`
	Status      render.JobStatus `json:"status"`
	Progress    int              `json:"progress"` // 0-100
	Width       int              `json:"width,omitempty"`
	Height      int              `json:"height,omitempty"`
	Bytes       int              `json:"bytes,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// JobFromSnapshot converts the renderer's view of a job into a record
func JobFromSnapshot(s render.JobSnapshot) *Job {
	return &Job{
		ID:          s.ID,
		Document:    s.Document,
		PageIndex:   s.PageIndex,
		DPI:         s.DPI,
		Status:      s.Status,
		Progress:    int(s.Progress*100 + 0.5),
		Width:       s.Width,
		Height:      s.Height,
		Bytes:       s.Bytes,
		Error:       s.Error,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   time.Now(),
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
}

// terminalStatuses are never overwritten in the ledger
var terminalStatuses = []string{
	string(render.JobStatusCompleted),
	string(render.JobStatusFailed),
	string(render.JobStatusCancelled),
}
