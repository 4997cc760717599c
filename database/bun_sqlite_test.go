package database

import (
	"errors"
	"testing"
	"time"

	"github.com/drummonds/pagerender/config"
	"github.com/drummonds/pagerender/render"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/oklog/ulid/v2"
)

func newTestRepository(t *testing.T) *BunDB {
	t.Helper()
	db, err := NewRepository(config.ServerConfig{DatabaseType: "sqlite", DatabaseDbname: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open sqlite repository: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testJob(doc string, page int, status render.JobStatus) *Job {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Job{
		ID:        ulid.Make(),
		Document:  doc,
		PageIndex: page,
		DPI:       150,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestBunSQLiteDatabase(t *testing.T) {
	db := newTestRepository(t)

	t.Run("Save and retrieve job", func(t *testing.T) {
		job := testJob("doc-a", 2, render.JobStatusPending)
		if err := db.SaveJob(job); err != nil {
			t.Fatalf("Failed to save job: %v", err)
		}

		got, err := db.GetJob(job.ID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		opts := []cmp.Option{
			cmpopts.EquateApproxTime(time.Second),
			cmpopts.IgnoreFields(Job{}, "UpdatedAt"),
		}
		if diff := cmp.Diff(job, got, opts...); diff != "" {
			t.Errorf("job mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Upsert advances status", func(t *testing.T) {
		job := testJob("doc-b", 0, render.JobStatusPending)
		if err := db.SaveJob(job); err != nil {
			t.Fatalf("Failed to save job: %v", err)
		}
		started := time.Now()
		job.Status = render.JobStatusRunning
		job.Progress = 40
		job.StartedAt = &started
		if err := db.SaveJob(job); err != nil {
			t.Fatalf("Failed to update job: %v", err)
		}

		got, err := db.GetJob(job.ID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if got.Status != render.JobStatusRunning || got.Progress != 40 {
			t.Errorf("got status %s progress %d, want running 40", got.Status, got.Progress)
		}
		if got.StartedAt == nil {
			t.Error("StartedAt was not stored")
		}
	})

	t.Run("Terminal status is final", func(t *testing.T) {
		job := testJob("doc-c", 1, render.JobStatusCancelled)
		done := time.Now()
		job.CompletedAt = &done
		if err := db.SaveJob(job); err != nil {
			t.Fatalf("Failed to save job: %v", err)
		}
		job.Status = render.JobStatusRunning
		job.CompletedAt = nil
		if err := db.SaveJob(job); err != nil {
			t.Fatalf("Failed to save late update: %v", err)
		}

		got, err := db.GetJob(job.ID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if got.Status != render.JobStatusCancelled {
			t.Errorf("status = %s, want cancelled", got.Status)
		}
	})

	t.Run("Missing job", func(t *testing.T) {
		_, err := db.GetJob(ulid.Make())
		if !errors.Is(err, ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})
}

func TestJobQueries(t *testing.T) {
	db := newTestRepository(t)

	statuses := []render.JobStatus{
		render.JobStatusPending,
		render.JobStatusRunning,
		render.JobStatusCompleted,
		render.JobStatusFailed,
	}
	var saved []*Job
	for i, status := range statuses {
		job := testJob("doc-q", len(statuses)-i, status)
		job.CreatedAt = job.CreatedAt.Add(time.Duration(i) * time.Second)
		if status.Terminal() {
			done := time.Now().Add(-2 * time.Hour)
			job.CompletedAt = &done
			job.Error = "boom"
		}
		if err := db.SaveJob(job); err != nil {
			t.Fatalf("Failed to save job %d: %v", i, err)
		}
		saved = append(saved, job)
	}
	other := testJob("doc-other", 0, render.JobStatusPending)
	if err := db.SaveJob(other); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	t.Run("Recent jobs newest first", func(t *testing.T) {
		jobs, err := db.GetRecentJobs(2, 0)
		if err != nil {
			t.Fatalf("GetRecentJobs failed: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("got %d jobs, want 2", len(jobs))
		}
		if jobs[0].ID != saved[3].ID {
			t.Errorf("first job = %s, want %s", jobs[0].ID, saved[3].ID)
		}
	})

	t.Run("Active jobs", func(t *testing.T) {
		jobs, err := db.GetActiveJobs()
		if err != nil {
			t.Fatalf("GetActiveJobs failed: %v", err)
		}
		if len(jobs) != 3 {
			t.Fatalf("got %d active jobs, want 3", len(jobs))
		}
		for _, j := range jobs {
			if j.Status.Terminal() {
				t.Errorf("terminal job %s listed as active", j.ID)
			}
		}
	})

	t.Run("Jobs for document in page order", func(t *testing.T) {
		jobs, err := db.GetJobsForDocument("doc-q")
		if err != nil {
			t.Fatalf("GetJobsForDocument failed: %v", err)
		}
		var pages []int
		for _, j := range jobs {
			pages = append(pages, j.PageIndex)
		}
		if diff := cmp.Diff([]int{1, 2, 3, 4}, pages); diff != "" {
			t.Errorf("page order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Delete old jobs keeps active ones", func(t *testing.T) {
		n, err := db.DeleteOldJobs(time.Hour)
		if err != nil {
			t.Fatalf("DeleteOldJobs failed: %v", err)
		}
		if n != 2 {
			t.Errorf("deleted %d jobs, want 2", n)
		}
		jobs, err := db.GetRecentJobs(10, 0)
		if err != nil {
			t.Fatalf("GetRecentJobs failed: %v", err)
		}
		if len(jobs) != 3 {
			t.Errorf("%d jobs left, want 3", len(jobs))
		}
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestRepository(t)
	if err := db.runMigrations(t.Context()); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
}

func TestUnknownDatabaseType(t *testing.T) {
	if _, err := NewRepository(config.ServerConfig{DatabaseType: "oracle"}); err == nil {
		t.Fatal("expected an error for an unsupported database type")
	}
}
