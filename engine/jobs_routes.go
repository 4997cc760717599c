package engine

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/drummonds/pagerender/database"
	"github.com/drummonds/pagerender/render"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
)

type queueRequest struct {
	Pages []int `json:"pages"` // empty means every page
}

// QueueJobs queues one async render job per requested page. Pages outside the
// document are skipped.
func (serverHandler *ServerHandler) QueueJobs(c echo.Context) error {
	doc, err := serverHandler.lookupDocument(c)
	if err != nil {
		return err
	}
	opts, err := serverHandler.renderOptions(c)
	if err != nil {
		return err
	}
	var req queueRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid job request").SetInternal(err)
		}
	}
	if len(req.Pages) == 0 {
		for i := 0; i < doc.PageCount(); i++ {
			req.Pages = append(req.Pages, i)
		}
	}

	jobs, err := serverHandler.Async.QueueBatch(doc, req.Pages, opts)
	if err != nil {
		return renderHTTPError(err)
	}
	Logger.Info("Queued render jobs", "document", doc.Source().ID, "jobs", len(jobs))
	return c.JSON(http.StatusAccepted, snapshots(jobs))
}

func snapshots(jobs []*render.Job) []render.JobSnapshot {
	out := make([]render.JobSnapshot, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot()
	}
	return out
}

func parseJobID(c echo.Context) (ulid.ULID, error) {
	jobID, err := ulid.Parse(c.Param("id"))
	if err != nil {
		return ulid.ULID{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid job ID format")
	}
	return jobID, nil
}

// GetJob returns the live state of a job, falling back to the ledger for jobs
// the async renderer has already forgotten
func (serverHandler *ServerHandler) GetJob(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return err
	}
	if job, ok := serverHandler.Async.Job(jobID); ok {
		return c.JSON(http.StatusOK, job.Snapshot())
	}
	if serverHandler.DB == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Job not found")
	}
	job, err := serverHandler.DB.GetJob(jobID)
	if errors.Is(err, database.ErrJobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Job not found")
	}
	if err != nil {
		Logger.Error("Failed to get job", "jobID", jobID.String(), "error", err)
		return err
	}
	return c.JSON(http.StatusOK, job)
}

// GetRecentJobs lists jobs newest first. With a ledger the list is paged from
// the database, otherwise it is the async renderer's registry.
func (serverHandler *ServerHandler) GetRecentJobs(c echo.Context) error {
	limit := 20
	offset := 0

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	if serverHandler.DB != nil {
		jobs, err := serverHandler.DB.GetRecentJobs(limit, offset)
		if err != nil {
			Logger.Error("Failed to get recent jobs", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to retrieve jobs").SetInternal(err)
		}
		if jobs == nil {
			jobs = []database.Job{}
		}
		return c.JSON(http.StatusOK, jobs)
	}

	live := serverHandler.Async.Jobs()
	out := []render.JobSnapshot{}
	for i := len(live) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, live[i].Snapshot())
	}
	return c.JSON(http.StatusOK, out)
}

// GetActiveJobs lists pending and running jobs in queue order
func (serverHandler *ServerHandler) GetActiveJobs(c echo.Context) error {
	out := []render.JobSnapshot{}
	for _, job := range serverHandler.Async.Jobs() {
		if s := job.Snapshot(); !s.Status.Terminal() {
			out = append(out, s)
		}
	}
	return c.JSON(http.StatusOK, out)
}

// GetJobResult returns the rendered image of a completed job
func (serverHandler *ServerHandler) GetJobResult(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return err
	}
	job, ok := serverHandler.Async.Job(jobID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Job not found")
	}
	switch job.Status() {
	case render.JobStatusCompleted:
	case render.JobStatusPending, render.JobStatusRunning:
		return c.JSON(http.StatusConflict, job.Snapshot())
	default:
		return c.JSON(http.StatusGone, job.Snapshot())
	}
	buf, err := job.Result()
	if err != nil {
		return renderHTTPError(err)
	}
	return writeImage(c, buf)
}

// CancelJob cancels a pending or running job
func (serverHandler *ServerHandler) CancelJob(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return err
	}
	job, ok := serverHandler.Async.Job(jobID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Job not found")
	}
	if !job.Cancel() {
		return c.JSON(http.StatusConflict, job.Snapshot())
	}
	Logger.Info("Cancelled render job", "jobID", jobID.String())
	return c.JSON(http.StatusOK, job.Snapshot())
}

// CancelAllJobs cancels every pending and running job
func (serverHandler *ServerHandler) CancelAllJobs(c echo.Context) error {
	n := serverHandler.Async.CancelAll()
	Logger.Info("Cancelled all render jobs", "count", n)
	return c.JSON(http.StatusOK, map[string]int{"cancelled": n})
}
