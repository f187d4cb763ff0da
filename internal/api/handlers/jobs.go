package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/session"
)

// Canceller stops a queued or running job.
type Canceller interface {
	Cancel(jobID string) error
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	canceller Canceller
	uploads   jobs.UploadRecorder
}

// NewJobsHandler creates a new jobs handler. uploads may be nil.
func NewJobsHandler(store jobs.JobStore, canceller Canceller, uploads jobs.UploadRecorder) *JobsHandler {
	return &JobsHandler{
		store:     store,
		canceller: canceller,
		uploads:   uploads,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		FileID: query.Get("file_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	var ok bool
	if filter.Limit, ok = queryInt(r, "limit", 0); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	if filter.Offset, ok = queryInt(r, "offset", 0); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// CancelJob handles DELETE /api/jobs/{id}. Cancelling a finished job
// is a no-op that returns its final state.
func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	jobID := r.PathValue("id")

	if err := h.canceller.Cancel(jobID); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to cancel job")
		return
	}

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	// Jobs cancelled before a worker picked them up never reach the runner.
	if job.Status == jobs.JobStatusCancelled && job.StartedAt == nil && h.uploads != nil {
		h.uploads.SetUpload(session.UploadStatus{
			FileID:   job.FileID,
			Filename: job.Filename,
			Status:   session.UploadStatusCancelled,
			Message:  job.Error,
		})
	}

	log.Info().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Job cancel requested")
	middleware.WriteJSON(w, http.StatusOK, job)
}
