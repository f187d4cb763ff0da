package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Multipart limits for POST /api/ingest.
const (
	maxMultipartMemory = 32 << 20
	maxIngestFileSize  = 20 << 20
)

// IngestHandler accepts statement files and queues one job per file.
type IngestHandler struct {
	publisher jobs.Publisher
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(publisher jobs.Publisher) *IngestHandler {
	return &IngestHandler{publisher: publisher}
}

type queuedJob struct {
	JobID    string         `json:"job_id"`
	FileID   string         `json:"file_id"`
	Filename string         `json:"filename"`
	Status   jobs.JobStatus `json:"status"`
}

// Ingest handles POST /api/ingest with one or more "files" parts.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No files provided")
		return
	}

	// Every part is read before anything is queued, so a bad part leaves no jobs behind.
	user := middleware.UserFromContext(ctx)
	pending := make([]*jobs.IngestJob, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		pending = append(pending, &jobs.IngestJob{
			Filename: filepath.Base(fh.Filename),
			UserID:   user,
			Payload:  data,
		})
	}

	queued := make([]queuedJob, 0, len(pending))
	for _, job := range pending {
		if err := h.publisher.PublishIngest(ctx, job); err != nil {
			log.Error().Err(err).Str("filename", job.Filename).Msg("Failed to enqueue ingest job")
			middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue ingest job")
			return
		}

		log.Info().Str("job_id", job.JobID).Str("filename", job.Filename).Msg("Ingest job enqueued")
		queued = append(queued, queuedJob{
			JobID:    job.JobID,
			FileID:   job.FileID,
			Filename: job.Filename,
			Status:   job.Status,
		})
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobs":  queued,
		"count": len(queued),
	})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxIngestFileSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fh.Filename, maxIngestFileSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	return data, nil
}
