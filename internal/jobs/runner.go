package jobs

import (
	"context"

	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/session"
)

// StatementIngester runs the ingestion pipeline for one file.
type StatementIngester interface {
	IngestFor(ctx context.Context, userID, fileID string, src pipeline.FileSource, progress pipeline.ProgressFunc) (*pipeline.Result, error)
}

// UploadRecorder keeps the latest upload status per file.
type UploadRecorder interface {
	SetUpload(u session.UploadStatus)
}

// NewIngestHandler returns the JobHandler that ingests a job's file and
// records the outcome on recorder, which may be nil.
//
// Only cancellation fails the job. Read, parse and persist problems leave a
// completed job whose Result carries the error.
func NewIngestHandler(ingester StatementIngester, recorder UploadRecorder) JobHandler {
	return func(ctx context.Context, job *IngestJob, report func(Progress)) (*pipeline.Result, error) {
		log := logger.FromContext(ctx)

		progress := func(step string, done, total int) {
			report(Progress{Step: step, Done: done, Total: total})
		}

		res, err := ingester.IngestFor(ctx, job.UserID, job.FileID, Source(job), progress)
		if recorder != nil {
			recorder.SetUpload(UploadStatusFor(job, res, err))
		}
		if err != nil {
			return res, err
		}
		if res.ReadErr != "" {
			log.Warn().Str("error", res.ReadErr).Msg("Statement file could not be read, recorded with zero transactions")
		}
		return res, nil
	}
}

// Source returns the file a job reads: Path when set, otherwise Payload.
func Source(job *IngestJob) pipeline.FileSource {
	if job.Path != "" {
		return pipeline.DiskFile{Path: job.Path}
	}
	return pipeline.BytesFile{Filename: job.Filename, Data: job.Payload}
}

// UploadStatusFor summarizes a pipeline outcome for the session view. A file
// that could not be read, parsed or persisted still counts as uploaded; the
// error is kept in Message.
func UploadStatusFor(job *IngestJob, res *pipeline.Result, err error) session.UploadStatus {
	u := session.UploadStatus{FileID: job.FileID, Filename: job.Filename}
	if res != nil {
		u.Transactions = len(res.Transactions)
		u.Message = res.Message
	}

	switch {
	case err != nil:
		u.Status = session.UploadStatusCancelled
		u.Message = err.Error()
	case res.Duplicate:
		u.Status = session.UploadStatusDuplicate
	default:
		u.Status = session.UploadStatusUploaded
		for _, msg := range []string{res.ReadErr, res.ParseErr, res.PersistErr} {
			if msg != "" {
				u.Message = msg
				break
			}
		}
	}
	return u
}
