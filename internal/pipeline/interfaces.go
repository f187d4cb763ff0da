package pipeline

import (
	"context"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// AIParser extracts transactions from statements that are not plain CSV.
type AIParser interface {
	// ParseStatement sends file bytes to a model and returns parsed JSON output.
	ParseStatement(ctx context.Context, data []byte, fileType string, maxOutputTokens int) (map[string]interface{}, error)
}

// SessionPublisher receives parsed transactions for the current session.
type SessionPublisher interface {
	Append(source string, txs []domain.Transaction)
	// Discard removes one previously appended batch and returns how many
	// transactions were removed.
	Discard(source string, txs []domain.Transaction) int
}

// StatementSink persists a parsed statement and reports duplicates.
type StatementSink interface {
	SubmitStatement(ctx context.Context, upload *domain.StatementUpload) (*domain.UploadResult, error)
}

// Archiver stores the raw bytes of an uploaded file and returns its URI.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// PendingCache holds uploads that could not reach the sink.
type PendingCache interface {
	Put(upload *domain.StatementUpload) error
}
