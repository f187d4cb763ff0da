package pipeline

import (
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/summary"
)

// Row is one statement line before normalization.
// Index is the 1-based line number below the header.
type Row struct {
	Index       int
	Date        string
	Description string
	Amount      float64
	Category    string
}

// FileContent is the decoded content of a statement file.
type FileContent struct {
	Name     string
	Text     string
	Raw      []byte
	Size     int64
	FileType string
	Checksum string
}

// Result is the outcome of ingesting one file. Errors are recorded, never fatal.
type Result struct {
	FileID       string               `json:"file_id"`
	Filename     string               `json:"filename"`
	FileType     string               `json:"file_type,omitempty"`
	Transactions []domain.Transaction `json:"transactions"`
	Summary      summary.Summary      `json:"summary"`
	ArchiveURI   string               `json:"archive_uri,omitempty"`
	StatementID  string               `json:"statement_id,omitempty"`
	Uploaded     bool                 `json:"uploaded"`
	Duplicate    bool                 `json:"duplicate"`
	Cached       bool                 `json:"cached"`
	Message      string               `json:"message,omitempty"`
	ReadErr      string               `json:"read_error,omitempty"`
	ParseErr     string               `json:"parse_error,omitempty"`
	PersistErr   string               `json:"persist_error,omitempty"`
}
