package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline phase an IngestError came from.
type Stage string

const (
	StageRead    Stage = "read"
	StageParse   Stage = "parse"
	StageArchive Stage = "archive"
	StagePersist Stage = "persist"
)

// ErrUnsupportedFileType is returned when no parser handles a file's type.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// ErrNoDocumentParser is returned for PDF or image statements when no AIParser is configured.
var ErrNoDocumentParser = errors.New("no document parser configured")

// IngestError is a file-level failure. Row-level problems never produce one.
type IngestError struct {
	Stage Stage
	File  string
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, e.File, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, file string, err error) error {
	if err == nil {
		return nil
	}
	return &IngestError{Stage: stage, File: file, Err: err}
}
