package gcsuploader

import (
	"context"
	"io"
)

// ObjectSource is a statement file stored in GCS. It satisfies the
// pipeline's FileSource.
type ObjectSource struct {
	Ctx      context.Context
	Archiver *Archiver
	URI      string
}

func (s ObjectSource) Name() string { return FilenameFromURI(s.URI) }

func (s ObjectSource) Open() (io.ReadCloser, error) {
	ctx := s.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return s.Archiver.Open(ctx, s.URI)
}
