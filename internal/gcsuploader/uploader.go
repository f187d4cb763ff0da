// Package gcsuploader archives raw statement files in Google Cloud Storage
// and reads them back.
package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// uploadTimeout bounds a single object write.
const uploadTimeout = 2 * time.Minute

// Archiver writes statement files to one bucket. It implements the
// pipeline's Archiver.
type Archiver struct {
	client *storage.Client
	bucket string
}

// NewArchiver creates a storage client using Application Default Credentials.
func NewArchiver(ctx context.Context, bucket string) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewArchiver: bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewArchiver: create storage client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (a *Archiver) Close() error {
	return a.client.Close()
}

// Bucket returns the bucket name.
func (a *Archiver) Bucket() string {
	return a.bucket
}

// Archive writes data under objectName and returns its gs:// URI.
func (a *Archiver) Archive(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if err := a.write(ctx, objectName, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("Archive: %w", err)
	}
	return URI(a.bucket, objectName), nil
}

// UploadFile uploads a local file under objectName and returns its gs:// URI.
func (a *Archiver) UploadFile(ctx context.Context, objectName, filePath, contentType string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	if err := a.write(ctx, objectName, f, contentType); err != nil {
		return "", fmt.Errorf("UploadFile: %w", err)
	}
	return URI(a.bucket, objectName), nil
}

func (a *Archiver) write(ctx context.Context, objectName string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"source_filename": path.Base(objectName)}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// Open returns a reader for a gs:// URI in any bucket the client can read.
func (a *Archiver) Open(ctx context.Context, gcsURI string) (io.ReadCloser, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}
	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Open: reading object %s/%s: %w", bucket, object, err)
	}
	return rc, nil
}

// Fetch downloads the bytes at a gs:// URI.
func (a *Archiver) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	rc, err := a.Open(ctx, gcsURI)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// URI builds gs://bucket/object.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// ParseURI splits gs://bucket/path/to/file into bucket and object.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !IsURI(gcsURI) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
