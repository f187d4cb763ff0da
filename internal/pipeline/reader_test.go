package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingFile records whether its reader was closed.
type trackingFile struct {
	name    string
	data    []byte
	readErr error
	closed  bool
}

func (f *trackingFile) Name() string { return f.name }

func (f *trackingFile) Open() (io.ReadCloser, error) {
	return &trackingReader{f: f, r: bytes.NewReader(f.data)}, nil
}

type trackingReader struct {
	f *trackingFile
	r io.Reader
}

func (r *trackingReader) Read(p []byte) (int, error) {
	if r.f.readErr != nil {
		return 0, r.f.readErr
	}
	return r.r.Read(p)
}

func (r *trackingReader) Close() error {
	r.f.closed = true
	return nil
}

func TestReadFile_ClosesOnSuccessAndError(t *testing.T) {
	ok := &trackingFile{name: "ok.csv", data: []byte("Date,Description,Amount\n")}
	content, err := ReadFile(context.Background(), ok)
	require.NoError(t, err)
	assert.True(t, ok.closed)
	assert.Equal(t, FileTypeCSV, content.FileType)
	assert.Equal(t, int64(24), content.Size)
	assert.Len(t, content.Checksum, 64)

	bad := &trackingFile{name: "bad.csv", readErr: errors.New("disk gone")}
	_, err = ReadFile(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, bad.closed)

	var ingestErr *IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, StageRead, ingestErr.Stage)
}

func TestReadFile_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadFile(ctx, BytesFile{Filename: "a.csv", Data: []byte("x")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadFile_Decoding(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"plain utf8", []byte("Café,1"), "Café,1"},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("Date")...), "Date"},
		{"utf16le bom", []byte{0xFF, 0xFE, 'D', 0, 'a', 0}, "Da"},
		{"windows-1252", []byte{'C', 'a', 'f', 0xE9}, "Café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := ReadFile(context.Background(), BytesFile{Filename: "s.csv", Data: tt.data})
			require.NoError(t, err)
			assert.Equal(t, tt.want, content.Text)
		})
	}
}

func TestReadFile_Disk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "april.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Description,Amount\n"), 0o600))

	content, err := ReadFile(context.Background(), DiskFile{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "april.csv", content.Name)

	_, err = ReadFile(context.Background(), DiskFile{Path: filepath.Join(t.TempDir(), "missing.csv")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDetectFileType(t *testing.T) {
	assert.Equal(t, FileTypeCSV, DetectFileType("a.CSV", nil))
	assert.Equal(t, FileTypePDF, DetectFileType("a.pdf", nil))
	assert.Equal(t, FileTypeJPEG, DetectFileType("scan.jpeg", nil))
	assert.Equal(t, FileTypePDF, DetectFileType("upload", []byte("%PDF-1.7\n")))
	assert.Equal(t, FileTypeText, DetectFileType("upload", []byte("Date,Amount\n")))
	assert.True(t, IsDocumentType(FileTypePNG))
	assert.False(t, IsDocumentType(FileTypeCSV))
}
