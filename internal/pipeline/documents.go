package pipeline

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileSource is a statement file that can be opened for reading.
type FileSource interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// DiskFile is a statement on the local filesystem.
type DiskFile struct {
	Path string
}

func (f DiskFile) Name() string { return filepath.Base(f.Path) }

func (f DiskFile) Open() (io.ReadCloser, error) { return os.Open(f.Path) }

// BytesFile is a statement already held in memory, such as a multipart upload.
type BytesFile struct {
	Filename string
	Data     []byte
}

func (f BytesFile) Name() string { return f.Filename }

func (f BytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

var typesByExt = map[string]string{
	".csv":  FileTypeCSV,
	".pdf":  FileTypePDF,
	".png":  FileTypePNG,
	".jpg":  FileTypeJPEG,
	".jpeg": FileTypeJPEG,
	".txt":  FileTypeText,
}

// DetectFileType returns the statement mime type from the extension,
// sniffing the content when the extension is unknown.
func DetectFileType(name string, data []byte) string {
	if t, ok := typesByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	t := http.DetectContentType(data)
	if i := strings.Index(t, ";"); i != -1 {
		t = t[:i]
	}
	return t
}

// IsDocumentType reports whether fileType needs the AI document parser.
func IsDocumentType(fileType string) bool {
	return fileType == FileTypePDF || strings.HasPrefix(fileType, "image/")
}

// ArchiveObjectName builds the storage object name for a raw statement,
// e.g. "statements/2024/01/15/<uuid>-march.csv".
func ArchiveObjectName(filename string, at time.Time) string {
	return path.Join("statements", at.Format("2006/01/02"), uuid.NewString()+"-"+filepath.Base(filename))
}
