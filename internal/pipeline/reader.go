package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadFile opens src, reads it fully and closes it on every path.
// Text honours UTF-8 and UTF-16 byte order marks; input that is not valid
// UTF-8 is decoded as Windows-1252.
func ReadFile(ctx context.Context, src FileSource) (*FileContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := src.Open()
	if err != nil {
		return nil, stageError(StageRead, src.Name(), fmt.Errorf("opening: %w", err))
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, stageError(StageRead, src.Name(), fmt.Errorf("reading: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fileType := DetectFileType(src.Name(), raw)

	var text string
	if !IsDocumentType(fileType) {
		text, err = decodeText(raw)
		if err != nil {
			return nil, stageError(StageRead, src.Name(), fmt.Errorf("decoding: %w", err))
		}
	}

	sum := sha256.Sum256(raw)
	return &FileContent{
		Name:     src.Name(),
		Text:     text,
		Raw:      raw,
		Size:     int64(len(raw)),
		FileType: fileType,
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

func decodeText(raw []byte) (string, error) {
	var fallback encoding.Encoding = unicode.UTF8
	if !utf8.Valid(raw) {
		fallback = charmap.Windows1252
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(fallback.NewDecoder()), raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
