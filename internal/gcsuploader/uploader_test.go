package gcsuploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/statements/2024/01/15/x-jan.csv", "bucket", "statements/2024/01/15/x-jan.csv", false},
		{"gs://bucket/file.pdf", "bucket", "file.pdf", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"s3://bucket/file.pdf", "", "", true},
		{"/tmp/file.pdf", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantObject, object)
		})
	}
}

func TestFilenameFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/folder/file.pdf", "file.pdf"},
		{"gs://bucket/file.csv", "file.csv"},
		{"gs://bucket", "bucket"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FilenameFromURI(tt.uri))
	}
}

func TestURI(t *testing.T) {
	assert.Equal(t, "gs://b/statements/a.csv", URI("b", "statements/a.csv"))
	assert.True(t, IsURI("gs://b/a"))
	assert.False(t, IsURI("b/a"))
}

func TestObjectSourceName(t *testing.T) {
	src := ObjectSource{URI: "gs://b/statements/2024/01/15/abc-jan.csv"}
	assert.Equal(t, "abc-jan.csv", src.Name())
}
