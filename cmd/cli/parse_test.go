package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/gcsuploader"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseAllKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "jan.csv", "Date,Description,Amount\n2024-01-15,Whole Foods,-82.47\n"),
		writeFile(t, dir, "feb.csv", "Date,Description,Amount\n2024-02-01,Payroll,3200\n2024-02-03,Shell,-40\n"),
		filepath.Join(dir, "missing.csv"),
	}

	results, err := parseAll(context.Background(), pipeline.NewIngester(), sources(context.Background(), files, nil), 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "jan.csv", results[0].Filename)
	assert.Len(t, results[0].Transactions, 1)
	assert.Equal(t, "feb.csv", results[1].Filename)
	assert.Len(t, results[1].Transactions, 2)
	assert.NotEmpty(t, results[2].ReadErr)
	assert.Empty(t, results[2].Transactions)
}

func TestParseAllCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "jan.csv", "Date,Description,Amount\n2024-01-15,Whole Foods,-82.47\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := parseAll(ctx, pipeline.NewIngester(), sources(ctx, []string{path}, nil), 1)
	assert.Error(t, err)
}

func TestSources(t *testing.T) {
	srcs := sources(context.Background(), []string{"/tmp/a.csv", "gs://bucket/statements/b.csv"}, nil)
	require.Len(t, srcs, 2)
	assert.IsType(t, pipeline.DiskFile{}, srcs[0])
	assert.IsType(t, gcsuploader.ObjectSource{}, srcs[1])
	assert.Equal(t, "b.csv", srcs[1].Name())

	assert.True(t, needsGCS([]string{"a.csv", "gs://b/c.csv"}))
	assert.False(t, needsGCS([]string{"a.csv"}))
}
