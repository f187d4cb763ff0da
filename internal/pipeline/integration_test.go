package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

const sampleCSV = "Date,Description,Amount\n" +
	"2024-01-15,Whole Foods Market,-82.47\n" +
	"2024-01-20,Direct Deposit Payroll,3200.00\n"

func sampleFile() pipeline.BytesFile {
	return pipeline.BytesFile{Filename: "jan.csv", Data: []byte(sampleCSV)}
}

func newTestIngester(opts ...pipeline.Option) *pipeline.Ingester {
	base := []pipeline.Option{
		pipeline.WithClock(func() time.Time { return testNow }),
		pipeline.WithUserID("user-1"),
	}
	return pipeline.NewIngester(append(base, opts...)...)
}

func TestIngest_CSVPublishesAndPersists(t *testing.T) {
	session := NewMockSession()
	sink := &MockSink{}
	ingester := newTestIngester(pipeline.WithSession(session), pipeline.WithSink(sink))

	res, err := ingester.Ingest(context.Background(), "", sampleFile(), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.FileID)
	assert.Equal(t, "jan.csv", res.Filename)
	assert.Equal(t, pipeline.FileTypeCSV, res.FileType)
	require.Len(t, res.Transactions, 2)

	// Newest first.
	assert.Equal(t, "2024-01-20", res.Transactions[0].Date)
	assert.Equal(t, domain.TypeIncome, res.Transactions[0].Type)
	assert.Equal(t, "Income", res.Transactions[0].Category)
	assert.Equal(t, "Groceries", res.Transactions[1].Category)
	assert.Equal(t, "jan.csv", res.Transactions[1].Source)

	assert.Equal(t, 3200.0, res.Summary.TotalIncome)
	assert.Equal(t, 82.47, res.Summary.TotalExpenses)

	assert.True(t, res.Uploaded)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "stmt-1", res.StatementID)
	assert.Empty(t, res.PersistErr)
	assert.Equal(t, 2, session.Count("jan.csv"))

	require.Len(t, sink.Calls, 1)
	upload := sink.Calls[0]
	assert.Equal(t, "user-1", upload.UserID)
	assert.Equal(t, "jan.csv", upload.Name)
	assert.Equal(t, int64(len(sampleCSV)), upload.Size)
	assert.Len(t, upload.Checksum, 64)
	assert.Equal(t, 2, upload.ExtractedData["transaction_count"])
}

func TestIngest_DuplicateRollsBackSession(t *testing.T) {
	session := NewMockSession()
	sink := &MockSink{
		SubmitStatementFunc: func(ctx context.Context, upload *domain.StatementUpload) (*domain.UploadResult, error) {
			return &domain.UploadResult{
				Duplicate: true,
				Message:   fmt.Sprintf(pipeline.DuplicateMessage, upload.Name),
			}, nil
		},
	}
	ingester := newTestIngester(pipeline.WithSession(session), pipeline.WithSink(sink))

	res, err := ingester.Ingest(context.Background(), "f", sampleFile(), nil)
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.False(t, res.Uploaded)
	assert.Equal(t, "Statement 'jan.csv' already exists. Skipping upload.", res.Message)
	assert.Equal(t, 0, session.Count("jan.csv"))
	assert.Equal(t, []string{"jan.csv"}, session.removed)
	// Parsed rows are still reported to the caller.
	assert.Len(t, res.Transactions, 2)
}

func TestIngest_SinkFailureParksUpload(t *testing.T) {
	session := NewMockSession()
	cache := &MockCache{}
	sink := &MockSink{
		SubmitStatementFunc: func(ctx context.Context, upload *domain.StatementUpload) (*domain.UploadResult, error) {
			return nil, errors.New("backend unavailable")
		},
	}
	ingester := newTestIngester(
		pipeline.WithSession(session),
		pipeline.WithSink(sink),
		pipeline.WithPendingCache(cache),
	)

	res, err := ingester.Ingest(context.Background(), "f", sampleFile(), nil)
	require.NoError(t, err)

	assert.Contains(t, res.PersistErr, "backend unavailable")
	assert.True(t, res.Cached)
	assert.True(t, res.Uploaded)
	assert.Equal(t, 2, session.Count("jan.csv"))
	require.Len(t, cache.Pending, 1)
	assert.Equal(t, "jan.csv", cache.Pending[0].Name)
}

func TestIngest_CacheFailureIsReported(t *testing.T) {
	cache := &MockCache{PutFunc: func(*domain.StatementUpload) error { return errors.New("disk full") }}
	sink := &MockSink{
		SubmitStatementFunc: func(ctx context.Context, upload *domain.StatementUpload) (*domain.UploadResult, error) {
			return nil, errors.New("backend unavailable")
		},
	}
	ingester := newTestIngester(pipeline.WithSink(sink), pipeline.WithPendingCache(cache))

	res, err := ingester.Ingest(context.Background(), "f", sampleFile(), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.PersistErr)
	assert.False(t, res.Cached)
}

func TestIngest_PDFUsesAIParser(t *testing.T) {
	var gotType string
	var gotTokens int
	ai := &MockAIParser{
		ParseStatementFunc: func(ctx context.Context, data []byte, fileType string, maxOutputTokens int) (map[string]interface{}, error) {
			gotType = fileType
			gotTokens = maxOutputTokens
			return map[string]interface{}{
				"transactions": []interface{}{
					map[string]interface{}{"date": "2024-02-03", "description": "Netflix", "amount": -15.99, "category": "Pets"},
					map[string]interface{}{"date": "2024-02-05", "description": "Payroll", "amount": 2000.0, "category": "Income"},
					map[string]interface{}{"date": "2024-02-06", "description": "Nothing", "amount": 0.0},
				},
			}, nil
		},
	}
	ingester := newTestIngester(pipeline.WithAIParser(ai))

	src := pipeline.BytesFile{Filename: "feb.pdf", Data: []byte("%PDF-1.4 not really")}
	res, err := ingester.Ingest(context.Background(), "f", src, nil)
	require.NoError(t, err)

	assert.Equal(t, pipeline.FileTypePDF, gotType)
	assert.Equal(t, 8192, gotTokens)
	assert.Empty(t, res.ParseErr)

	require.Len(t, res.Transactions, 2)
	assert.Equal(t, "2024-02-05", res.Transactions[0].Date)
	assert.Equal(t, "Income", res.Transactions[0].Category)
	// Labels outside the fixed set are re-derived from the description.
	assert.Equal(t, "Entertainment", res.Transactions[1].Category)
	assert.Equal(t, domain.TypeExpense, res.Transactions[1].Type)
}

func TestIngest_DocumentWithoutAIParser(t *testing.T) {
	sink := &MockSink{}
	ingester := newTestIngester(pipeline.WithSink(sink))

	src := pipeline.BytesFile{Filename: "scan.png", Data: []byte("\x89PNG\r\n\x1a\n")}
	res, err := ingester.Ingest(context.Background(), "f", src, nil)
	require.NoError(t, err)

	assert.Contains(t, res.ParseErr, pipeline.ErrNoDocumentParser.Error())
	assert.Empty(t, res.Transactions)
	// The statement record is still written with zero transactions.
	require.Len(t, sink.Calls, 1)
	assert.Empty(t, sink.Calls[0].Transactions)
}

func TestIngest_UnsupportedFileType(t *testing.T) {
	ingester := newTestIngester()

	src := pipeline.BytesFile{Filename: "export.zip", Data: []byte("PK\x03\x04rest")}
	res, err := ingester.Ingest(context.Background(), "f", src, nil)
	require.NoError(t, err)

	assert.Contains(t, res.ParseErr, pipeline.ErrUnsupportedFileType.Error())
	assert.Empty(t, res.Transactions)
}

func TestIngest_ReadFailure(t *testing.T) {
	session := NewMockSession()
	sink := &MockSink{}
	ingester := newTestIngester(pipeline.WithSession(session), pipeline.WithSink(sink))

	src := pipeline.DiskFile{Path: filepath.Join(t.TempDir(), "missing.csv")}
	res, err := ingester.Ingest(context.Background(), "f", src, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ReadErr)
	assert.NotNil(t, res.Transactions)
	assert.Empty(t, res.Transactions)
	assert.False(t, res.Uploaded)
	assert.Empty(t, sink.Calls)
	assert.Equal(t, 0, session.Count("missing.csv"))
}

func TestIngest_ArchivesRawFile(t *testing.T) {
	var gotName, gotType string
	archiver := &MockArchiver{
		ArchiveFunc: func(ctx context.Context, name string, data []byte, contentType string) (string, error) {
			gotName, gotType = name, contentType
			return "gs://bucket/" + name, nil
		},
	}
	ingester := newTestIngester(pipeline.WithArchiver(archiver))

	res, err := ingester.Ingest(context.Background(), "f", sampleFile(), nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotName, "statements/2024/03/10/"))
	assert.True(t, strings.HasSuffix(gotName, "-jan.csv"))
	assert.Equal(t, pipeline.FileTypeCSV, gotType)
	assert.Equal(t, "gs://bucket/"+gotName, res.ArchiveURI)
}

func TestIngest_ArchiveFailureIsNotFatal(t *testing.T) {
	archiver := &MockArchiver{
		ArchiveFunc: func(ctx context.Context, name string, data []byte, contentType string) (string, error) {
			return "", errors.New("permission denied")
		},
	}
	ingester := newTestIngester(pipeline.WithArchiver(archiver))

	res, err := ingester.Ingest(context.Background(), "f", sampleFile(), nil)
	require.NoError(t, err)

	assert.Empty(t, res.ArchiveURI)
	assert.Len(t, res.Transactions, 2)
}

func TestIngest_CancelledBeforeStart(t *testing.T) {
	session := NewMockSession()
	ingester := newTestIngester(pipeline.WithSession(session))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := ingester.Ingest(ctx, "f", sampleFile(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, 0, session.Count("jan.csv"))
}

func TestIngest_CancelledDuringParse(t *testing.T) {
	session := NewMockSession()
	sink := &MockSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ai := &MockAIParser{
		ParseStatementFunc: func(ctx context.Context, data []byte, fileType string, maxOutputTokens int) (map[string]interface{}, error) {
			cancel()
			return nil, ctx.Err()
		},
	}
	ingester := newTestIngester(pipeline.WithAIParser(ai), pipeline.WithSession(session), pipeline.WithSink(sink))

	src := pipeline.BytesFile{Filename: "feb.pdf", Data: []byte("%PDF-1.4")}
	_, err := ingester.Ingest(ctx, "f", src, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, session.Count("feb.pdf"))
	assert.Empty(t, sink.Calls)
}

func TestIngest_ReportsProgress(t *testing.T) {
	type call struct {
		step        string
		done, total int
	}
	var calls []call
	progress := func(step string, done, total int) {
		calls = append(calls, call{step, done, total})
	}

	ingester := newTestIngester()
	_, err := ingester.Ingest(context.Background(), "f", sampleFile(), progress)
	require.NoError(t, err)

	require.Len(t, calls, 6)
	assert.Equal(t, call{pipeline.StepRead, 1, 6}, calls[0])
	assert.Equal(t, call{pipeline.StepPersist, 6, 6}, calls[5])
}

func TestParse_HasNoSideEffects(t *testing.T) {
	session := NewMockSession()
	sink := &MockSink{}
	ingester := newTestIngester(pipeline.WithSession(session), pipeline.WithSink(sink))

	res, err := ingester.Parse(context.Background(), sampleFile())
	require.NoError(t, err)

	assert.Len(t, res.Transactions, 2)
	assert.False(t, res.Uploaded)
	assert.Empty(t, sink.Calls)
	assert.Equal(t, 0, session.Count("jan.csv"))
}

func TestIngestFor_UsesCallerUser(t *testing.T) {
	sink := &MockSink{}
	ingester := newTestIngester(pipeline.WithSink(sink))

	_, err := ingester.IngestFor(context.Background(), "alice", "f1", sampleFile(), nil)
	require.NoError(t, err)
	_, err = ingester.IngestFor(context.Background(), "", "f2", sampleFile(), nil)
	require.NoError(t, err)

	require.Len(t, sink.Calls, 2)
	assert.Equal(t, "alice", sink.Calls[0].UserID)
	assert.Equal(t, "user-1", sink.Calls[1].UserID)
}
