package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Ingester wires the pipeline steps to their collaborators. All
// collaborators are optional; a bare Ingester only reads, parses and
// summarizes. It is safe for concurrent use when its collaborators are.
type Ingester struct {
	csv        *CSVParser
	normalizer *Normalizer
	ai         AIParser
	archiver   Archiver
	session    SessionPublisher
	sink       StatementSink
	cache      PendingCache
	userID     string
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

func WithAIParser(p AIParser) Option { return func(in *Ingester) { in.ai = p } }
func WithArchiver(a Archiver) Option { return func(in *Ingester) { in.archiver = a } }
func WithSession(s SessionPublisher) Option { return func(in *Ingester) { in.session = s } }
func WithSink(s StatementSink) Option { return func(in *Ingester) { in.sink = s } }
func WithPendingCache(c PendingCache) Option { return func(in *Ingester) { in.cache = c } }
func WithUserID(id string) Option { return func(in *Ingester) { in.userID = id } }
func WithClock(now func() time.Time) Option { return func(in *Ingester) { in.now = now } }
func WithLogger(log zerolog.Logger) Option { return func(in *Ingester) { in.log = log } }

// NewIngester creates an Ingester.
func NewIngester(opts ...Option) *Ingester {
	in := &Ingester{
		now:    time.Now,
		userID: DefaultUserID,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.csv = NewCSVParser(in.now, in.log)
	in.normalizer = NewNormalizer(in.now)
	return in
}

// NewStatementIngestionPipeline creates the standard six-step pipeline.
func (in *Ingester) NewStatementIngestionPipeline() *Pipeline {
	return NewPipeline(
		&ReadFileStep{},
		&ArchiveStep{archiver: in.archiver, now: in.now},
		&ParseStep{csv: in.csv, ai: in.ai, normalizer: in.normalizer, now: in.now},
		&SummarizeStep{},
		&PublishStep{session: in.session},
		&PersistStep{sink: in.sink, session: in.session, cache: in.cache},
	)
}

// NewParseOnlyPipeline reads, parses and summarizes without side effects.
func (in *Ingester) NewParseOnlyPipeline() *Pipeline {
	return NewPipeline(
		&ReadFileStep{},
		&ParseStep{csv: in.csv, ai: in.ai, normalizer: in.normalizer, now: in.now},
		&SummarizeStep{},
	)
}

// Ingest runs the full pipeline for one file. The returned error is non-nil
// only when ctx is cancelled; file-level failures are reported on Result.
func (in *Ingester) Ingest(ctx context.Context, fileID string, src FileSource, progress ProgressFunc) (*Result, error) {
	return in.run(ctx, in.NewStatementIngestionPipeline(), in.userID, fileID, src, progress)
}

// IngestFor is Ingest on behalf of userID. An empty userID means the
// Ingester's default user.
func (in *Ingester) IngestFor(ctx context.Context, userID, fileID string, src FileSource, progress ProgressFunc) (*Result, error) {
	if userID == "" {
		userID = in.userID
	}
	return in.run(ctx, in.NewStatementIngestionPipeline(), userID, fileID, src, progress)
}

// Parse reads and parses one file without publishing or persisting it.
func (in *Ingester) Parse(ctx context.Context, src FileSource) (*Result, error) {
	return in.run(ctx, in.NewParseOnlyPipeline(), in.userID, "", src, nil)
}

func (in *Ingester) run(ctx context.Context, p *Pipeline, userID, fileID string, src FileSource, progress ProgressFunc) (*Result, error) {
	if fileID == "" {
		fileID = uuid.NewString()
	}

	log := in.log.With().Str("file_id", fileID).Str("source", src.Name()).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{
		FileID:     fileID,
		UserID:     userID,
		Source:     src,
		OnProgress: progress,
	}

	err := p.Execute(ctx, state)
	res := state.result()
	if err != nil {
		log.Warn().Err(err).Msg("Statement ingestion cancelled")
		return res, err
	}

	log.Info().
		Int("transactions", len(res.Transactions)).
		Bool("duplicate", res.Duplicate).
		Msg("Statement ingested")
	return res, nil
}

func (s *PipelineState) result() *Result {
	res := &Result{
		FileID:       s.FileID,
		Filename:     s.Source.Name(),
		Transactions: s.Transactions,
		Summary:      s.Summary,
		ArchiveURI:   s.ArchiveURI,
		Uploaded:     s.Published,
		Cached:       s.Cached,
	}
	if s.Content != nil {
		res.FileType = s.Content.FileType
	}
	if s.Upload != nil {
		res.StatementID = s.Upload.StatementID
		res.Duplicate = s.Upload.Duplicate
		res.Message = s.Upload.Message
	}
	if s.ReadErr != nil {
		res.ReadErr = s.ReadErr.Error()
	}
	if s.ParseErr != nil {
		res.ParseErr = s.ParseErr.Error()
	}
	if s.PersistErr != nil {
		res.PersistErr = s.PersistErr.Error()
	}
	if res.Transactions == nil {
		res.Transactions = []domain.Transaction{}
	}
	return res
}
