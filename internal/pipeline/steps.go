package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/summary"
)

// PipelineStep represents a single step in the ingestion pipeline.
// Steps record file-level failures on the state and return an error only
// when the context is done.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// ProgressFunc is called after each completed step.
type ProgressFunc func(step string, done, total int)

// PipelineState holds the shared state across all pipeline steps for one file.
type PipelineState struct {
	FileID     string
	UserID     string
	Source     FileSource
	OnProgress ProgressFunc

	Content      *FileContent
	ArchiveURI   string
	Analysis     *PDFAnalysis
	Transactions []domain.Transaction
	Summary      summary.Summary
	Published    bool
	Upload       *domain.UploadResult
	Cached       bool

	ReadErr    error
	ArchiveErr error
	ParseErr   error
	PersistErr error
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ReadFileStep loads and decodes the file.
type ReadFileStep struct{}

func (s *ReadFileStep) Name() string { return StepRead }

func (s *ReadFileStep) Execute(ctx context.Context, state *PipelineState) error {
	content, err := ReadFile(ctx, state.Source)
	if err != nil {
		if isContextErr(err) {
			return err
		}
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to read statement file, continuing with zero transactions")
		state.ReadErr = err
		return nil
	}
	state.Content = content
	return nil
}

// ArchiveStep copies the raw file to object storage. Failures are logged only.
type ArchiveStep struct {
	archiver Archiver
	now      func() time.Time
}

func (s *ArchiveStep) Name() string { return StepArchive }

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.archiver == nil || state.Content == nil {
		return nil
	}

	object := ArchiveObjectName(state.Content.Name, s.now())
	uri, err := s.archiver.Archive(ctx, object, state.Content.Raw, state.Content.FileType)
	if err != nil {
		if isContextErr(err) {
			return err
		}
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("object", object).Msg("Failed to archive raw statement")
		state.ArchiveErr = stageError(StageArchive, state.Content.Name, err)
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// ParseStep extracts transactions with the CSV parser or the AI document parser.
type ParseStep struct {
	csv        *CSVParser
	ai         AIParser
	normalizer *Normalizer
	now        func() time.Time
}

func (s *ParseStep) Name() string { return StepParse }

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Transactions = make([]domain.Transaction, 0)
	if state.Content == nil {
		return nil
	}
	content := state.Content
	log := logger.FromContext(ctx)

	switch {
	case content.FileType == FileTypeCSV || content.FileType == FileTypeText:
		state.Transactions = s.csv.Parse(content.Text, content.Name)

	case IsDocumentType(content.FileType):
		txs, err := s.parseDocument(ctx, state)
		if err != nil {
			if isContextErr(err) {
				return err
			}
			log.Warn().Err(err).Msg("Failed to parse statement document, continuing with zero transactions")
			state.ParseErr = stageError(StageParse, content.Name, err)
			return nil
		}
		state.Transactions = txs

	default:
		log.Warn().Str("file_type", content.FileType).Msg("Unsupported statement type")
		state.ParseErr = stageError(StageParse, content.Name, fmt.Errorf("%w: %s", ErrUnsupportedFileType, content.FileType))
	}
	return nil
}

func (s *ParseStep) parseDocument(ctx context.Context, state *PipelineState) ([]domain.Transaction, error) {
	if s.ai == nil {
		return nil, ErrNoDocumentParser
	}
	content := state.Content

	maxTokens := 0
	if content.FileType == FileTypePDF {
		state.Analysis = AnalyzePDF(content.Raw)
		maxTokens = state.Analysis.MaxOutputTokens
	}

	raw, err := s.ai.ParseStatement(ctx, content.Raw, content.FileType, maxTokens)
	if err != nil {
		return nil, err
	}

	rows, _, err := transformModelOutputToRows(raw)
	if err != nil {
		return nil, err
	}

	stamp := s.now()
	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		row.Category = modelCategory(row.Category)
		tx := s.normalizer.Normalize(row, content.Name, stamp)
		if ValidateTransaction(tx) != nil {
			continue
		}
		txs = append(txs, tx)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date > txs[j].Date
	})
	return txs, nil
}

// SummarizeStep computes the display summary.
type SummarizeStep struct{}

func (s *SummarizeStep) Name() string { return StepSummarize }

func (s *SummarizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Summary = summary.Compute(state.Transactions)
	return nil
}

// PublishStep adds the transactions to the session before persistence completes.
type PublishStep struct {
	session SessionPublisher
}

func (s *PublishStep) Name() string { return StepPublish }

func (s *PublishStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.session == nil || state.Content == nil {
		return nil
	}
	s.session.Append(state.Content.Name, state.Transactions)
	state.Published = true
	return nil
}

// PersistStep submits the statement to the sink. A duplicate rolls back the
// batch this run published; other failures keep the session data and park the upload
// in the pending cache.
type PersistStep struct {
	sink    StatementSink
	session SessionPublisher
	cache   PendingCache
}

func (s *PersistStep) Name() string { return StepPersist }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.sink == nil || state.Content == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	upload := buildUpload(state)

	res, err := s.sink.SubmitStatement(ctx, upload)
	if err != nil {
		if isContextErr(err) {
			return err
		}
		log.Error().Err(err).Msg("Failed to persist statement, keeping local data")
		state.PersistErr = stageError(StagePersist, state.Content.Name, err)
		if s.cache != nil {
			if cerr := s.cache.Put(upload); cerr != nil {
				log.Error().Err(cerr).Msg("Failed to cache pending upload")
			} else {
				state.Cached = true
			}
		}
		return nil
	}

	state.Upload = res
	if res.Duplicate {
		if state.Published && s.session != nil {
			s.session.Discard(state.Content.Name, state.Transactions)
			state.Published = false
		}
		log.Warn().Str("message", res.Message).Msg("Duplicate statement rejected")
	}
	return nil
}

func buildUpload(state *PipelineState) *domain.StatementUpload {
	userID := state.UserID
	if userID == "" {
		userID = DefaultUserID
	}
	return &domain.StatementUpload{
		UserID:        userID,
		Name:          state.Content.Name,
		Size:          state.Content.Size,
		FileType:      state.Content.FileType,
		Checksum:      state.Content.Checksum,
		ExtractedData: summaryMap(state.Summary),
		Transactions:  state.Transactions,
	}
}

// summaryMap flattens a summary for the backend's extracted_data field.
func summaryMap(s summary.Summary) map[string]interface{} {
	breakdown := make(map[string]interface{}, len(s.CategoryBreakdown))
	for _, c := range s.CategoryBreakdown {
		breakdown[c.Category] = c.Amount
	}
	return map[string]interface{}{
		"total_income":       s.TotalIncome,
		"total_expenses":     s.TotalExpenses,
		"net_cash_flow":      s.NetCashFlow,
		"savings_rate":       s.SavingsRate,
		"transaction_count":  s.TransactionCount,
		"date_range":         s.DateRange.Display,
		"category_breakdown": breakdown,
	}
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all steps sequentially, stopping early if ctx is done.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline cancelled before step %d (%s): %w", i+1, step.Name(), err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		if state.OnProgress != nil {
			state.OnProgress(step.Name(), i+1, len(p.steps))
		}
	}
	return nil
}
