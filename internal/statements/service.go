// Package statements is the statement backend: it stores uploaded
// statements with their transactions and rejects a second upload of the
// same filename for a user.
package statements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/summary"
)

// Limits for transaction listings.
const (
	DefaultTransactionLimit = 100
	MaxTransactionLimit     = 1000
	SummaryTransactionLimit = 500
	RecentTransactionCount  = 10
)

// TransactionList is the response of Service.Transactions.
type TransactionList struct {
	Transactions []domain.StoredTransaction `json:"transactions"`
	Count        int                        `json:"count"`
	Summary      summary.Summary            `json:"summary"`
}

// Overview is the financial summary across all of a user's statements.
type Overview struct {
	StatementsCount    int                     `json:"statements_count"`
	TransactionsCount  int                     `json:"transactions_count"`
	TotalIncome        float64                 `json:"total_income"`
	TotalExpenses      float64                 `json:"total_expenses"`
	NetSavings         float64                 `json:"net_savings"`
	SavingsRate        float64                 `json:"savings_rate"`
	TopCategories      []summary.CategoryTotal `json:"top_categories"`
	RecentTransactions []domain.Transaction    `json:"recent_transactions"`
	DateRange          summary.DateRange       `json:"date_range"`
	HasData            bool                    `json:"has_data"`
}

// Service implements the statement backend over a Repository.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
	log   zerolog.Logger

	// uploadMu serializes the duplicate check with the insert.
	uploadMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator overrides uuid generation for statement and transaction ids.
func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option { return func(s *Service) { s.log = log } }

// NewService creates a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload stores a parsed statement. A statement with the same filename for
// the same user is reported as a duplicate and nothing is written.
func (s *Service) Upload(ctx context.Context, upload *domain.StatementUpload) (*domain.UploadResult, error) {
	if err := validateUpload(upload); err != nil {
		return nil, err
	}
	userID := upload.UserID
	if userID == "" {
		userID = pipeline.DefaultUserID
	}

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	_, err := s.repo.FindStatementByName(ctx, userID, upload.Name)
	switch {
	case err == nil:
		s.log.Info().Str("user_id", userID).Str("name", upload.Name).Msg("Duplicate statement upload rejected")
		return &domain.UploadResult{
			Success:   false,
			Duplicate: true,
			Message:   fmt.Sprintf(pipeline.DuplicateMessage, upload.Name),
		}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("Upload: checking for duplicate: %w", err)
	}

	now := s.now().UTC()
	st := &domain.Statement{
		ID:            s.newID(),
		UserID:        userID,
		Name:          upload.Name,
		Size:          upload.Size,
		FileType:      upload.FileType,
		Status:        domain.StatementStatusCompleted,
		UploadedAt:    now,
		Checksum:      upload.Checksum,
		ExtractedData: upload.ExtractedData,
	}
	if err := s.repo.InsertStatement(ctx, st); err != nil {
		return nil, fmt.Errorf("Upload: inserting statement: %w", err)
	}

	stored := make([]domain.StoredTransaction, 0, len(upload.Transactions))
	for _, tx := range upload.Transactions {
		tx.ID = s.newID()
		stored = append(stored, domain.StoredTransaction{
			Transaction: tx,
			UserID:      userID,
			StatementID: st.ID,
			CreatedAt:   now,
		})
	}
	if len(stored) > 0 {
		if err := s.repo.InsertTransactions(ctx, stored); err != nil {
			if derr := s.repo.DeleteStatement(ctx, st.ID); derr != nil {
				s.log.Error().Err(derr).Str("statement_id", st.ID).Msg("Failed to roll back statement after transaction insert failure")
			}
			return nil, fmt.Errorf("Upload: inserting transactions: %w", err)
		}
	}

	s.log.Info().
		Str("user_id", userID).
		Str("statement_id", st.ID).
		Int("transactions", len(stored)).
		Msg("Statement uploaded")

	return &domain.UploadResult{
		Success:           true,
		StatementID:       st.ID,
		TransactionsSaved: len(stored),
		Message:           fmt.Sprintf("Statement '%s' uploaded successfully", upload.Name),
	}, nil
}

// SubmitStatement lets the pipeline persist straight into the service.
func (s *Service) SubmitStatement(ctx context.Context, upload *domain.StatementUpload) (*domain.UploadResult, error) {
	return s.Upload(ctx, upload)
}

func validateUpload(upload *domain.StatementUpload) error {
	if upload == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidUpload)
	}
	if strings.TrimSpace(upload.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUpload)
	}
	if upload.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidUpload)
	}
	if err := pipeline.ValidateTransactions(upload.Transactions); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	return nil
}

// List returns the user's statements, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Statement, error) {
	out, err := s.repo.ListStatements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return out, nil
}

// Transactions returns up to limit transactions with a summary over them.
// A non-positive limit means DefaultTransactionLimit.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) (*TransactionList, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	if limit > MaxTransactionLimit {
		limit = MaxTransactionLimit
	}

	stored, err := s.repo.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("Transactions: %w", err)
	}

	return &TransactionList{
		Transactions: stored,
		Count:        len(stored),
		Summary:      summary.Compute(plain(stored)),
	}, nil
}

// Delete removes a statement and its transactions.
func (s *Service) Delete(ctx context.Context, userID, statementID string) error {
	st, err := s.repo.GetStatement(ctx, statementID)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if st.UserID != userID {
		return fmt.Errorf("Delete: %w", ErrForbidden)
	}
	if err := s.repo.DeleteStatement(ctx, statementID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	s.log.Info().Str("user_id", userID).Str("statement_id", statementID).Msg("Statement deleted")
	return nil
}

// Summary aggregates the user's most recent SummaryTransactionLimit transactions.
func (s *Service) Summary(ctx context.Context, userID string) (*Overview, error) {
	sts, err := s.repo.ListStatements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Summary: listing statements: %w", err)
	}
	stored, err := s.repo.ListTransactions(ctx, userID, SummaryTransactionLimit)
	if err != nil {
		return nil, fmt.Errorf("Summary: listing transactions: %w", err)
	}

	txs := plain(stored)
	sum := summary.Compute(txs)
	return &Overview{
		StatementsCount:    len(sts),
		TransactionsCount:  len(txs),
		TotalIncome:        sum.TotalIncome,
		TotalExpenses:      sum.TotalExpenses,
		NetSavings:         sum.NetCashFlow,
		SavingsRate:        sum.SavingsRate,
		TopCategories:      sum.TopCategories,
		RecentTransactions: summary.Recent(txs, RecentTransactionCount),
		DateRange:          sum.DateRange,
		HasData:            len(txs) > 0,
	}, nil
}

func plain(stored []domain.StoredTransaction) []domain.Transaction {
	out := make([]domain.Transaction, len(stored))
	for i, st := range stored {
		out[i] = st.Transaction
	}
	return out
}

var _ pipeline.StatementSink = (*Service)(nil)
