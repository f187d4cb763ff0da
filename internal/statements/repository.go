package statements

import (
	"context"
	"errors"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Sentinel errors returned by the service and its repositories.
var (
	ErrNotFound      = errors.New("statement not found")
	ErrForbidden     = errors.New("not authorized to access this statement")
	ErrInvalidUpload = errors.New("invalid statement upload")
)

// Repository persists statements and their transactions. Implementations
// return ErrNotFound for unknown statement ids.
type Repository interface {
	// FindStatementByName returns the user's statement with the given
	// filename, or ErrNotFound.
	FindStatementByName(ctx context.Context, userID, name string) (*domain.Statement, error)

	// GetStatement returns a statement by id, or ErrNotFound.
	GetStatement(ctx context.Context, statementID string) (*domain.Statement, error)

	// InsertStatement stores a new statement record.
	InsertStatement(ctx context.Context, st *domain.Statement) error

	// InsertTransactions stores transactions that reference a statement.
	InsertTransactions(ctx context.Context, txs []domain.StoredTransaction) error

	// ListStatements returns the user's statements, newest upload first.
	ListStatements(ctx context.Context, userID string) ([]domain.Statement, error)

	// ListTransactions returns up to limit of the user's transactions, newest date first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.StoredTransaction, error)

	// DeleteStatement removes a statement and every transaction that references it.
	DeleteStatement(ctx context.Context, statementID string) error
}
