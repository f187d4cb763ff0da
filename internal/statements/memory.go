package statements

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// MemoryRepository keeps statements in process memory. It is the default
// backend for local runs and tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	statements   map[string]domain.Statement
	transactions []domain.StoredTransaction
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		statements: make(map[string]domain.Statement),
	}
}

func (r *MemoryRepository) FindStatementByName(ctx context.Context, userID, name string) (*domain.Statement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, st := range r.statements {
		if st.UserID == userID && st.Name == name {
			out := st
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) GetStatement(ctx context.Context, statementID string) (*domain.Statement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.statements[statementID]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (r *MemoryRepository) InsertStatement(ctx context.Context, st *domain.Statement) error {
	if st.ID == "" {
		return fmt.Errorf("InsertStatement: statement ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.statements[st.ID]; exists {
		return fmt.Errorf("InsertStatement: statement %s already exists", st.ID)
	}
	r.statements[st.ID] = *st
	return nil
}

func (r *MemoryRepository) InsertTransactions(ctx context.Context, txs []domain.StoredTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transactions = append(r.transactions, txs...)
	return nil
}

func (r *MemoryRepository) ListStatements(ctx context.Context, userID string) ([]domain.Statement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Statement, 0)
	for _, st := range r.statements {
		if st.UserID == userID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.StoredTransaction, error) {
	r.mu.RLock()
	out := make([]domain.StoredTransaction, 0)
	for _, tx := range r.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) DeleteStatement(ctx context.Context, statementID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.statements[statementID]; !ok {
		return ErrNotFound
	}
	delete(r.statements, statementID)

	kept := r.transactions[:0]
	for _, tx := range r.transactions {
		if tx.StatementID != statementID {
			kept = append(kept, tx)
		}
	}
	r.transactions = kept
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
