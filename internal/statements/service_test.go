package statements

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// MockRepository wraps a MemoryRepository and lets tests inject failures.
type MockRepository struct {
	*MemoryRepository
	FindStatementByNameFunc func(ctx context.Context, userID, name string) (*domain.Statement, error)
	InsertTransactionsFunc  func(ctx context.Context, txs []domain.StoredTransaction) error
}

func (m *MockRepository) FindStatementByName(ctx context.Context, userID, name string) (*domain.Statement, error) {
	if m.FindStatementByNameFunc != nil {
		return m.FindStatementByNameFunc(ctx, userID, name)
	}
	return m.MemoryRepository.FindStatementByName(ctx, userID, name)
}

func (m *MockRepository) InsertTransactions(ctx context.Context, txs []domain.StoredTransaction) error {
	if m.InsertTransactionsFunc != nil {
		return m.InsertTransactionsFunc(ctx, txs)
	}
	return m.MemoryRepository.InsertTransactions(ctx, txs)
}

func newTestService(repo Repository) *Service {
	n := 0
	return NewService(repo,
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

func sampleUpload(user, name string) *domain.StatementUpload {
	return &domain.StatementUpload{
		UserID:   user,
		Name:     name,
		Size:     120,
		FileType: "text/csv",
		Transactions: []domain.Transaction{
			{ID: name + "-1-0", Date: "2024-01-20", Description: "Payroll", Amount: 3000, Type: domain.TypeIncome, Category: "Income", Source: name},
			{ID: name + "-2-0", Date: "2024-01-15", Description: "Whole Foods", Amount: -80, Type: domain.TypeExpense, Category: "Groceries", Source: name},
		},
	}
}

func TestService_Upload(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Upload(ctx, sampleUpload("u1", "jan.csv"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "id-1", res.StatementID)
	assert.Equal(t, 2, res.TransactionsSaved)
	assert.Equal(t, "Statement 'jan.csv' uploaded successfully", res.Message)

	st, err := repo.GetStatement(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatementStatusCompleted, st.Status)
	assert.Equal(t, testNow, st.UploadedAt)

	txs, err := repo.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.Equal(t, "id-1", tx.StatementID)
		assert.Equal(t, "u1", tx.UserID)
	}
}

func TestService_UploadDuplicate(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Upload(ctx, sampleUpload("u1", "jan.csv"))
	require.NoError(t, err)

	res, err := svc.Upload(ctx, sampleUpload("u1", "jan.csv"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "Statement 'jan.csv' already exists. Skipping upload.", res.Message)
	assert.Empty(t, res.StatementID)

	txs, err := repo.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	// Another user may upload the same filename.
	res, err = svc.Upload(ctx, sampleUpload("u2", "jan.csv"))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestService_UploadDefaultsUser(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	_, err := svc.Upload(context.Background(), sampleUpload("", "jan.csv"))
	require.NoError(t, err)

	sts, err := svc.List(context.Background(), "local-user")
	require.NoError(t, err)
	assert.Len(t, sts, 1)
}

func TestService_UploadInvalid(t *testing.T) {
	svc := newTestService(NewMemoryRepository())

	zero := sampleUpload("u1", "bad.csv")
	zero.Transactions[0].Amount = 0

	tests := []struct {
		name   string
		upload *domain.StatementUpload
	}{
		{"nil", nil},
		{"missing name", &domain.StatementUpload{UserID: "u1"}},
		{"negative size", &domain.StatementUpload{UserID: "u1", Name: "x.csv", Size: -1}},
		{"zero amount", zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), tt.upload)
			assert.ErrorIs(t, err, ErrInvalidUpload)
		})
	}
}

func TestService_UploadRollsBackOnTransactionFailure(t *testing.T) {
	repo := &MockRepository{
		MemoryRepository: NewMemoryRepository(),
		InsertTransactionsFunc: func(ctx context.Context, txs []domain.StoredTransaction) error {
			return errors.New("quota exceeded")
		},
	}
	svc := newTestService(repo)

	_, err := svc.Upload(context.Background(), sampleUpload("u1", "jan.csv"))
	require.Error(t, err)

	sts, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, sts)
}

func TestService_UploadLookupFailure(t *testing.T) {
	repo := &MockRepository{
		MemoryRepository: NewMemoryRepository(),
		FindStatementByNameFunc: func(ctx context.Context, userID, name string) (*domain.Statement, error) {
			return nil, errors.New("unavailable")
		},
	}
	svc := newTestService(repo)

	_, err := svc.Upload(context.Background(), sampleUpload("u1", "jan.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestService_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Upload(ctx, sampleUpload("u1", "jan.csv"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "u2", res.StatementID), ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, "u1", "missing"), ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "u1", res.StatementID))

	txs, err := repo.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)

	// The filename can be uploaded again once deleted.
	again, err := svc.Upload(ctx, sampleUpload("u1", "jan.csv"))
	require.NoError(t, err)
	assert.True(t, again.Success)
}

func TestService_Transactions(t *testing.T) {
	svc := newTestService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Upload(ctx, sampleUpload("u1", "jan.csv"))
	require.NoError(t, err)

	list, err := svc.Transactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "2024-01-20", list.Transactions[0].Date)
	assert.Equal(t, 3000.0, list.Summary.TotalIncome)
	assert.Equal(t, 80.0, list.Summary.TotalExpenses)

	limited, err := svc.Transactions(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, limited.Count)
}

func TestService_Summary(t *testing.T) {
	svc := newTestService(NewMemoryRepository())
	ctx := context.Background()

	empty, err := svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, empty.HasData)
	assert.Zero(t, empty.SavingsRate)

	_, err = svc.Upload(ctx, sampleUpload("u1", "jan.csv"))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, sampleUpload("u1", "feb.csv"))
	require.NoError(t, err)

	ov, err := svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ov.HasData)
	assert.Equal(t, 2, ov.StatementsCount)
	assert.Equal(t, 4, ov.TransactionsCount)
	assert.Equal(t, 6000.0, ov.TotalIncome)
	assert.Equal(t, 160.0, ov.TotalExpenses)
	assert.Equal(t, 5840.0, ov.NetSavings)
	assert.Equal(t, 97.3, ov.SavingsRate)
	require.Len(t, ov.TopCategories, 1)
	assert.Equal(t, "Groceries", ov.TopCategories[0].Category)
	assert.Len(t, ov.RecentTransactions, 4)
}

func TestService_SubmitStatement(t *testing.T) {
	svc := newTestService(NewMemoryRepository())

	res, err := svc.SubmitStatement(context.Background(), sampleUpload("u1", "jan.csv"))
	require.NoError(t, err)
	assert.True(t, res.Success)
}
