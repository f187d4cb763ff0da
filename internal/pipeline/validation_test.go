package pipeline

import (
	"testing"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

func TestValidateTransaction(t *testing.T) {
	valid := domain.Transaction{
		ID:       "a.csv-1-0",
		Date:     "2024-01-15",
		Amount:   -10.5,
		Type:     domain.TypeExpense,
		Category: "Groceries",
	}

	tests := []struct {
		name    string
		mutate  func(tx *domain.Transaction)
		wantErr bool
	}{
		{
			name:    "valid transaction",
			mutate:  func(tx *domain.Transaction) {},
			wantErr: false,
		},
		{
			name:    "verbatim csv category",
			mutate:  func(tx *domain.Transaction) { tx.Category = "Food & Drink" },
			wantErr: false,
		},
		{
			name:    "zero amount",
			mutate:  func(tx *domain.Transaction) { tx.Amount = 0 },
			wantErr: true,
		},
		{
			name:    "impossible date",
			mutate:  func(tx *domain.Transaction) { tx.Date = "2024-02-30" },
			wantErr: true,
		},
		{
			name:    "unknown type",
			mutate:  func(tx *domain.Transaction) { tx.Type = "transfer" },
			wantErr: true,
		},
		{
			name:    "empty category",
			mutate:  func(tx *domain.Transaction) { tx.Category = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			err := ValidateTransaction(tx)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransaction() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTransactions_ReportsRow(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "ok", Date: "2024-01-01", Amount: 1, Type: domain.TypeIncome, Category: "Income"},
		{ID: "bad", Date: "2024-01-01", Amount: 0, Type: domain.TypeIncome, Category: "Income"},
	}

	err := ValidateTransactions(txs)
	if err == nil {
		t.Fatal("expected error for zero amount row")
	}
	if got := err.Error(); got[:5] != "row 1" {
		t.Errorf("expected error to name row 1, got %q", got)
	}
}

func TestModelCategory(t *testing.T) {
	if got := modelCategory("Dining"); got != "Dining" {
		t.Errorf("modelCategory(Dining) = %q", got)
	}
	if got := modelCategory("Food"); got != "" {
		t.Errorf("modelCategory(Food) = %q, want empty", got)
	}
}
