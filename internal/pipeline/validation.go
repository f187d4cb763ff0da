package pipeline

import (
	"fmt"
	"time"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
)

// ValidateTransaction checks the invariants every emitted or stored
// transaction holds: non-zero amount, a real calendar date, a known type.
func ValidateTransaction(tx domain.Transaction) error {
	if tx.Amount == 0 {
		return fmt.Errorf("transaction %q: amount is zero", tx.ID)
	}
	if _, err := time.Parse(domain.DateLayout, tx.Date); err != nil {
		return fmt.Errorf("transaction %q: invalid date %q: %w", tx.ID, tx.Date, err)
	}
	if tx.Type != domain.TypeIncome && tx.Type != domain.TypeExpense {
		return fmt.Errorf("transaction %q: invalid type %q", tx.ID, tx.Type)
	}
	if tx.Category == "" {
		return fmt.Errorf("transaction %q: category is empty", tx.ID)
	}
	return nil
}

// ValidateTransactions returns the first invariant violation in txs.
func ValidateTransactions(txs []domain.Transaction) error {
	for i, tx := range txs {
		if err := ValidateTransaction(tx); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// modelCategory keeps a model-assigned category only when it is one of the
// fixed labels; anything else is re-derived from the description.
func modelCategory(category string) string {
	if categorize.IsLabel(category) {
		return category
	}
	return ""
}
