package domain

import (
	"time"
)

// DateLayout is the ISO-8601 calendar date layout used for Transaction.Date.
const DateLayout = "2006-01-02"

// TransactionType says whether money came in or went out.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Transaction is one normalized statement line.
// Amount keeps the sign found in the source row; Type is derived from the
// sign and from description hints such as "refund".
type Transaction struct {
	ID          string          `json:"id" firestore:"id"`
	Date        string          `json:"date" firestore:"date"`
	Description string          `json:"description" firestore:"description"`
	Amount      float64         `json:"amount" firestore:"amount"`
	Type        TransactionType `json:"type" firestore:"type"`
	Category    string          `json:"category" firestore:"category"`
	Source      string          `json:"source" firestore:"source"`
}

// Time returns the parsed Date, or the zero time if Date is malformed.
func (t Transaction) Time() time.Time {
	d, err := time.Parse(DateLayout, t.Date)
	if err != nil {
		return time.Time{}
	}
	return d
}

// IsIncome reports whether the transaction counts towards income.
func (t Transaction) IsIncome() bool {
	return t.Type == TypeIncome
}
