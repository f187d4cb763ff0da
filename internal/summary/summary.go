// Package summary computes display statistics over a list of transactions.
package summary

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// TopCategoryCount is how many categories Summary.TopCategories holds.
const TopCategoryCount = 5

const displayLayout = "Jan 2, 2006"

// CategoryTotal is the expense total of one category.
type CategoryTotal struct {
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// DateRange is the span covered by the transactions.
type DateRange struct {
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Display string `json:"display,omitempty"`
}

// Summary holds every figure derived from a transaction list.
// TotalIncome and TotalExpenses are both non-negative.
type Summary struct {
	TotalIncome       float64         `json:"total_income"`
	TotalExpenses     float64         `json:"total_expenses"`
	NetCashFlow       float64         `json:"net_cash_flow"`
	SavingsRate       float64         `json:"savings_rate"`
	CategoryBreakdown []CategoryTotal `json:"category_breakdown"`
	TopCategories     []CategoryTotal `json:"top_categories"`
	DateRange         DateRange       `json:"date_range"`
	TransactionCount  int             `json:"transaction_count"`
}

// Compute reduces txs into a Summary. It never mutates txs.
func Compute(txs []domain.Transaction) Summary {
	income := decimal.Zero
	expenses := decimal.Zero
	byCategory := make(map[string]decimal.Decimal)
	counts := make(map[string]int)

	var first, last time.Time
	for _, tx := range txs {
		amt := decimal.NewFromFloat(tx.Amount).Abs()
		if tx.IsIncome() {
			income = income.Add(amt)
		} else {
			expenses = expenses.Add(amt)
			byCategory[tx.Category] = byCategory[tx.Category].Add(amt)
			counts[tx.Category]++
		}

		d := tx.Time()
		if d.IsZero() {
			continue
		}
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}

	s := Summary{
		TotalIncome:       toCents(income),
		TotalExpenses:     toCents(expenses),
		NetCashFlow:       toCents(income.Sub(expenses)),
		SavingsRate:       savingsRate(income, expenses),
		CategoryBreakdown: breakdown(byCategory, counts, expenses),
		TransactionCount:  len(txs),
	}

	if !first.IsZero() {
		s.DateRange = DateRange{
			Start:   first.Format(domain.DateLayout),
			End:     last.Format(domain.DateLayout),
			Display: first.Format(displayLayout) + " - " + last.Format(displayLayout),
		}
	}

	top := s.CategoryBreakdown
	if len(top) > TopCategoryCount {
		top = top[:TopCategoryCount]
	}
	s.TopCategories = append([]CategoryTotal(nil), top...)

	return s
}

func breakdown(byCategory map[string]decimal.Decimal, counts map[string]int, total decimal.Decimal) []CategoryTotal {
	out := make([]CategoryTotal, 0, len(byCategory))
	for cat, amt := range byCategory {
		ct := CategoryTotal{
			Category: cat,
			Amount:   toCents(amt),
			Count:    counts[cat],
		}
		if total.IsPositive() {
			ct.Percentage = amt.Div(total).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		}
		out = append(out, ct)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// savingsRate is net cash flow as a percentage of income, to one decimal.
func savingsRate(income, expenses decimal.Decimal) float64 {
	if !income.IsPositive() {
		return 0
	}
	return income.Sub(expenses).Div(income).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
}

func toCents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Recent returns up to n transactions, newest first. Ties keep input order.
func Recent(txs []domain.Transaction, n int) []domain.Transaction {
	out := append([]domain.Transaction(nil), txs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
