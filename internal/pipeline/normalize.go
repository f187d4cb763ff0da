package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
)

// dateLayouts are tried in order before the numeric day/month heuristic.
var dateLayouts = []string{
	domain.DateLayout,
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	time.RFC3339,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// incomeHints turn a transaction into income regardless of the amount sign.
var incomeHints = []string{"deposit", "income", "salary", "refund"}

// Normalizer turns parsed rows into canonical transactions.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer. A nil clock means time.Now; the clock
// is only consulted when a date cannot be parsed.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize converts row from source into a Transaction. stamp feeds the id.
func (n *Normalizer) Normalize(row Row, source string, stamp time.Time) domain.Transaction {
	return domain.Transaction{
		ID:          fmt.Sprintf("%s-%d-%d", source, row.Index, stamp.UnixMilli()),
		Date:        n.Date(row.Date),
		Description: row.Description,
		Amount:      row.Amount,
		Type:        TypeFor(row.Description, row.Amount),
		Category:    CategoryFor(row.Category, row.Description),
		Source:      source,
	}
}

// Date normalizes raw to YYYY-MM-DD. Unparseable input yields the clock's date.
func (n *Normalizer) Date(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(domain.DateLayout)
		}
	}
	if t, ok := parseNumericDate(raw); ok {
		return t.Format(domain.DateLayout)
	}
	return n.now().Format(domain.DateLayout)
}

// parseNumericDate handles slash or dash separated dates. A four digit first
// component means year-first; a first component above 12 means day-first;
// anything else is read month-first. Two digit years land in 2000-2099.
func parseNumericDate(raw string) (time.Time, bool) {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == '-' })
	if len(parts) != 3 {
		return time.Time{}, false
	}

	nums := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return time.Time{}, false
		}
		nums[i] = v
	}

	var year, month, day int
	switch {
	case len(strings.TrimSpace(parts[0])) == 4:
		year, month, day = nums[0], nums[1], nums[2]
	case nums[0] > 12:
		day, month, year = nums[0], nums[1], nums[2]
	default:
		month, day, year = nums[0], nums[1], nums[2]
	}
	if len(strings.TrimSpace(parts[2])) <= 2 && len(strings.TrimSpace(parts[0])) != 4 {
		year += 2000
	}

	if month < 1 || month > 12 || day < 1 || year < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// TypeFor derives income or expense from the amount sign, letting
// description hints such as "refund" force income.
func TypeFor(description string, amount float64) domain.TransactionType {
	lower := strings.ToLower(description)
	for _, hint := range incomeHints {
		if strings.Contains(lower, hint) {
			return domain.TypeIncome
		}
	}
	if amount > 0 {
		return domain.TypeIncome
	}
	return domain.TypeExpense
}

// CategoryFor prefers a non-empty category cell from the file, otherwise
// classifies the description.
func CategoryFor(csvCategory, description string) string {
	if c := strings.TrimSpace(csvCategory); c != "" {
		return c
	}
	return string(categorize.CategoryFor(description))
}
