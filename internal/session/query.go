package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ErrInvalidQuery is returned for unknown sort fields, orders, types or dates.
var ErrInvalidQuery = errors.New("invalid query")

// SortField names the column transactions are ordered by.
type SortField string

const (
	SortByDate        SortField = "date"
	SortByAmount      SortField = "amount"
	SortByDescription SortField = "description"
	SortByCategory    SortField = "category"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// Query selects a page of session transactions. Zero values mean no filter,
// date descending and the first page of DefaultPageSize.
type Query struct {
	Category string
	Type     domain.TransactionType
	Search   string
	From     string // YYYY-MM-DD, inclusive
	To       string // YYYY-MM-DD, inclusive
	SortBy   SortField
	Order    SortOrder
	Page     int
	PageSize int
}

// Page is one page of query results.
type Page struct {
	Transactions []domain.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	TotalPages   int                  `json:"total_pages"`
}

func (q Query) normalize() (Query, error) {
	switch q.SortBy {
	case "":
		q.SortBy = SortByDate
	case SortByDate, SortByAmount, SortByDescription, SortByCategory:
	default:
		return q, fmt.Errorf("%w: sort field %q", ErrInvalidQuery, q.SortBy)
	}

	switch q.Order {
	case "":
		q.Order = OrderDesc
	case OrderAsc, OrderDesc:
	default:
		return q, fmt.Errorf("%w: order %q", ErrInvalidQuery, q.Order)
	}

	switch q.Type {
	case "", domain.TypeIncome, domain.TypeExpense:
	default:
		return q, fmt.Errorf("%w: type %q", ErrInvalidQuery, q.Type)
	}

	for _, d := range []string{q.From, q.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, d); err != nil {
			return q, fmt.Errorf("%w: date %q", ErrInvalidQuery, d)
		}
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Search = strings.ToLower(strings.TrimSpace(q.Search))
	return q, nil
}

func (q Query) matches(tx domain.Transaction) bool {
	if q.Category != "" && !strings.EqualFold(tx.Category, q.Category) {
		return false
	}
	if q.Type != "" && tx.Type != q.Type {
		return false
	}
	if q.From != "" && tx.Date < q.From {
		return false
	}
	if q.To != "" && tx.Date > q.To {
		return false
	}
	if q.Search != "" &&
		!strings.Contains(strings.ToLower(tx.Description), q.Search) &&
		!strings.Contains(strings.ToLower(tx.Category), q.Search) {
		return false
	}
	return true
}
