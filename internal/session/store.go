// Package session holds the transactions ingested during the current session.
// A Store is created once and injected into the pipeline and the HTTP handlers.
package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/summary"
)

// Upload statuses shown next to each file.
const (
	UploadStatusUploaded  = "uploaded"
	UploadStatusDuplicate = "duplicate"
	UploadStatusFailed    = "failed"
	UploadStatusCancelled = "cancelled"
)

// UploadStatus is the latest outcome for one ingested file.
type UploadStatus struct {
	FileID       string    `json:"file_id"`
	Filename     string    `json:"filename"`
	Status       string    `json:"status"`
	Transactions int       `json:"transactions"`
	Message      string    `json:"message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	bySource    map[string][]domain.Transaction
	sources     []string
	uploads     map[string]UploadStatus
	uploadOrder []string
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		bySource: make(map[string][]domain.Transaction),
		uploads:  make(map[string]UploadStatus),
	}
}

// Append adds txs under source, after anything already held for it.
func (s *Store) Append(source string, txs []domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySource[source]; !ok {
		s.sources = append(s.sources, source)
	}
	s.bySource[source] = append(s.bySource[source], txs...)
}

// Replace swaps everything held for source with txs.
func (s *Store) Replace(source string, txs []domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySource[source]; !ok {
		s.sources = append(s.sources, source)
	}
	s.bySource[source] = append([]domain.Transaction(nil), txs...)
}

// Discard removes one batch previously passed to Append for source, matching
// transactions by id from the most recent end. Other batches from the same
// file stay.
func (s *Store) Discard(source string, txs []domain.Transaction) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.bySource[source]
	if !ok {
		return 0
	}

	pending := make(map[string]int, len(txs))
	for _, tx := range txs {
		pending[tx.ID]++
	}

	removed := 0
	kept := make([]domain.Transaction, 0, len(held))
	for i := len(held) - 1; i >= 0; i-- {
		if pending[held[i].ID] > 0 {
			pending[held[i].ID]--
			removed++
			continue
		}
		kept = append(kept, held[i])
	}
	if len(kept) == 0 {
		s.removeLocked(source)
		return removed
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	s.bySource[source] = kept
	return removed
}

// Remove drops every transaction from source and returns how many there were.
func (s *Store) Remove(source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, ok := s.bySource[source]
	if !ok {
		return 0
	}
	s.removeLocked(source)
	return len(txs)
}

func (s *Store) removeLocked(source string) {
	delete(s.bySource, source)
	for i, src := range s.sources {
		if src == source {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			break
		}
	}
}

// Clear empties the session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bySource = make(map[string][]domain.Transaction)
	s.sources = nil
	s.uploads = make(map[string]UploadStatus)
	s.uploadOrder = nil
}

// SetUpload records the latest status for a file, keyed by file id.
func (s *Store) SetUpload(u UploadStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now()
	}
	if _, ok := s.uploads[u.FileID]; !ok {
		s.uploadOrder = append(s.uploadOrder, u.FileID)
	}
	s.uploads[u.FileID] = u
}

// Uploads returns file statuses in the order the files were first seen.
func (s *Store) Uploads() []UploadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UploadStatus, 0, len(s.uploadOrder))
	for _, id := range s.uploadOrder {
		out = append(out, s.uploads[id])
	}
	return out
}

// Sources returns the filenames currently held.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.sources...)
}

// All returns a copy of every transaction, newest first.
func (s *Store) All() []domain.Transaction {
	s.mu.RLock()
	out := make([]domain.Transaction, 0, s.lenLocked())
	for _, src := range s.sources {
		out = append(out, s.bySource[src]...)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out
}

// Len returns the number of transactions held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lenLocked()
}

func (s *Store) lenLocked() int {
	n := 0
	for _, txs := range s.bySource {
		n += len(txs)
	}
	return n
}

// Summary aggregates everything in the session.
func (s *Store) Summary() summary.Summary {
	return summary.Compute(s.All())
}

// Query filters, sorts and pages the session's transactions.
func (s *Store) Query(q Query) (Page, error) {
	q, err := q.normalize()
	if err != nil {
		return Page{}, err
	}

	matched := make([]domain.Transaction, 0)
	for _, tx := range s.All() {
		if q.matches(tx) {
			matched = append(matched, tx)
		}
	}
	sortTransactions(matched, q.SortBy, q.Order)

	total := len(matched)
	// Pages past the end are empty. Compare before multiplying so large
	// page numbers cannot overflow.
	start := total
	if q.Page-1 < (total+q.PageSize-1)/q.PageSize {
		start = (q.Page - 1) * q.PageSize
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	totalPages := (total + q.PageSize - 1) / q.PageSize
	return Page{
		Transactions: matched[start:end],
		Total:        total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages,
	}, nil
}

func sortTransactions(txs []domain.Transaction, by SortField, order SortOrder) {
	less := func(a, b domain.Transaction) bool {
		switch by {
		case SortByAmount:
			return a.Amount < b.Amount
		case SortByDescription:
			return strings.ToLower(a.Description) < strings.ToLower(b.Description)
		case SortByCategory:
			return a.Category < b.Category
		default:
			return a.Date < b.Date
		}
	}
	sort.SliceStable(txs, func(i, j int) bool {
		if order == OrderAsc {
			return less(txs[i], txs[j])
		}
		return less(txs[j], txs[i])
	})
}
