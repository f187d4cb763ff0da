// Package firestore stores statements in Cloud Firestore, in the
// "documents" and "transactions" collections.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/statements"
)

const (
	documentsCollection    = "documents"
	transactionsCollection = "transactions"

	// maxBatchWrites is the Firestore limit on writes per batch.
	maxBatchWrites = 500
)

// Repository implements statements.Repository on Firestore.
type Repository struct {
	client *firestore.Client
}

// NewRepository opens a Firestore client for projectID.
func NewRepository(ctx context.Context, projectID string) (*Repository, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating firestore client: %w", err)
	}
	return NewRepositoryWithClient(client), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *firestore.Client) *Repository {
	return &Repository{client: client}
}

// Close closes the Firestore client.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (r *Repository) FindStatementByName(ctx context.Context, userID, name string) (*domain.Statement, error) {
	docs, err := r.client.Collection(documentsCollection).
		Where("user_id", "==", userID).
		Where("name", "==", name).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("FindStatementByName: querying: %w", err)
	}
	if len(docs) == 0 {
		return nil, statements.ErrNotFound
	}

	var st domain.Statement
	if err := docs[0].DataTo(&st); err != nil {
		return nil, fmt.Errorf("FindStatementByName: decoding: %w", err)
	}
	return &st, nil
}

func (r *Repository) GetStatement(ctx context.Context, statementID string) (*domain.Statement, error) {
	doc, err := r.client.Collection(documentsCollection).Doc(statementID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, statements.ErrNotFound
		}
		return nil, fmt.Errorf("GetStatement: %w", err)
	}

	var st domain.Statement
	if err := doc.DataTo(&st); err != nil {
		return nil, fmt.Errorf("GetStatement: decoding: %w", err)
	}
	return &st, nil
}

func (r *Repository) InsertStatement(ctx context.Context, st *domain.Statement) error {
	if _, err := r.client.Collection(documentsCollection).Doc(st.ID).Create(ctx, st); err != nil {
		return fmt.Errorf("InsertStatement: %w", err)
	}
	return nil
}

func (r *Repository) InsertTransactions(ctx context.Context, txs []domain.StoredTransaction) error {
	col := r.client.Collection(transactionsCollection)
	for _, chunk := range chunks(len(txs), maxBatchWrites) {
		batch := r.client.Batch()
		for _, tx := range txs[chunk[0]:chunk[1]] {
			batch.Set(col.Doc(tx.ID), tx)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("InsertTransactions: committing batch: %w", err)
		}
	}
	return nil
}

// ListStatements needs a composite index on (user_id, uploaded_at desc).
func (r *Repository) ListStatements(ctx context.Context, userID string) ([]domain.Statement, error) {
	docs, err := r.client.Collection(documentsCollection).
		Where("user_id", "==", userID).
		OrderBy("uploaded_at", firestore.Desc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("ListStatements: querying: %w", err)
	}

	out := make([]domain.Statement, 0, len(docs))
	for _, doc := range docs {
		var st domain.Statement
		if err := doc.DataTo(&st); err != nil {
			return nil, fmt.Errorf("ListStatements: decoding %s: %w", doc.Ref.ID, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// ListTransactions needs a composite index on (user_id, date desc).
func (r *Repository) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.StoredTransaction, error) {
	q := r.client.Collection(transactionsCollection).
		Where("user_id", "==", userID).
		OrderBy("date", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: querying: %w", err)
	}

	out := make([]domain.StoredTransaction, 0, len(docs))
	for _, doc := range docs {
		var tx domain.StoredTransaction
		if err := doc.DataTo(&tx); err != nil {
			return nil, fmt.Errorf("ListTransactions: decoding %s: %w", doc.Ref.ID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *Repository) DeleteStatement(ctx context.Context, statementID string) error {
	ref := r.client.Collection(documentsCollection).Doc(statementID)
	if _, err := ref.Get(ctx); err != nil {
		if isNotFound(err) {
			return statements.ErrNotFound
		}
		return fmt.Errorf("DeleteStatement: %w", err)
	}

	docs, err := r.client.Collection(transactionsCollection).
		Where("statement_id", "==", statementID).
		Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("DeleteStatement: querying transactions: %w", err)
	}
	for _, chunk := range chunks(len(docs), maxBatchWrites) {
		batch := r.client.Batch()
		for _, doc := range docs[chunk[0]:chunk[1]] {
			batch.Delete(doc.Ref)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("DeleteStatement: deleting transactions: %w", err)
		}
	}

	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("DeleteStatement: deleting statement: %w", err)
	}
	return nil
}

// chunks splits [0,n) into half-open ranges of at most size elements.
func chunks(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

var _ statements.Repository = (*Repository)(nil)
