// Package bigquery stores statements and transactions in BigQuery.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/statements"
)

const (
	statementsTable   = "statements"
	transactionsTable = "transactions"
)

// Repository is the BigQuery implementation of statements.Repository. It
// holds a shared client to avoid creating a new connection per operation.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRepository creates a Repository with its own client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, projectID, datasetID), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, projectID, datasetID string) *Repository {
	return &Repository{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying client, e.g. for migrations.
func (r *Repository) Client() *bigquery.Client {
	return r.client
}

// table returns the fully qualified, backquoted table name.
func (r *Repository) table(name string) string {
	return "`" + r.projectID + "." + r.datasetID + "." + name + "`"
}

// InsertStatement inserts a single statement row.
func (r *Repository) InsertStatement(ctx context.Context, st *domain.Statement) error {
	row, err := toStatementRow(st)
	if err != nil {
		return fmt.Errorf("InsertStatement: %w", err)
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(statementsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertStatement: inserting row: %w", err)
	}
	return nil
}

// InsertTransactions inserts a batch of transaction rows.
func (r *Repository) InsertTransactions(ctx context.Context, txs []domain.StoredTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		row, err := toTransactionRow(tx)
		if err != nil {
			return fmt.Errorf("InsertTransactions: %w", err)
		}
		rows = append(rows, row)
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

const statementColumns = `
			statement_id,
			user_id,
			name,
			size,
			file_type,
			status,
			uploaded_ts,
			checksum_sha256,
			extracted_data`

// FindStatementByName returns the user's statement with the given filename.
func (r *Repository) FindStatementByName(ctx context.Context, userID, name string) (*domain.Statement, error) {
	q := r.client.Query(`
		SELECT` + statementColumns + `
		FROM ` + r.table(statementsTable) + `
		WHERE user_id = @user_id AND name = @name
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "name", Value: name},
	}
	return r.readOneStatement(ctx, q, "FindStatementByName")
}

// GetStatement returns a statement by id.
func (r *Repository) GetStatement(ctx context.Context, statementID string) (*domain.Statement, error) {
	q := r.client.Query(`
		SELECT` + statementColumns + `
		FROM ` + r.table(statementsTable) + `
		WHERE statement_id = @statement_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}
	return r.readOneStatement(ctx, q, "GetStatement")
}

func (r *Repository) readOneStatement(ctx context.Context, q *bigquery.Query, op string) (*domain.Statement, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", op, err)
	}

	var row StatementRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, statements.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading row: %w", op, err)
	}
	return row.toDomain()
}

// ListStatements returns the user's statements, newest upload first.
func (r *Repository) ListStatements(ctx context.Context, userID string) ([]domain.Statement, error) {
	q := r.client.Query(`
		SELECT` + statementColumns + `
		FROM ` + r.table(statementsTable) + `
		WHERE user_id = @user_id
		ORDER BY uploaded_ts DESC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListStatements: reading query: %w", err)
	}

	out := make([]domain.Statement, 0)
	for {
		var row StatementRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListStatements: iterating: %w", err)
		}
		st, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListStatements: %w", err)
		}
		out = append(out, *st)
	}
	return out, nil
}

// ListTransactions returns up to limit of the user's transactions, newest first.
func (r *Repository) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.StoredTransaction, error) {
	sql := `
		SELECT
			transaction_id,
			user_id,
			statement_id,
			transaction_date,
			amount,
			direction,
			raw_description,
			category_name,
			source,
			created_ts
		FROM ` + r.table(transactionsTable) + `
		WHERE user_id = @user_id
		ORDER BY transaction_date DESC, created_ts
	`
	params := []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}
	if limit > 0 {
		sql += "LIMIT @limit\n"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: limit})
	}

	q := r.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	out := make([]domain.StoredTransaction, 0)
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

var _ statements.Repository = (*Repository)(nil)
