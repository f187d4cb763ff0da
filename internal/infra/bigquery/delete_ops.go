package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteStatement deletes a statement and all of its transactions.
func (r *Repository) DeleteStatement(ctx context.Context, statementID string) error {
	if _, err := r.GetStatement(ctx, statementID); err != nil {
		return err
	}

	// Transactions first, then the statement row.
	if err := r.deleteWhereStatement(ctx, transactionsTable, statementID); err != nil {
		return fmt.Errorf("DeleteStatement: deleting transactions: %w", err)
	}
	if err := r.deleteWhereStatement(ctx, statementsTable, statementID); err != nil {
		return fmt.Errorf("DeleteStatement: deleting statement: %w", err)
	}
	return nil
}

func (r *Repository) deleteWhereStatement(ctx context.Context, table, statementID string) error {
	q := r.client.Query(`
		DELETE FROM ` + r.table(table) + `
		WHERE statement_id = @statement_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}
	return runDML(ctx, q)
}

// runDML runs a statement job and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
