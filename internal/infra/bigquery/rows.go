package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// StatementRow is one row of the statements table.
type StatementRow struct {
	StatementID string `bigquery:"statement_id"` // REQUIRED
	UserID      string `bigquery:"user_id"`      // REQUIRED
	Name        string `bigquery:"name"`         // REQUIRED

	Size     int64  `bigquery:"size"`      // NULLABLE
	FileType string `bigquery:"file_type"` // NULLABLE
	Status   string `bigquery:"status"`    // REQUIRED

	UploadedTS time.Time `bigquery:"uploaded_ts"` // REQUIRED

	ChecksumSHA256 bigquery.NullString `bigquery:"checksum_sha256"` // NULLABLE
	ExtractedData  bigquery.NullJSON   `bigquery:"extracted_data"`  // NULLABLE
}

// TransactionRow is one row of the transactions table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED
	StatementID   string `bigquery:"statement_id"`   // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	Direction       string     `bigquery:"direction"`        // REQUIRED: income | expense

	RawDescription string `bigquery:"raw_description"` // REQUIRED
	CategoryName   string `bigquery:"category_name"`   // REQUIRED
	Source         string `bigquery:"source"`          // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func toStatementRow(st *domain.Statement) (*StatementRow, error) {
	row := &StatementRow{
		StatementID: st.ID,
		UserID:      st.UserID,
		Name:        st.Name,
		Size:        st.Size,
		FileType:    st.FileType,
		Status:      st.Status,
		UploadedTS:  st.UploadedAt,
	}
	if st.Checksum != "" {
		row.ChecksumSHA256 = bigquery.NullString{StringVal: st.Checksum, Valid: true}
	}
	if len(st.ExtractedData) > 0 {
		b, err := json.Marshal(st.ExtractedData)
		if err != nil {
			return nil, fmt.Errorf("toStatementRow: encoding extracted_data: %w", err)
		}
		row.ExtractedData = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}
	return row, nil
}

func (r *StatementRow) toDomain() (*domain.Statement, error) {
	st := &domain.Statement{
		ID:         r.StatementID,
		UserID:     r.UserID,
		Name:       r.Name,
		Size:       r.Size,
		FileType:   r.FileType,
		Status:     r.Status,
		UploadedAt: r.UploadedTS,
	}
	if r.ChecksumSHA256.Valid {
		st.Checksum = r.ChecksumSHA256.StringVal
	}
	if r.ExtractedData.Valid {
		if err := json.Unmarshal([]byte(r.ExtractedData.JSONVal), &st.ExtractedData); err != nil {
			return nil, fmt.Errorf("StatementRow.toDomain: decoding extracted_data: %w", err)
		}
	}
	return st, nil
}

func toTransactionRow(tx domain.StoredTransaction) (*TransactionRow, error) {
	date, err := civil.ParseDate(tx.Date)
	if err != nil {
		return nil, fmt.Errorf("toTransactionRow: transaction %s: %w", tx.ID, err)
	}
	return &TransactionRow{
		TransactionID:   tx.ID,
		UserID:          tx.UserID,
		StatementID:     tx.StatementID,
		TransactionDate: date,
		Amount:          decimal.NewFromFloat(tx.Amount).Rat(),
		Direction:       string(tx.Type),
		RawDescription:  tx.Description,
		CategoryName:    tx.Category,
		Source:          tx.Source,
		CreatedTS:       tx.CreatedAt,
	}, nil
}

func (r *TransactionRow) toDomain() domain.StoredTransaction {
	amount := 0.0
	if r.Amount != nil {
		amount, _ = r.Amount.Float64()
	}
	return domain.StoredTransaction{
		Transaction: domain.Transaction{
			ID:          r.TransactionID,
			Date:        r.TransactionDate.String(),
			Description: r.RawDescription,
			Amount:      amount,
			Type:        domain.TransactionType(r.Direction),
			Category:    r.CategoryName,
			Source:      r.Source,
		},
		UserID:      r.UserID,
		StatementID: r.StatementID,
		CreatedAt:   r.CreatedTS,
	}
}
