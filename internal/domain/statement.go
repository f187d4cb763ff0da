package domain

import "time"

// StatementStatusCompleted marks a statement whose transactions were stored.
const StatementStatusCompleted = "completed"

// Statement is the backend record of one uploaded file.
type Statement struct {
	ID            string                 `json:"id" firestore:"id"`
	UserID        string                 `json:"user_id" firestore:"user_id"`
	Name          string                 `json:"name" firestore:"name"`
	Size          int64                  `json:"size" firestore:"size"`
	FileType      string                 `json:"type" firestore:"type"`
	Status        string                 `json:"status" firestore:"status"`
	UploadedAt    time.Time              `json:"uploaded_at" firestore:"uploaded_at"`
	Checksum      string                 `json:"checksum,omitempty" firestore:"checksum"`
	ExtractedData map[string]interface{} `json:"extracted_data,omitempty" firestore:"extracted_data"`
}

// StoredTransaction is a Transaction persisted under a statement.
type StoredTransaction struct {
	Transaction
	UserID      string    `json:"user_id" firestore:"user_id"`
	StatementID string    `json:"statement_id" firestore:"statement_id"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
}

// StatementUpload is the batch a client submits after parsing a file locally.
type StatementUpload struct {
	UserID        string                 `json:"user_id"`
	Name          string                 `json:"name"`
	Size          int64                  `json:"size"`
	FileType      string                 `json:"type"`
	Checksum      string                 `json:"checksum,omitempty"`
	ExtractedData map[string]interface{} `json:"extracted_data,omitempty"`
	Transactions  []Transaction          `json:"transactions"`
}

// UploadResult is the backend's answer to a StatementUpload.
type UploadResult struct {
	Success           bool   `json:"success"`
	Duplicate         bool   `json:"duplicate"`
	StatementID       string `json:"statement_id,omitempty"`
	TransactionsSaved int    `json:"transactions_saved"`
	Message           string `json:"message"`
}
