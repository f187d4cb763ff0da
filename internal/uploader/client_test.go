package uploader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

var _ pipeline.StatementSink = (*Client)(nil)

func TestSubmitStatement(t *testing.T) {
	tests := []struct {
		name          string
		uploadUser    string
		status        int
		response      string
		wantErr       error
		wantUser      string
		wantDuplicate bool
		wantSaved     int
	}{
		{
			name:      "created",
			status:    http.StatusCreated,
			response:  `{"success":true,"statement_id":"s1","transactions_saved":2,"message":"ok"}`,
			wantUser:  "default-user",
			wantSaved: 2,
		},
		{
			name:          "duplicate",
			uploadUser:    "alice",
			status:        http.StatusOK,
			response:      `{"success":false,"duplicate":true,"message":"Statement 'jan.csv' already exists. Skipping upload."}`,
			wantUser:      "alice",
			wantDuplicate: true,
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			response: `{"error":"invalid upload"}`,
			wantErr:  ErrRejected,
			wantUser: "default-user",
		},
		{
			name:     "server error without body",
			status:   http.StatusInternalServerError,
			wantErr:  ErrRejected,
			wantUser: "default-user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			var gotBody domain.StatementUpload

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, UploadPath, r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				gotUser = r.Header.Get(UserHeader)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			client := New(srv.URL+"/", WithUserID("default-user"), WithHTTPClient(srv.Client()))
			upload := &domain.StatementUpload{
				UserID: tt.uploadUser,
				Name:   "jan.csv",
				Transactions: []domain.Transaction{
					{Date: "2024-01-15", Description: "Coffee", Amount: -4.5, Type: domain.TypeExpense, Category: "Food & Dining"},
				},
			}

			result, err := client.SubmitStatement(context.Background(), upload)
			assert.Equal(t, tt.wantUser, gotUser)
			assert.Equal(t, "jan.csv", gotBody.Name)
			assert.Len(t, gotBody.Transactions, 1)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDuplicate, result.Duplicate)
			assert.Equal(t, tt.wantSaved, result.TransactionsSaved)
		})
	}
}

func TestSubmitStatementBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).SubmitStatement(context.Background(), &domain.StatementUpload{Name: "a.csv"})
	assert.Error(t, err)
}

func TestSubmitStatementUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).SubmitStatement(context.Background(), &domain.StatementUpload{Name: "a.csv"})
	assert.Error(t, err)
}
