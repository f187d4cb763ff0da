// Package uploader submits parsed statements to a remote ingest API.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// UploadPath is the API route that accepts a StatementUpload.
const UploadPath = "/api/statements/upload"

// UserHeader carries the caller's user id.
const UserHeader = "X-User-ID"

const defaultTimeout = 60 * time.Second

// ErrRejected is returned when the backend answers with a non-2xx status.
var ErrRejected = errors.New("upload rejected")

// Client posts statements to the API. It implements the pipeline's
// StatementSink.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserID sets the X-User-ID header sent with uploads that carry no user.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = id }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error string `json:"error"`
}

// SubmitStatement posts upload. A duplicate is a successful call whose result
// has Duplicate set.
func (c *Client) SubmitStatement(ctx context.Context, upload *domain.StatementUpload) (*domain.UploadResult, error) {
	log := logger.FromContext(ctx)

	body, err := json.Marshal(upload)
	if err != nil {
		return nil, fmt.Errorf("SubmitStatement: encoding %s: %w", upload.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("SubmitStatement: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user := c.user(upload); user != "" {
		req.Header.Set(UserHeader, user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SubmitStatement: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("SubmitStatement: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		if eb.Error == "" {
			eb.Error = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("SubmitStatement: %w: %d %s", ErrRejected, resp.StatusCode, eb.Error)
	}

	var result domain.UploadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("SubmitStatement: decoding response: %w", err)
	}

	logStatus(log.Debug(), upload, &result)
	return &result, nil
}

func (c *Client) user(upload *domain.StatementUpload) string {
	if upload.UserID != "" {
		return upload.UserID
	}
	return c.userID
}

func logStatus(e *zerolog.Event, upload *domain.StatementUpload, result *domain.UploadResult) {
	e.Str("statement", upload.Name).
		Bool("duplicate", result.Duplicate).
		Int("transactions_saved", result.TransactionsSaved).
		Msg("Statement submitted")
}
