package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/statements"
)

// maxUploadBody caps a JSON statement upload.
const maxUploadBody = 32 << 20

// StatementsHandler serves the persisted statement endpoints.
type StatementsHandler struct {
	svc *statements.Service
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(svc *statements.Service) *StatementsHandler {
	return &StatementsHandler{svc: svc}
}

// Upload handles POST /api/statements/upload
func (h *StatementsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var upload domain.StatementUpload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBody)).Decode(&upload); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if user := middleware.UserFromContext(ctx); user != "" {
		upload.UserID = user
	}

	res, err := h.svc.Upload(ctx, &upload)
	switch {
	case errors.Is(err, statements.ErrInvalidUpload):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("statement", upload.Name).Msg("Failed to upload statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload statement")
		return
	}

	if res.Duplicate {
		middleware.WriteJSON(w, http.StatusOK, res)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

// List handles GET /api/statements
func (h *StatementsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sts, err := h.svc.List(ctx, middleware.UserFromContext(ctx))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list statements")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": sts,
		"count":      len(sts),
	})
}

// Delete handles DELETE /api/statements/{id}
func (h *StatementsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	err := h.svc.Delete(ctx, middleware.UserFromContext(ctx), id)
	switch {
	case errors.Is(err, statements.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Statement not found")
		return
	case errors.Is(err, statements.ErrForbidden):
		middleware.WriteError(w, http.StatusForbidden, "Statement belongs to another user")
		return
	case err != nil:
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("statement_id", id).Msg("Failed to delete statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete statement")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// Transactions handles GET /api/statements/transactions
func (h *StatementsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, ok := queryInt(r, "limit", statements.DefaultTransactionLimit)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	list, err := h.svc.Transactions(ctx, middleware.UserFromContext(ctx), limit)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, list)
}

// Summary handles GET /api/statements/summary
func (h *StatementsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	overview, err := h.svc.Summary(ctx, middleware.UserFromContext(ctx))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to build summary")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build summary")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, overview)
}
