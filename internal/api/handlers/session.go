package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/session"
)

// SessionHandler exposes the in-memory session aggregate.
type SessionHandler struct {
	store *session.Store
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store *session.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

// Transactions handles GET /api/session/transactions
func (h *SessionHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := session.Query{
		Category: values.Get("category"),
		Type:     domain.TransactionType(values.Get("type")),
		Search:   values.Get("search"),
		From:     values.Get("from"),
		To:       values.Get("to"),
		SortBy:   session.SortField(values.Get("sort")),
		Order:    session.SortOrder(values.Get("order")),
	}

	var ok bool
	if q.Page, ok = queryInt(r, "page", 0); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	if q.PageSize, ok = queryInt(r, "page_size", 0); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid page_size")
		return
	}

	page, err := h.store.Query(q)
	if err != nil {
		if errors.Is(err, session.ErrInvalidQuery) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query session")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// Summary handles GET /api/session/summary
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.store.Summary())
}

// Uploads handles GET /api/session/uploads
func (h *SessionHandler) Uploads(w http.ResponseWriter, r *http.Request) {
	uploads := h.store.Uploads()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uploads": uploads,
		"count":   len(uploads),
	})
}

// Clear handles DELETE /api/session
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// RemoveSource handles DELETE /api/session/sources/{name}
func (h *SessionHandler) RemoveSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	n := h.store.Remove(name)
	if n == 0 {
		middleware.WriteError(w, http.StatusNotFound, "No transactions from that file")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"source":  name,
		"removed": n,
	})
}
