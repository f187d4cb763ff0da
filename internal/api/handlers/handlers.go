// Package handlers implements the HTTP endpoints of the ingest API.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/statement-ingest/internal/api/middleware"
)

// Routes groups the handlers served by the API. Nil handlers are not mounted.
type Routes struct {
	Statements *StatementsHandler
	Ingest     *IngestHandler
	Jobs       *JobsHandler
	Session    *SessionHandler
	Now        func() time.Time
}

// Mux registers every route on a new ServeMux.
func (rt Routes) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	if h := rt.Statements; h != nil {
		mux.HandleFunc("POST /api/statements/upload", h.Upload)
		mux.HandleFunc("GET /api/statements", h.List)
		mux.HandleFunc("DELETE /api/statements/{id}", h.Delete)
		mux.HandleFunc("GET /api/statements/transactions", h.Transactions)
		mux.HandleFunc("GET /api/statements/summary", h.Summary)
	}

	if h := rt.Ingest; h != nil {
		mux.HandleFunc("POST /api/ingest", h.Ingest)
	}

	if h := rt.Jobs; h != nil {
		mux.HandleFunc("GET /api/jobs", h.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
		mux.HandleFunc("DELETE /api/jobs/{id}", h.CancelJob)
	}

	if h := rt.Session; h != nil {
		mux.HandleFunc("GET /api/session/transactions", h.Transactions)
		mux.HandleFunc("GET /api/session/summary", h.Summary)
		mux.HandleFunc("GET /api/session/uploads", h.Uploads)
		mux.HandleFunc("DELETE /api/session", h.Clear)
		mux.HandleFunc("DELETE /api/session/sources/{name}", h.RemoveSource)
	}

	now := rt.Now
	if now == nil {
		now = time.Now
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   now().Format(time.RFC3339),
		})
	})

	return mux
}

// queryInt reads a non-negative integer query parameter. Missing values
// yield def; malformed ones report ok=false.
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
