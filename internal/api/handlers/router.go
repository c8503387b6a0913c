package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/position"
)

// Services are the collaborators the HTTP API is built on. Uploader is optional.
type Services struct {
	Ledger    *ledger.Ledger
	Positions *position.Service
	Engine    *position.Engine
	Jobs      jobs.JobStore
	Publisher jobs.Publisher
	Uploader  Uploader
}

// NewRouter registers every API route and the /health endpoint.
func NewRouter(s Services, log zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	NewAccountsHandler(s.Ledger, s.Engine, log).Register(mux)
	NewTransactionsHandler(s.Ledger, log).Register(mux)
	NewInstallmentsHandler(s.Ledger, log).Register(mux)
	NewInvestmentsHandler(s.Positions, log).Register(mux)
	NewJobsHandler(s.Jobs, s.Publisher, s.Uploader, log).Register(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
