package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/archive"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/jobs"
)

// maxStatementBytes bounds an uploaded statement file.
const maxStatementBytes = 20 << 20

// Uploader stores statement files. *archive.Archive implements it.
type Uploader interface {
	Upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
	uploader  Uploader
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler. uploader may be nil, in which
// case statements must already be in storage before an import is requested.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher, uploader Uploader, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store:     store,
		publisher: publisher,
		uploader:  uploader,
		log:       log,
	}
}

// Register adds the job routes to mux.
func (h *JobsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/sweep", h.EnqueueSweep)
	mux.HandleFunc("POST /api/jobs/export", h.EnqueueExport)
	mux.HandleFunc("POST /api/statements/import", h.EnqueueImport)
	mux.HandleFunc("POST /api/statements/upload", h.UploadStatement)
}

// GetJob handles GET /api/jobs/{id}
// Jobs of other users are reported as missing.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if err == nil && job.UserID != "" && job.UserID != middleware.UserID(ctx) {
		err = jobs.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
// Query parameters: type, status, limit, offset.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Type:   jobs.JobType(query.Get("type")),
		UserID: middleware.UserID(ctx),
		Status: jobs.JobStatus(query.Get("status")),
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", 50); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, list("jobs", jobsList))
}

// EnqueueSweep handles POST /api/jobs/sweep
func (h *JobsHandler) EnqueueSweep(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, &jobs.Job{Type: jobs.JobTypeSweepRecurrences, UserID: middleware.UserID(r.Context())})
}

// EnqueueExport handles POST /api/jobs/export
func (h *JobsHandler) EnqueueExport(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, &jobs.Job{Type: jobs.JobTypeExportLedger, UserID: middleware.UserID(r.Context())})
}

// EnqueueImport handles POST /api/statements/import
func (h *JobsHandler) EnqueueImport(w http.ResponseWriter, r *http.Request) {
	var req jobs.ImportStatementParams
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AccountID == "" || req.GCSURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id and gcs_uri are required")
		return
	}
	if _, _, err := archive.ParseURI(req.GCSURI); err != nil {
		middleware.WriteDomainError(r.Context(), w, domain.Invalid("gcs_uri", "%v", err))
		return
	}

	h.enqueue(w, r, &jobs.Job{
		Type:   jobs.JobTypeImportStatement,
		UserID: middleware.UserID(r.Context()),
		Import: &req,
	})
}

// UploadStatement handles POST /api/statements/upload?account_id=...&filename=...
// The request body is the statement file. It is stored and an import job
// is enqueued for it.
func (h *JobsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.uploader == nil {
		middleware.WriteError(w, http.StatusNotImplemented, "Statement storage is not configured")
		return
	}

	query := r.URL.Query()
	accountID := query.Get("account_id")
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	filename := filepath.Base(query.Get("filename"))
	if filename == "." || filename == "/" {
		filename = "statement.pdf"
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	userID := middleware.UserID(ctx)
	objectName := archive.StatementObjectName(userID, filename, time.Now())
	uri, err := h.uploader.Upload(ctx, objectName, contentType, http.MaxBytesReader(w, r.Body, maxStatementBytes))
	if err != nil {
		h.log.Error().Err(err).Str("object", objectName).Msg("Failed to upload statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}
	h.log.Info().Str("gcs_uri", uri).Str("account_id", accountID).Msg("Statement uploaded")

	h.enqueue(w, r, &jobs.Job{
		Type:   jobs.JobTypeImportStatement,
		UserID: userID,
		Import: &jobs.ImportStatementParams{
			AccountID: accountID,
			GCSURI:    uri,
			MIMEType:  contentType,
		},
	})
}

func (h *JobsHandler) enqueue(w http.ResponseWriter, r *http.Request, job *jobs.Job) {
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("job_type", string(job.Type)).Msg("Failed to enqueue job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("job_type", string(job.Type)).Msg("Job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"type":   string(job.Type),
		"status": string(job.Status),
	})
}
