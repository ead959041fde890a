package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ashirbekov/txinsights/internal/api/middleware"
	"github.com/ashirbekov/txinsights/internal/jobs"
	"github.com/ashirbekov/txinsights/internal/logger"
	"github.com/ashirbekov/txinsights/internal/query"
)

// Asker runs one natural-language question through the query pipeline.
type Asker interface {
	Ask(ctx context.Context, question string) (*query.Outcome, error)
}

// QueryHandler handles natural-language query endpoints.
type QueryHandler struct {
	pipeline Asker
	log      zerolog.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(pipeline Asker, log zerolog.Logger) *QueryHandler {
	return &QueryHandler{
		pipeline: pipeline,
		log:      log,
	}
}

type askResponse struct {
	ID            string           `json:"id"`
	Question      string           `json:"question"`
	SQL           string           `json:"sql"`
	Rewritten     bool             `json:"rewritten"`
	Columns       []string         `json:"columns"`
	Rows          []map[string]any `json:"rows"`
	RowCount      int              `json:"row_count"`
	Truncated     bool             `json:"truncated"`
	Analysis      string           `json:"analysis"`
	AnalysisError string           `json:"analysis_error,omitempty"`
	DurationMS    int64            `json:"duration_ms"`
}

// Ask handles POST /api/query
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Question is required")
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx)

	out, err := h.pipeline.Ask(ctx, req.Question)
	if err != nil {
		h.writeAskError(w, log, out, err)
		return
	}

	resp := askResponse{
		ID:         out.ID,
		Question:   out.Question,
		SQL:        out.Verdict.SQL,
		Rewritten:  out.Verdict.Rewritten,
		Columns:    out.Result.Columns,
		Rows:       out.Result.Rows,
		RowCount:   len(out.Result.Rows),
		Truncated:  out.Result.Truncated,
		Analysis:   out.Analysis,
		DurationMS: out.Duration.Milliseconds(),
	}
	if resp.Rows == nil {
		resp.Rows = []map[string]any{}
	}
	if out.SummaryErr != nil {
		resp.AnalysisError = out.SummaryErr.Error()
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// writeAskError maps pipeline failures onto HTTP statuses. Rejections are
// the caller's fault; generation failures are the model's; everything else
// is ours.
func (h *QueryHandler) writeAskError(w http.ResponseWriter, log zerolog.Logger, out *query.Outcome, err error) {
	var rejected *query.RejectedError
	var exec *query.ExecutionError

	switch {
	case errors.As(err, &rejected):
		log.Warn().Str("reason", rejected.Reason).Msg("Question rejected")
		sql := ""
		if out != nil {
			sql = out.SQL
		}
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "Question rejected",
			"reason": rejected.Reason,
			"sql":    sql,
		})
	case errors.Is(err, query.ErrGenerationUnavailable), errors.Is(err, query.ErrGenerationEmpty):
		log.Error().Err(err).Msg("Failed to generate SQL")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to generate SQL for the question")
	case errors.As(err, &exec):
		log.Error().Err(err).Str("sql", exec.SQL).Msg("Query execution failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Query execution failed")
	default:
		log.Error().Err(err).Msg("Query pipeline failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Query failed")
	}
}

// LoadsHandler handles parquet load endpoints.
type LoadsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewLoadsHandler creates a new loads handler.
func NewLoadsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *LoadsHandler {
	return &LoadsHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// EnqueueLoad handles POST /api/loads
func (h *LoadsHandler) EnqueueLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source       string `json:"source"`
		BatchSize    int    `json:"batch_size"`
		AbortOnError bool   `json:"abort_on_error"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Source == "" {
		middleware.WriteError(w, http.StatusBadRequest, "source is required")
		return
	}
	if req.BatchSize < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "batch_size must be positive")
		return
	}

	ctx := r.Context()

	job := &jobs.LoadFileJob{
		SourceRef:    req.Source,
		BatchSize:    req.BatchSize,
		AbortOnError: req.AbortOnError,
	}

	if err := h.publisher.PublishLoadFile(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue load job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue load job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("source", req.Source).Msg("Load job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"source": req.Source,
		"status": string(job.Status),
	})
}

// GetLoad handles GET /api/loads/{id}
func (h *LoadsHandler) GetLoad(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get load job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListLoads handles GET /api/loads
func (h *LoadsHandler) ListLoads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	q := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(q.Get("status")),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list load jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list load jobs")
		return
	}

	if jobsList == nil {
		jobsList = []*jobs.LoadFileJob{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
