package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "reportgen/internal/errors"
	"reportgen/internal/middleware"
	"reportgen/internal/pipeline"
	"reportgen/pkg/contracts/domain"
)

// ReportService is the slice of the service layer the handlers need.
type ReportService interface {
	Submit(cfg domain.ReportConfiguration, policy domain.PrivacyConfiguration, priority int) (string, error)
	GetJob(jobID string) (*domain.ReportJob, error)
	ListUserJobs(userID string, status domain.JobStatus, limit int) ([]*domain.ReportJob, error)
	GetUserMetrics(userID string) (*pipeline.UserMetrics, error)
	QueueStats() (*pipeline.QueueStats, error)
	Cancel(jobID string) bool
	Delete(jobID string) error
}

// ReportsHandler handles report job HTTP requests.
type ReportsHandler struct {
	service ReportService
	logger  *slog.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(service ReportService, logger *slog.Logger) *ReportsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportsHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "reports")),
	}
}

// Routes returns a chi router for the report job endpoints.
func (h *ReportsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.SubmitReport)
	r.Get("/stats", h.GetQueueStats)
	r.Get("/{id}", h.GetReport)
	r.Get("/{id}/download", h.DownloadReport)
	r.Post("/{id}/cancel", h.CancelReport)
	r.Delete("/{id}", h.DeleteReport)
	return r
}

// UserRoutes returns a chi router for per-user report listings.
func (h *ReportsHandler) UserRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{userID}/reports", h.ListUserReports)
	r.Get("/{userID}/reports/metrics", h.GetUserMetrics)
	return r
}

// SubmitRequest is the body for POST /api/reports.
type SubmitRequest struct {
	Config   domain.ReportConfiguration  `json:"report_configuration"`
	Privacy  domain.PrivacyConfiguration `json:"privacy_settings"`
	Priority int                         `json:"priority,omitempty"`
}

// Bind implements render.Binder. Structural checks only; the full rule set
// runs in the pipeline before the job is accepted.
func (sr *SubmitRequest) Bind(r *http.Request) error {
	if sr.Config.ID == "" {
		return errors.New("report_configuration.id is required")
	}
	if sr.Config.UserID == "" {
		return errors.New("report_configuration.user_id is required")
	}
	if sr.Priority < 0 {
		return fmt.Errorf("priority must not be negative, got %d", sr.Priority)
	}
	return nil
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	Success bool             `json:"success"`
	JobID   string           `json:"job_id"`
	Status  domain.JobStatus `json:"status"`
}

// Render implements render.Renderer.
func (sr *SubmitResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusAccepted)
	return nil
}

// SubmitReport handles POST /api/reports.
func (h *ReportsHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	data := &SubmitRequest{}
	if err := render.Bind(r, data); err != nil {
		h.logger.WarnContext(ctx, "failed to bind submit request",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	jobID, err := h.service.Submit(data.Config, data.Privacy, data.Priority)
	if err != nil {
		var vErr *pipeline.ValidationError
		if errors.As(err, &vErr) {
			_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.SubmissionRejected(vErr.Violations)))
			return
		}
		h.logger.ErrorContext(ctx, "report submission failed",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	_ = render.Render(w, r, &SubmitResponse{
		Success: true,
		JobID:   jobID,
		Status:  domain.JobStatusQueued,
	})
}

// JobResponse wraps a job snapshot.
type JobResponse struct {
	Success bool              `json:"success"`
	Job     *domain.ReportJob `json:"job"`
}

// Render implements render.Renderer.
func (jr *JobResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// GetReport handles GET /api/reports/{id}.
func (h *ReportsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.service.GetJob(jobID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	if job == nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrJobNotFound))
		return
	}

	_ = render.Render(w, r, &JobResponse{Success: true, Job: job})
}

// DownloadReport handles GET /api/reports/{id}/download, streaming the
// finished artifact.
func (h *ReportsHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.service.GetJob(jobID)
	if err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	if job == nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrJobNotFound))
		return
	}
	if job.Status != domain.JobStatusCompleted || job.Artifact == nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.NewWithDetails(http.StatusConflict, "ARTIFACT_NOT_READY",
				"Report has not completed yet", string(job.Status))))
		return
	}

	w.Header().Set("Content-Type", job.Artifact.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.Artifact.FileName))
	w.Header().Set("Content-Length", strconv.FormatInt(job.Artifact.Size, 10))
	_, _ = w.Write(job.Artifact.Data)
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Jobs    []*domain.ReportJob `json:"jobs"`
}

// Render implements render.Renderer.
func (jl *JobListResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// ListUserReports handles GET /api/users/{userID}/reports.
func (h *ReportsHandler) ListUserReports(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var status domain.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status = domain.JobStatus(s)
		switch status {
		case domain.JobStatusQueued, domain.JobStatusProcessing,
			domain.JobStatusGeneratingCharts, domain.JobStatusGeneratingPDF,
			domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled:
		default:
			_ = render.Render(w, r, apierrors.NewErrorResponse(
				apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST",
					"Unknown status filter", s)))
			return
		}
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			_ = render.Render(w, r, apierrors.NewErrorResponse(
				apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a non-negative integer", l)))
			return
		}
		limit = n
	}

	jobs, err := h.service.ListUserJobs(userID, status, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list jobs",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	_ = render.Render(w, r, &JobListResponse{Success: true, Count: len(jobs), Jobs: jobs})
}

// MetricsResponse wraps per-user job metrics.
type MetricsResponse struct {
	Success bool                  `json:"success"`
	UserID  string                `json:"user_id"`
	Metrics *pipeline.UserMetrics `json:"metrics"`
}

// Render implements render.Renderer.
func (mr *MetricsResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// GetUserMetrics handles GET /api/users/{userID}/reports/metrics.
func (h *ReportsHandler) GetUserMetrics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	metrics, err := h.service.GetUserMetrics(userID)
	if err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	_ = render.Render(w, r, &MetricsResponse{Success: true, UserID: userID, Metrics: metrics})
}

// QueueStatsResponse wraps scheduler occupancy.
type QueueStatsResponse struct {
	Success bool                 `json:"success"`
	Stats   *pipeline.QueueStats `json:"stats"`
}

// Render implements render.Renderer.
func (qs *QueueStatsResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// GetQueueStats handles GET /api/reports/stats.
func (h *ReportsHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.QueueStats()
	if err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	_ = render.Render(w, r, &QueueStatsResponse{Success: true, Stats: stats})
}

// ActionResponse acknowledges a cancel or delete.
type ActionResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Action  string `json:"action"`
}

// Render implements render.Renderer.
func (ar *ActionResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// CancelReport handles POST /api/reports/{id}/cancel. Cancelling an unknown
// job is a 404; cancelling a finished one is a 409.
func (h *ReportsHandler) CancelReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if h.service.Cancel(jobID) {
		_ = render.Render(w, r, &ActionResponse{Success: true, JobID: jobID, Action: "cancelled"})
		return
	}

	job, err := h.service.GetJob(jobID)
	if err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	if job == nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrJobNotFound))
		return
	}
	_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrJobNotCancelable))
}

// DeleteReport handles DELETE /api/reports/{id}. Only terminal jobs can be
// deleted.
func (h *ReportsHandler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	err := h.service.Delete(jobID)
	switch {
	case err == nil:
		_ = render.Render(w, r, &ActionResponse{Success: true, JobID: jobID, Action: "deleted"})
	case errors.Is(err, pipeline.ErrJobNotFound):
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrJobNotFound))
	case errors.Is(err, pipeline.ErrJobNotTerminal):
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrJobNotDeletable))
	default:
		h.logger.ErrorContext(r.Context(), "failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
	}
}
