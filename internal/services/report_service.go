// Package services sits between the HTTP transport and the job pipeline.
package services

import (
	"log/slog"
	"time"

	"reportgen/internal/pipeline"
	"reportgen/pkg/contracts/domain"
)

// ReportService manages report generation jobs.
type ReportService struct {
	manager *pipeline.Manager
	logger  *slog.Logger
}

// NewReportService creates a new report service around a started manager.
func NewReportService(manager *pipeline.Manager, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		manager: manager,
		logger:  logger.With(slog.String("component", "report_service")),
	}
}

// Submit validates and enqueues a report request, returning the job ID.
// A *pipeline.ValidationError means the submission was rejected before
// anything was persisted.
func (s *ReportService) Submit(cfg domain.ReportConfiguration, policy domain.PrivacyConfiguration, priority int) (string, error) {
	jobID, err := s.manager.Enqueue(cfg, policy, priority)
	if err != nil {
		s.logger.Warn("report submission rejected",
			slog.String("user_id", cfg.UserID),
			slog.String("error", err.Error()))
		return "", err
	}

	s.logger.Info("report job submitted",
		slog.String("job_id", jobID),
		slog.String("user_id", cfg.UserID),
		slog.String("report_type", string(cfg.ReportType)),
		slog.Int("priority", priority))
	return jobID, nil
}

// GetJob returns a snapshot of the job, or (nil, nil) when the ID is unknown.
func (s *ReportService) GetJob(jobID string) (*domain.ReportJob, error) {
	return s.manager.GetJob(jobID)
}

// ListUserJobs returns the user's jobs, optionally narrowed by status.
// A limit of 0 means no limit.
func (s *ReportService) ListUserJobs(userID string, status domain.JobStatus, limit int) ([]*domain.ReportJob, error) {
	return s.manager.ListUserJobs(userID, status, limit)
}

// GetUserMetrics aggregates counts and average runtime for one user.
func (s *ReportService) GetUserMetrics(userID string) (*pipeline.UserMetrics, error) {
	return s.manager.GetMetrics(userID)
}

// QueueStats reports scheduler occupancy across all users.
func (s *ReportService) QueueStats() (*pipeline.QueueStats, error) {
	return s.manager.GetQueueStats()
}

// Cancel requests cancellation. It reports false when the job is unknown or
// already terminal.
func (s *ReportService) Cancel(jobID string) bool {
	cancelled := s.manager.Cancel(jobID)
	if cancelled {
		s.logger.Info("report job cancelled", slog.String("job_id", jobID))
	}
	return cancelled
}

// Delete removes a terminal job and its artifact.
func (s *ReportService) Delete(jobID string) error {
	if err := s.manager.Delete(jobID); err != nil {
		return err
	}
	s.logger.Info("report job deleted", slog.String("job_id", jobID))
	return nil
}

// Subscribe streams status updates for a job until cancelled via the
// returned function.
func (s *ReportService) Subscribe(jobID string) (<-chan pipeline.JobUpdate, func()) {
	return s.manager.Notifier().Subscribe(jobID)
}

// Cleanup removes terminal jobs older than the retention window.
func (s *ReportService) Cleanup(olderThanDays int) (int, error) {
	removed, err := s.manager.CleanupOlderThan(olderThanDays)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("retention cleanup completed",
			slog.Int("removed", removed),
			slog.Int("older_than_days", olderThanDays))
	}
	return removed, nil
}

// Shutdown drains the manager, waiting up to timeout for active jobs.
func (s *ReportService) Shutdown(timeout time.Duration) error {
	return s.manager.Stop(timeout)
}
