package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"reportgen/pkg/contracts/domain"
)

// defaultEstimate seeds completion estimates until real durations exist.
const defaultEstimate = 45 * time.Second

// Manager owns the job lifecycle: it is the only component that mutates a
// ReportJob after creation.
type Manager struct {
	store      JobStore
	notifier   *StatusNotifier
	aggregator Aggregator
	charts     ChartRenderer
	assembler  DocumentAssembler
	logger     *slog.Logger
	tracer     *JobTracer
	validate   *validator.Validate

	maxPerUser int64
	maxRetries int
	retryDelay time.Duration
	retention  time.Duration

	mu      chan struct{} // acquired/released as a mutex; see lock()
	tokens  map[string]*semaphore.Weighted
	cancels map[string]context.CancelFunc

	baseCtx    context.Context
	baseCancel context.CancelFunc
	closed     bool

	completedJobs int
	totalRuntime  time.Duration
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithRetryDelay overrides the fixed retry delay.
func WithRetryDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.retryDelay = d }
}

// WithMaxRetries overrides the retry cap.
func WithMaxRetries(n int) ManagerOption {
	return func(m *Manager) { m.maxRetries = n }
}

// WithMaxConcurrentPerUser overrides the per-user concurrency cap.
func WithMaxConcurrentPerUser(n int) ManagerOption {
	return func(m *Manager) { m.maxPerUser = int64(n) }
}

// WithRetention overrides how long terminal jobs are kept.
func WithRetention(d time.Duration) ManagerOption {
	return func(m *Manager) { m.retention = d }
}

// WithTracer attaches OTel instrumentation.
func WithTracer(t *JobTracer) ManagerOption {
	return func(m *Manager) { m.tracer = t }
}

// NewManager wires the queue manager to its stages and store.
func NewManager(store JobStore, notifier *StatusNotifier, aggregator Aggregator, charts ChartRenderer, assembler DocumentAssembler, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:      store,
		notifier:   notifier,
		aggregator: aggregator,
		charts:     charts,
		assembler:  assembler,
		logger:     logger.With(slog.String("component", "job_manager")),
		validate:   validator.New(),
		maxPerUser: MaxConcurrentJobsPerUser,
		maxRetries: MaxRetries,
		retryDelay: RetryDelay,
		retention:  DefaultRetentionDays * 24 * time.Hour,
		mu:         make(chan struct{}, 1),
		tokens:     make(map[string]*semaphore.Weighted),
		cancels:    make(map[string]context.CancelFunc),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lock()   { m.mu <- struct{}{} }
func (m *Manager) unlock() { <-m.mu }

// Start launches the background cleanup loop. The manager dispatches work
// from Enqueue onward whether or not Start has been called.
func (m *Manager) Start(ctx context.Context) {
	go m.cleanupLoop(ctx)
}

// Stop cancels all running jobs and waits up to timeout for them to unwind.
func (m *Manager) Stop(timeout time.Duration) error {
	m.lock()
	m.closed = true
	m.unlock()
	m.baseCancel()

	deadline := time.After(timeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			return fmt.Errorf("timeout waiting for running jobs to stop")
		case <-tick.C:
			m.lock()
			remaining := len(m.cancels)
			m.unlock()
			if remaining == 0 {
				return nil
			}
		}
	}
}

// Enqueue validates the request, persists the job in queued state and kicks
// the dispatcher. It returns a *ValidationError without persisting anything
// when the request violates submission rules.
func (m *Manager) Enqueue(cfg domain.ReportConfiguration, policy domain.PrivacyConfiguration, priority int) (string, error) {
	if vErr := m.validateSubmission(cfg, policy); vErr != nil {
		return "", vErr
	}

	job := &domain.ReportJob{
		ID:          uuid.New().String(),
		UserID:      cfg.UserID,
		Config:      cfg,
		Privacy:     policy,
		Status:      domain.JobStatusQueued,
		Priority:    priority,
		Progress:    0,
		CurrentStep: StepQueued,
		QueuedAt:    time.Now(),
	}

	if err := m.store.Create(job); err != nil {
		return "", err
	}

	m.logger.Info("job enqueued",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.String("report_type", string(cfg.ReportType)),
		slog.Int("priority", priority))

	m.notifier.Publish(job)
	m.tracer.JobEnqueued(context.Background(), cfg.ReportType)
	m.Dispatch()
	return job.ID, nil
}

// validateSubmission enforces the submission rules, collecting every
// violation rather than stopping at the first.
func (m *Manager) validateSubmission(cfg domain.ReportConfiguration, policy domain.PrivacyConfiguration) *ValidationError {
	vErr := &ValidationError{}

	if err := m.validate.Struct(cfg); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				vErr.Add("configuration.%s: failed %q rule", fe.Field(), fe.Tag())
			}
		} else {
			vErr.Add("configuration: %v", err)
		}
	}
	if err := m.validate.Struct(policy); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				vErr.Add("privacy.%s: failed %q rule", fe.Field(), fe.Tag())
			}
		} else {
			vErr.Add("privacy: %v", err)
		}
	}

	if cfg.UserID != "" && policy.UserID != "" && policy.UserID != cfg.UserID {
		vErr.Add("privacy userId %q does not match configuration userId %q", policy.UserID, cfg.UserID)
	}
	if policy.ReportID != "" && cfg.ID != "" && policy.ReportID != cfg.ID {
		vErr.Add("privacy reportId %q does not match configuration id %q", policy.ReportID, cfg.ID)
	}
	if !cfg.DateRange.Start.IsZero() && !cfg.DateRange.End.IsZero() && cfg.DateRange.End.Before(cfg.DateRange.Start) {
		vErr.Add("dateRange end precedes start")
	}

	included := false
	for _, lvl := range policy.Sections {
		if lvl.IsValid() && lvl != domain.PrivacyExclude {
			included = true
			break
		}
	}
	if !included {
		vErr.Add("at least one section must have a privacy level other than exclude")
	}

	if vErr.HasViolations() {
		return vErr
	}
	return nil
}

// Dispatch starts queued jobs while per-user capacity exists. Selection is
// priority descending with a FIFO tie-break; users are independent. Safe to
// call from any goroutine at any time.
func (m *Manager) Dispatch() {
	m.lock()
	defer m.unlock()

	if m.closed {
		return
	}
	now := time.Now()
	for _, userID := range m.store.QueuedUserIDs(now) {
		for {
			sem := m.userTokensLocked(userID)
			if !sem.TryAcquire(1) {
				break
			}
			job, err := m.store.NextQueued(userID, now)
			if err != nil || job == nil {
				sem.Release(1)
				break
			}
			if !m.startJobLocked(job, sem) {
				sem.Release(1)
				break
			}
		}
	}
}

func (m *Manager) userTokensLocked(userID string) *semaphore.Weighted {
	sem, ok := m.tokens[userID]
	if !ok {
		sem = semaphore.NewWeighted(m.maxPerUser)
		m.tokens[userID] = sem
	}
	return sem
}

// startJobLocked transitions a queued job to processing and launches its
// pipeline goroutine. Called with the manager lock held.
func (m *Manager) startJobLocked(job *domain.ReportJob, sem *semaphore.Weighted) bool {
	now := time.Now()
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &now
	job.Progress = ProgressAggregating
	job.CurrentStep = StepAggregating
	job.NextAttemptAt = nil
	est := now.Add(m.estimateLocked())
	job.EstimatedCompletion = &est

	if err := m.store.Update(job); err != nil {
		m.logger.Error("failed to mark job processing",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		return false
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	m.cancels[job.ID] = cancel

	m.notifier.Publish(job)
	go m.runJob(ctx, job.ID, sem)
	return true
}

func (m *Manager) estimateLocked() time.Duration {
	if m.completedJobs == 0 {
		return defaultEstimate
	}
	return m.totalRuntime / time.Duration(m.completedJobs)
}

// runJob drives one pipeline attempt. The concurrency token is released in
// the deferred guard no matter how the attempt ends; a leaked token would
// silently shrink the user's concurrency window.
func (m *Manager) runJob(ctx context.Context, jobID string, sem *semaphore.Weighted) {
	logger := m.logger.With(slog.String("job_id", jobID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job pipeline panicked", slog.Any("panic", r))
			m.retryOrFail(jobID, NewStageError("pipeline", fmt.Errorf("panic: %v", r)))
		}

		m.lock()
		if cancel, ok := m.cancels[jobID]; ok {
			delete(m.cancels, jobID)
			cancel()
		}
		m.unlock()
		sem.Release(1)
		m.Dispatch()
	}()

	err := m.runPipeline(ctx, jobID, logger)
	switch {
	case err == nil:
	case IsCancelled(err) || ctx.Err() != nil:
		logger.Info("job pipeline stopped by cancellation")
	default:
		m.retryOrFail(jobID, err)
	}
}

// runPipeline executes Aggregation → Chart Rendering → Document Assembly,
// checking the cancellation signal at every stage boundary.
func (m *Manager) runPipeline(ctx context.Context, jobID string, logger *slog.Logger) error {
	job, err := m.store.Get(jobID)
	if err != nil {
		return err
	}

	logger.Info("pipeline started", slog.String("report_type", string(job.Config.ReportType)))

	data, err := m.aggregator.Aggregate(ctx, job.UserID, job.Privacy)
	if err != nil {
		return NewStageError("aggregation", err)
	}

	if err := m.checkpoint(ctx, jobID, domain.JobStatusGeneratingCharts, ProgressCharts, StepCharts); err != nil {
		return err
	}
	charts := m.charts.RenderCharts(ctx, data)
	logger.Info("charts rendered", slog.Int("count", len(charts)))

	if err := m.checkpoint(ctx, jobID, domain.JobStatusGeneratingPDF, ProgressAssembly, StepAssembly); err != nil {
		return err
	}
	artifact, err := m.assembler.AssembleDocument(ctx, data, charts, job.Config, job.Privacy)
	if err != nil {
		return NewRenderError("document_assembly", err)
	}

	return m.completeJob(jobID, artifact)
}

// checkpoint advances the job to the next stage, refusing to continue past
// a cancellation or a terminal state reached concurrently.
func (m *Manager) checkpoint(ctx context.Context, jobID string, to domain.JobStatus, progress int, step string) error {
	select {
	case <-ctx.Done():
		return NewCancelledError(step)
	default:
	}

	err := m.transition(jobID, to, func(j *domain.ReportJob) {
		if progress > j.Progress {
			j.Progress = progress
		}
		j.CurrentStep = step
	})
	if err == ErrJobTerminal {
		return NewCancelledError(step)
	}
	return err
}

// transition applies a guarded state mutation. Terminal states are
// immutable; disallowed edges are rejected.
func (m *Manager) transition(jobID string, to domain.JobStatus, mutate func(*domain.ReportJob)) error {
	m.lock()
	job, err := m.store.Get(jobID)
	if err != nil {
		m.unlock()
		return err
	}
	if job.Status.IsTerminal() {
		m.unlock()
		return ErrJobTerminal
	}
	if to != "" && to != job.Status && !CanTransition(job.Status, to) {
		m.unlock()
		return &PipelineError{
			Type:    ErrorTypeState,
			Message: fmt.Sprintf("illegal transition %s -> %s", job.Status, to),
		}
	}
	if to != "" {
		job.Status = to
	}
	if mutate != nil {
		mutate(job)
	}
	if err := m.store.Update(job); err != nil {
		m.unlock()
		return err
	}
	m.unlock()

	m.notifier.Publish(job)
	return nil
}

func (m *Manager) completeJob(jobID string, artifact *domain.Artifact) error {
	now := time.Now()
	err := m.transition(jobID, domain.JobStatusCompleted, func(j *domain.ReportJob) {
		j.Progress = ProgressDone
		j.CurrentStep = StepCompleted
		j.CompletedAt = &now
		j.Artifact = artifact
		j.Error = ""

		if j.StartedAt != nil {
			m.recordRuntime(now.Sub(*j.StartedAt))
		}
	})
	if err != nil {
		return err
	}

	m.logger.Info("job completed",
		slog.String("job_id", jobID),
		slog.String("file_name", artifact.FileName),
		slog.Int64("file_size", artifact.Size))
	m.tracer.JobCompleted(context.Background())
	return nil
}

func (m *Manager) recordRuntime(d time.Duration) {
	// called from inside transition, manager lock held
	m.completedJobs++
	m.totalRuntime += d
}

// retryOrFail applies the retry policy: below the cap the job re-enters the
// queue with progress reset and a fixed delay before eligibility; at the
// cap it fails terminally with the captured error.
func (m *Manager) retryOrFail(jobID string, cause error) {
	m.lock()
	job, err := m.store.Get(jobID)
	if err != nil {
		m.unlock()
		return
	}
	if job.Status.IsTerminal() {
		m.unlock()
		return
	}

	if job.RetryCount < m.maxRetries {
		job.RetryCount++
		job.Status = domain.JobStatusQueued
		job.Progress = 0
		job.CurrentStep = StepRetryWait
		job.StartedAt = nil
		job.EstimatedCompletion = nil
		job.Error = ""
		next := time.Now().Add(m.retryDelay)
		job.NextAttemptAt = &next

		if uerr := m.store.Update(job); uerr != nil {
			m.logger.Error("failed to re-queue job", slog.String("job_id", jobID), slog.String("error", uerr.Error()))
			m.unlock()
			return
		}
		closed := m.closed
		m.unlock()

		m.logger.Warn("job attempt failed, re-queued",
			slog.String("job_id", jobID),
			slog.Int("retry_count", job.RetryCount),
			slog.String("error", cause.Error()))
		m.notifier.Publish(job)
		m.tracer.JobRetried(context.Background())

		if !closed {
			time.AfterFunc(m.retryDelay+time.Millisecond, m.Dispatch)
		}
		return
	}

	now := time.Now()
	job.Status = domain.JobStatusFailed
	job.CompletedAt = &now
	job.CurrentStep = "Failed"
	job.Error = cause.Error()
	if uerr := m.store.Update(job); uerr != nil {
		m.logger.Error("failed to mark job failed", slog.String("job_id", jobID), slog.String("error", uerr.Error()))
		m.unlock()
		return
	}
	m.unlock()

	m.logger.Error("job failed terminally",
		slog.String("job_id", jobID),
		slog.Int("retry_count", job.RetryCount),
		slog.String("error", cause.Error()))
	m.notifier.Publish(job)
	m.tracer.JobFailed(context.Background())
}

// Cancel stops a queued or active job. It is a best-effort signal: in-flight
// external calls are not aborted forcibly, the pipeline refuses to continue
// at the next stage boundary. Returns false (not an error) for unknown or
// already-terminal jobs.
func (m *Manager) Cancel(jobID string) bool {
	m.lock()
	job, err := m.store.Get(jobID)
	if err != nil {
		m.unlock()
		return false
	}
	if job.Status.IsTerminal() {
		m.unlock()
		return false
	}

	now := time.Now()
	job.Status = domain.JobStatusCancelled
	job.CompletedAt = &now
	job.CurrentStep = "Cancelled"
	job.NextAttemptAt = nil
	if uerr := m.store.Update(job); uerr != nil {
		m.unlock()
		return false
	}
	cancel := m.cancels[jobID]
	m.unlock()

	m.notifier.Publish(job)
	if cancel != nil {
		cancel()
	}
	m.logger.Info("job cancelled", slog.String("job_id", jobID))
	m.tracer.JobCancelled(context.Background())
	m.Dispatch()
	return true
}

// Delete removes a terminal job record. Deleting a queued or active job is
// refused.
func (m *Manager) Delete(jobID string) error {
	m.lock()
	defer m.unlock()

	job, err := m.store.Get(jobID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return ErrJobNotTerminal
	}
	return m.store.Delete(jobID)
}

// CleanupOlderThan purges terminal jobs completed more than the given number
// of days ago and returns the count purged.
func (m *Manager) CleanupOlderThan(days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	purged, err := m.store.CleanupOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		m.logger.Info("purged old jobs", slog.Int("count", purged), slog.Int("days", days))
	}
	return purged, nil
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
			days := int(m.retention / (24 * time.Hour))
			if days < 1 {
				days = 1
			}
			if _, err := m.CleanupOlderThan(days); err != nil {
				m.logger.Error("cleanup failed", slog.String("error", err.Error()))
			}
		}
	}
}

// GetJob returns a copy of the job record, or nil when unknown.
func (m *Manager) GetJob(jobID string) (*domain.ReportJob, error) {
	job, err := m.store.Get(jobID)
	if err == ErrJobNotFound {
		return nil, nil
	}
	return job, err
}

// ListUserJobs returns the user's jobs, optionally filtered by status.
func (m *Manager) ListUserJobs(userID string, status domain.JobStatus, limit int) ([]*domain.ReportJob, error) {
	return m.store.List(JobFilter{UserID: userID, Status: status, Limit: limit})
}

// GetMetrics summarizes the user's job history.
func (m *Manager) GetMetrics(userID string) (*UserMetrics, error) {
	jobs, err := m.store.List(JobFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	metrics := &UserMetrics{}
	var completedRuntime time.Duration
	for _, job := range jobs {
		metrics.Total++
		switch {
		case job.Status == domain.JobStatusQueued:
			metrics.Pending++
		case job.Status.IsActive():
			metrics.Processing++
		case job.Status == domain.JobStatusCompleted:
			metrics.Completed++
			if job.StartedAt != nil && job.CompletedAt != nil {
				completedRuntime += job.CompletedAt.Sub(*job.StartedAt)
			}
		case job.Status == domain.JobStatusFailed:
			metrics.Failed++
		case job.Status == domain.JobStatusCancelled:
			metrics.Cancelled++
		}
	}
	if metrics.Completed > 0 {
		metrics.AvgProcessingTimeSeconds = completedRuntime.Seconds() / float64(metrics.Completed)
	}
	return metrics, nil
}

// GetQueueStats reports scheduler occupancy across all users.
func (m *Manager) GetQueueStats() (*QueueStats, error) {
	jobs, err := m.store.List(JobFilter{})
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{}
	users := make(map[string]struct{})
	for _, job := range jobs {
		switch {
		case job.Status == domain.JobStatusQueued:
			stats.Queued++
			users[job.UserID] = struct{}{}
		case job.Status.IsActive():
			stats.Active++
			users[job.UserID] = struct{}{}
		}
	}
	stats.Users = len(users)
	return stats, nil
}

// Notifier exposes the status notifier for subscription wiring.
func (m *Manager) Notifier() *StatusNotifier {
	return m.notifier
}
