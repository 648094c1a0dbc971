package pipeline

import (
	"context"
	"time"

	"reportgen/pkg/contracts/domain"
)

// Scheduling and retry constants.
const (
	// MaxRetries caps automatic re-queues of a failing job.
	MaxRetries = 3

	// MaxConcurrentJobsPerUser bounds simultaneously active jobs per user.
	// This is a fairness boundary, not a global throttle.
	MaxConcurrentJobsPerUser = 3

	// RetryDelay is the mandatory wait before a failed job becomes eligible
	// for dispatch again.
	RetryDelay = 5 * time.Second

	// DefaultRetentionDays is how long terminal jobs are kept before cleanup.
	DefaultRetentionDays = 30
)

// Progress checkpoints at stage boundaries.
const (
	ProgressAggregating = 10
	ProgressCharts      = 30
	ProgressAssembly    = 70
	ProgressDone        = 100
)

// Human-readable step labels surfaced through CurrentStep.
const (
	StepQueued      = "Waiting in queue"
	StepAggregating = "Aggregating user data"
	StepCharts      = "Rendering charts"
	StepAssembly    = "Assembling document"
	StepCompleted   = "Report ready"
	StepRetryWait   = "Waiting to retry"
)

// Aggregator is the data aggregation stage.
type Aggregator interface {
	Aggregate(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error)
}

// ChartRenderer is the chart rendering stage. It never fails the job; an
// empty slice means the stage degraded.
type ChartRenderer interface {
	RenderCharts(ctx context.Context, data *domain.AggregatedUserData) []domain.ChartImageData
}

// DocumentAssembler is the final artifact-producing stage.
type DocumentAssembler interface {
	AssembleDocument(ctx context.Context, data *domain.AggregatedUserData, charts []domain.ChartImageData, cfg domain.ReportConfiguration, policy domain.PrivacyConfiguration) (*domain.Artifact, error)
}

// JobFilter narrows job listings.
type JobFilter struct {
	UserID string
	Status domain.JobStatus
	Limit  int
}

// UserMetrics summarizes one user's job history.
type UserMetrics struct {
	Total                    int     `json:"total"`
	Pending                  int     `json:"pending"`
	Processing               int     `json:"processing"`
	Completed                int     `json:"completed"`
	Failed                   int     `json:"failed"`
	Cancelled                int     `json:"cancelled"`
	AvgProcessingTimeSeconds float64 `json:"avg_processing_time_seconds"`
}

// QueueStats reports scheduler occupancy for diagnostics.
type QueueStats struct {
	Queued int `json:"queued"`
	Active int `json:"active"`
	Users  int `json:"users"`
}
