package domain

import (
	"time"
)

// JobStatus is the report job state machine. Transitions are owned by the
// queue manager; see pipeline.CanTransition for the allowed edges.
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusProcessing       JobStatus = "processing"
	JobStatusGeneratingCharts JobStatus = "generating_charts"
	JobStatusGeneratingPDF    JobStatus = "generating_pdf"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
	JobStatusCancelled        JobStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition occurs from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the job currently holds a concurrency token.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusProcessing, JobStatusGeneratingCharts, JobStatusGeneratingPDF:
		return true
	}
	return false
}

// Artifact is the finished binary document of a completed job.
type Artifact struct {
	Data     []byte `json:"-"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// ReportJob is the mutable unit of work. All mutations go through the queue
// manager's transition functions; external callers only ever see copies.
type ReportJob struct {
	ID                  string               `json:"id"`
	UserID              string               `json:"user_id"`
	Config              ReportConfiguration  `json:"report_configuration"`
	Privacy             PrivacyConfiguration `json:"privacy_settings"`
	Status              JobStatus            `json:"status"`
	Priority            int                  `json:"priority"`
	Progress            int                  `json:"progress"`
	CurrentStep         string               `json:"current_step,omitempty"`
	QueuedAt            time.Time            `json:"queued_at"`
	StartedAt           *time.Time           `json:"started_at,omitempty"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
	RetryCount          int                  `json:"retry_count"`
	EstimatedCompletion *time.Time           `json:"estimated_completion_time,omitempty"`
	NextAttemptAt       *time.Time           `json:"next_attempt_at,omitempty"`
	Artifact            *Artifact            `json:"artifact,omitempty"`
	Error               string               `json:"error,omitempty"`
}

// Clone returns a deep-enough copy for handing outside the manager. The
// artifact bytes are shared intentionally: artifacts are immutable once set.
func (j *ReportJob) Clone() *ReportJob {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.EstimatedCompletion != nil {
		t := *j.EstimatedCompletion
		cp.EstimatedCompletion = &t
	}
	if j.NextAttemptAt != nil {
		t := *j.NextAttemptAt
		cp.NextAttemptAt = &t
	}
	if j.Artifact != nil {
		a := *j.Artifact
		cp.Artifact = &a
	}
	if j.Privacy.Sections != nil {
		sections := make(map[SectionKey]PrivacyLevel, len(j.Privacy.Sections))
		for k, v := range j.Privacy.Sections {
			sections[k] = v
		}
		cp.Privacy.Sections = sections
	}
	return &cp
}
