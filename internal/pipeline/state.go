package pipeline

import (
	"reportgen/pkg/contracts/domain"
)

// transitions is the job state machine. Terminal states have no outgoing
// edges; failed→queued is the retry re-entry, and every active state may
// drop back to queued when the retry policy re-enqueues mid-pipeline.
var transitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobStatusQueued: {
		domain.JobStatusProcessing,
		domain.JobStatusFailed,
		domain.JobStatusCancelled,
	},
	domain.JobStatusProcessing: {
		domain.JobStatusGeneratingCharts,
		domain.JobStatusQueued,
		domain.JobStatusFailed,
		domain.JobStatusCancelled,
	},
	domain.JobStatusGeneratingCharts: {
		domain.JobStatusGeneratingPDF,
		domain.JobStatusQueued,
		domain.JobStatusFailed,
		domain.JobStatusCancelled,
	},
	domain.JobStatusGeneratingPDF: {
		domain.JobStatusCompleted,
		domain.JobStatusQueued,
		domain.JobStatusFailed,
		domain.JobStatusCancelled,
	},
	domain.JobStatusFailed:    {domain.JobStatusQueued},
	domain.JobStatusCompleted: {},
	domain.JobStatusCancelled: {},
}

// CanTransition reports whether the state machine allows from→to.
func CanTransition(from, to domain.JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
