// Package pipeline owns the report job lifecycle: validation and enqueueing,
// priority dispatch under a per-user concurrency cap, the multi-stage
// rendering pipeline (aggregation, chart rendering, document assembly),
// retries with a fixed delay, cooperative cancellation, terminal-state
// cleanup, and push/poll status notification.
//
// The ReportJob record is the only shared mutable resource; every mutation
// goes through the Manager's transition functions so two dispatch attempts
// can never double-process one job.
package pipeline
