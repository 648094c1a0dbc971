package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"reportgen/pkg/contracts/domain"
)

const meterName = "reportgen.pipeline"

// JobTracer records job lifecycle counters. A nil tracer is valid and
// records nothing, so the manager never needs a nil check at call sites.
type JobTracer struct {
	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	cancelled metric.Int64Counter
}

// NewJobTracer creates lifecycle counters on the given meter.
func NewJobTracer(meter metric.Meter) (*JobTracer, error) {
	t := &JobTracer{}
	var err error

	if t.enqueued, err = meter.Int64Counter("reportgen_jobs_enqueued_total",
		metric.WithDescription("Report jobs accepted into the queue")); err != nil {
		return nil, fmt.Errorf("create enqueued counter: %w", err)
	}
	if t.completed, err = meter.Int64Counter("reportgen_jobs_completed_total",
		metric.WithDescription("Report jobs that produced an artifact")); err != nil {
		return nil, fmt.Errorf("create completed counter: %w", err)
	}
	if t.failed, err = meter.Int64Counter("reportgen_jobs_failed_total",
		metric.WithDescription("Report jobs that exhausted the retry policy")); err != nil {
		return nil, fmt.Errorf("create failed counter: %w", err)
	}
	if t.retried, err = meter.Int64Counter("reportgen_jobs_retried_total",
		metric.WithDescription("Report job attempts re-queued by the retry policy")); err != nil {
		return nil, fmt.Errorf("create retried counter: %w", err)
	}
	if t.cancelled, err = meter.Int64Counter("reportgen_jobs_cancelled_total",
		metric.WithDescription("Report jobs cancelled by the requester")); err != nil {
		return nil, fmt.Errorf("create cancelled counter: %w", err)
	}
	return t, nil
}

// JobEnqueued records a queue admission.
func (t *JobTracer) JobEnqueued(ctx context.Context, reportType domain.ReportType) {
	if t == nil {
		return
	}
	t.enqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("report_type", string(reportType))))
}

// JobCompleted records a successful run.
func (t *JobTracer) JobCompleted(ctx context.Context) {
	if t == nil {
		return
	}
	t.completed.Add(ctx, 1)
}

// JobFailed records a terminal failure.
func (t *JobTracer) JobFailed(ctx context.Context) {
	if t == nil {
		return
	}
	t.failed.Add(ctx, 1)
}

// JobRetried records a retry re-queue.
func (t *JobTracer) JobRetried(ctx context.Context) {
	if t == nil {
		return
	}
	t.retried.Add(ctx, 1)
}

// JobCancelled records a cancellation.
func (t *JobTracer) JobCancelled(ctx context.Context) {
	if t == nil {
		return
	}
	t.cancelled.Add(ctx, 1)
}
