package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/pkg/contracts/domain"
)

type stubAggregator struct {
	fn func(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error)
}

func (s *stubAggregator) Aggregate(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error) {
	if s.fn != nil {
		return s.fn(ctx, userID, policy)
	}
	return &domain.AggregatedUserData{UserID: userID}, nil
}

type stubChartRenderer struct{}

func (s *stubChartRenderer) RenderCharts(ctx context.Context, data *domain.AggregatedUserData) []domain.ChartImageData {
	return nil
}

type stubAssembler struct {
	fn func(ctx context.Context, cfg domain.ReportConfiguration) (*domain.Artifact, error)
}

func (s *stubAssembler) AssembleDocument(ctx context.Context, data *domain.AggregatedUserData, charts []domain.ChartImageData, cfg domain.ReportConfiguration, policy domain.PrivacyConfiguration) (*domain.Artifact, error) {
	if s.fn != nil {
		return s.fn(ctx, cfg)
	}
	return &domain.Artifact{
		Data:     []byte("%PDF-1.7"),
		FileName: "report.pdf",
		Size:     8,
		MimeType: "application/pdf",
	}, nil
}

func testConfig(id, userID string) domain.ReportConfiguration {
	return domain.ReportConfiguration{
		ID:         id,
		UserID:     userID,
		ReportType: domain.ReportTypeParent,
		Title:      "Quarterly Progress",
		DateRange: domain.DateRange{
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		},
		Sections: []domain.SectionDescriptor{
			{Key: domain.SectionProfile},
			{Key: domain.SectionEngagement},
		},
	}
}

func testPolicy(reportID, userID string) domain.PrivacyConfiguration {
	return domain.PrivacyConfiguration{
		UserID:   userID,
		ReportID: reportID,
		Sections: map[domain.SectionKey]domain.PrivacyLevel{
			domain.SectionProfile:    domain.PrivacySummary,
			domain.SectionEngagement: domain.PrivacyDetailed,
		},
	}
}

func newTestManager(t *testing.T, agg Aggregator, asm DocumentAssembler, opts ...ManagerOption) (*Manager, *MemoryJobStore) {
	t.Helper()
	if agg == nil {
		agg = &stubAggregator{}
	}
	if asm == nil {
		asm = &stubAssembler{}
	}
	store := NewMemoryJobStore()
	notifier := NewStatusNotifier(nil, quietLogger())
	m := NewManager(store, notifier, agg, &stubChartRenderer{}, asm, quietLogger(), opts...)
	t.Cleanup(func() { _ = m.Stop(2 * time.Second) })
	return m, store
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func waitForStatus(t *testing.T, m *Manager, jobID string, status domain.JobStatus) *domain.ReportJob {
	t.Helper()
	var job *domain.ReportJob
	waitFor(t, "job "+jobID+" to reach "+string(status), func() bool {
		j, err := m.GetJob(jobID)
		if err != nil || j == nil {
			return false
		}
		job = j
		return j.Status == status
	})
	return job
}

func TestEnqueueRejectsInvalidSubmission(t *testing.T) {
	tests := []struct {
		name   string
		cfg    domain.ReportConfiguration
		policy domain.PrivacyConfiguration
	}{
		{
			name: "missing title",
			cfg: func() domain.ReportConfiguration {
				c := testConfig("rep-1", "user-1")
				c.Title = ""
				return c
			}(),
			policy: testPolicy("rep-1", "user-1"),
		},
		{
			name: "unknown report type",
			cfg: func() domain.ReportConfiguration {
				c := testConfig("rep-1", "user-1")
				c.ReportType = "board"
				return c
			}(),
			policy: testPolicy("rep-1", "user-1"),
		},
		{
			name:   "privacy user mismatch",
			cfg:    testConfig("rep-1", "user-1"),
			policy: testPolicy("rep-1", "user-2"),
		},
		{
			name:   "privacy report mismatch",
			cfg:    testConfig("rep-1", "user-1"),
			policy: testPolicy("rep-other", "user-1"),
		},
		{
			name: "every section excluded",
			cfg:  testConfig("rep-1", "user-1"),
			policy: domain.PrivacyConfiguration{
				UserID:   "user-1",
				ReportID: "rep-1",
				Sections: map[domain.SectionKey]domain.PrivacyLevel{
					domain.SectionProfile:    domain.PrivacyExclude,
					domain.SectionEngagement: domain.PrivacyExclude,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newTestManager(t, nil, nil)

			id, err := m.Enqueue(tt.cfg, tt.policy, 0)
			require.Error(t, err)
			assert.Empty(t, id)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.NotEmpty(t, vErr.Violations)
			assert.Equal(t, 0, store.Stats().Queued, "rejected submissions must not persist a job")
		})
	}
}

func TestEnqueueCollectsAllViolations(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)

	cfg := testConfig("rep-1", "user-1")
	cfg.Title = ""
	policy := testPolicy("rep-1", "user-2")

	_, err := m.Enqueue(cfg, policy, 0)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.GreaterOrEqual(t, len(vErr.Violations), 2, "all violations are reported at once")
}

func TestJobRunsToCompletion(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)

	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job := waitForStatus(t, m, id, domain.JobStatusCompleted)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 0, job.RetryCount)
	assert.Empty(t, job.Error)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.Artifact)
	assert.Equal(t, "report.pdf", job.Artifact.FileName)
	assert.Equal(t, "application/pdf", job.Artifact.MimeType)
}

func TestPerUserConcurrencyBound(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	running, peak := 0, 0

	asm := &stubAssembler{fn: func(ctx context.Context, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			running--
			mu.Unlock()
		}()
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &domain.Artifact{Data: []byte("x"), FileName: "r.pdf", Size: 1, MimeType: "application/pdf"}, nil
	}}
	m, store := newTestManager(t, nil, asm)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	otherID, err := m.Enqueue(testConfig("rep-2", "user-2"), testPolicy("rep-2", "user-2"), 0)
	require.NoError(t, err)

	waitFor(t, "three jobs to hold tokens", func() bool {
		return store.CountActive("user-1") == MaxConcurrentJobsPerUser
	})
	assert.Equal(t, MaxConcurrentJobsPerUser, store.CountActive("user-1"))

	// another user's job is not starved by user-1's backlog
	waitForStatus(t, m, otherID, domain.JobStatusGeneratingPDF)

	close(release)
	for _, id := range ids {
		waitForStatus(t, m, id, domain.JobStatusCompleted)
	}
	waitForStatus(t, m, otherID, domain.JobStatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak-1, MaxConcurrentJobsPerUser, "user-1 cap plus at most one user-2 job")
}

func TestDispatchOrderPriorityThenFIFO(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string

	agg := &stubAggregator{fn: func(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error) {
		mu.Lock()
		order = append(order, policy.ReportID)
		mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &domain.AggregatedUserData{UserID: userID}, nil
	}}
	m, _ := newTestManager(t, agg, nil, WithMaxConcurrentPerUser(1))

	first, err := m.Enqueue(testConfig("first", "user-1"), testPolicy("first", "user-1"), 0)
	require.NoError(t, err)
	waitFor(t, "first job to start", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1
	})

	// queued while the single slot is busy
	_, err = m.Enqueue(testConfig("low-a", "user-1"), testPolicy("low-a", "user-1"), 1)
	require.NoError(t, err)
	_, err = m.Enqueue(testConfig("low-b", "user-1"), testPolicy("low-b", "user-1"), 1)
	require.NoError(t, err)
	high, err := m.Enqueue(testConfig("high", "user-1"), testPolicy("high", "user-1"), 5)
	require.NoError(t, err)

	gate <- struct{}{}
	waitForStatus(t, m, first, domain.JobStatusCompleted)
	gate <- struct{}{}
	waitForStatus(t, m, high, domain.JobStatusCompleted)
	gate <- struct{}{}
	gate <- struct{}{}

	waitFor(t, "all jobs to have started", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "high", "low-a", "low-b"}, order,
		"priority wins, equal priority dispatches FIFO")
}

func TestRetryExhaustionFailsJob(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	agg := &stubAggregator{fn: func(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil, errors.New("profile source unreachable")
	}}
	m, _ := newTestManager(t, agg, nil, WithRetryDelay(10*time.Millisecond))

	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)

	job := waitForStatus(t, m, id, domain.JobStatusFailed)
	assert.Equal(t, MaxRetries, job.RetryCount)
	assert.Contains(t, job.Error, "profile source unreachable")
	require.NotNil(t, job.CompletedAt)

	mu.Lock()
	got := attempts
	mu.Unlock()
	assert.Equal(t, MaxRetries+1, got, "initial attempt plus one per retry")

	// failed is terminal: no further attempts happen
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, got, attempts)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	agg := &stubAggregator{fn: func(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			return nil, errors.New("transient timeout")
		}
		return &domain.AggregatedUserData{UserID: userID}, nil
	}}
	m, _ := newTestManager(t, agg, nil, WithRetryDelay(10*time.Millisecond))

	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)

	job := waitForStatus(t, m, id, domain.JobStatusCompleted)
	assert.Equal(t, 2, job.RetryCount)
	assert.Empty(t, job.Error)
	require.NotNil(t, job.Artifact)
}

func TestRetryResetsProgress(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	asm := &stubAssembler{fn: func(ctx context.Context, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return nil, errors.New("renderer crashed")
		}
		return &domain.Artifact{Data: []byte("x"), FileName: "r.pdf", Size: 1, MimeType: "application/pdf"}, nil
	}}
	m, _ := newTestManager(t, nil, asm, WithRetryDelay(50*time.Millisecond))

	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)

	waitFor(t, "job to be re-queued after the first failure", func() bool {
		j, _ := m.GetJob(id)
		return j != nil && j.Status == domain.JobStatusQueued && j.RetryCount == 1
	})
	j, err := m.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, 0, j.Progress, "progress resets for the next attempt")
	assert.Nil(t, j.StartedAt)
	require.NotNil(t, j.NextAttemptAt)

	waitForStatus(t, m, id, domain.JobStatusCompleted)
}

func TestCancelActiveJobFreesToken(t *testing.T) {
	started := make(chan struct{}, 8)
	asm := &stubAssembler{fn: func(ctx context.Context, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	m, _ := newTestManager(t, nil, asm, WithMaxConcurrentPerUser(1))

	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)
	<-started

	assert.True(t, m.Cancel(id))
	job := waitForStatus(t, m, id, domain.JobStatusCancelled)
	require.NotNil(t, job.CompletedAt)

	assert.False(t, m.Cancel(id), "cancelling a terminal job reports false")

	// the freed token lets the next job for the same user run
	next, err := m.Enqueue(testConfig("rep-2", "user-1"), testPolicy("rep-2", "user-1"), 0)
	require.NoError(t, err)
	<-started
	assert.True(t, m.Cancel(next))
	waitForStatus(t, m, next, domain.JobStatusCancelled)
}

func TestCancelQueuedJob(t *testing.T) {
	block := make(chan struct{})
	asm := &stubAssembler{fn: func(ctx context.Context, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &domain.Artifact{Data: []byte("x"), FileName: "r.pdf", Size: 1, MimeType: "application/pdf"}, nil
	}}
	m, _ := newTestManager(t, nil, asm, WithMaxConcurrentPerUser(1))

	running, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)
	waitForStatus(t, m, running, domain.JobStatusGeneratingPDF)

	queued, err := m.Enqueue(testConfig("rep-2", "user-1"), testPolicy("rep-2", "user-1"), 0)
	require.NoError(t, err)

	assert.True(t, m.Cancel(queued))
	job := waitForStatus(t, m, queued, domain.JobStatusCancelled)
	assert.Nil(t, job.StartedAt, "a queued job is cancelled without ever starting")

	close(block)
	waitForStatus(t, m, running, domain.JobStatusCompleted)
}

func TestCancelUnknownJob(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)
	assert.False(t, m.Cancel("no-such-job"))
}

func TestDeleteRequiresTerminalState(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	asm := &stubAssembler{fn: func(ctx context.Context, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, context.Canceled
	}}
	m, _ := newTestManager(t, nil, asm)

	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)
	waitForStatus(t, m, id, domain.JobStatusGeneratingPDF)

	assert.Equal(t, ErrJobNotTerminal, m.Delete(id), "active jobs cannot be deleted")

	require.True(t, m.Cancel(id))
	waitForStatus(t, m, id, domain.JobStatusCancelled)
	require.NoError(t, m.Delete(id))

	got, err := m.GetJob(id)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, ErrJobNotFound, m.Delete(id))
}

func TestPanicInStageIsRetried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	agg := &stubAggregator{fn: func(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			panic("nil section pointer")
		}
		return &domain.AggregatedUserData{UserID: userID}, nil
	}}
	m, _ := newTestManager(t, agg, nil, WithRetryDelay(10*time.Millisecond))

	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)

	job := waitForStatus(t, m, id, domain.JobStatusCompleted)
	assert.Equal(t, 1, job.RetryCount, "a panicking attempt counts as a failure, not a crash")
}

func TestGetMetrics(t *testing.T) {
	var mu sync.Mutex
	fail := true
	agg := &stubAggregator{fn: func(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error) {
		mu.Lock()
		f := fail
		mu.Unlock()
		if f {
			return nil, errors.New("source down")
		}
		return &domain.AggregatedUserData{UserID: userID}, nil
	}}
	m, _ := newTestManager(t, agg, nil, WithRetryDelay(time.Millisecond), WithMaxRetries(0))

	failedID, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)
	waitForStatus(t, m, failedID, domain.JobStatusFailed)

	mu.Lock()
	fail = false
	mu.Unlock()

	okID, err := m.Enqueue(testConfig("rep-2", "user-1"), testPolicy("rep-2", "user-1"), 0)
	require.NoError(t, err)
	waitForStatus(t, m, okID, domain.JobStatusCompleted)

	metrics, err := m.GetMetrics("user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.Total)
	assert.Equal(t, 1, metrics.Completed)
	assert.Equal(t, 1, metrics.Failed)
	assert.GreaterOrEqual(t, metrics.AvgProcessingTimeSeconds, 0.0)

	other, err := m.GetMetrics("user-2")
	require.NoError(t, err)
	assert.Equal(t, 0, other.Total)
}

func TestCleanupPurgesOldTerminalJobs(t *testing.T) {
	m, store := newTestManager(t, nil, nil)

	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)
	waitForStatus(t, m, id, domain.JobStatusCompleted)

	// age the record past the retention window
	job, err := store.Get(id)
	require.NoError(t, err)
	old := time.Now().AddDate(0, 0, -45)
	job.CompletedAt = &old
	require.NoError(t, store.Update(job))

	purged, err := m.CleanupOlderThan(30)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	got, err := m.GetJob(id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatusUpdatesFlowThroughNotifier(t *testing.T) {
	block := make(chan struct{})
	asm := &stubAssembler{fn: func(ctx context.Context, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &domain.Artifact{Data: []byte("x"), FileName: "r.pdf", Size: 1, MimeType: "application/pdf"}, nil
	}}
	m, _ := newTestManager(t, nil, asm)

	// subscribe before dispatch can race ahead: block the assembler so the
	// terminal update cannot be published until we are listening
	id, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)

	ch, cancel := m.Notifier().Subscribe(id)
	defer cancel()
	close(block)

	var last JobUpdate
	waitFor(t, "terminal update", func() bool {
		select {
		case u, ok := <-ch:
			if !ok {
				return true
			}
			last = u
			return u.Status.IsTerminal()
		default:
			return false
		}
	})
	assert.Equal(t, domain.JobStatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestGetQueueStats(t *testing.T) {
	release := make(chan struct{})
	asm := &stubAssembler{fn: func(ctx context.Context, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &domain.Artifact{Data: []byte("x"), FileName: "r.pdf", Size: 1, MimeType: "application/pdf"}, nil
	}}
	m, _ := newTestManager(t, nil, asm, WithMaxConcurrentPerUser(1))

	activeID, err := m.Enqueue(testConfig("rep-1", "user-1"), testPolicy("rep-1", "user-1"), 0)
	require.NoError(t, err)
	_, err = m.Enqueue(testConfig("rep-2", "user-1"), testPolicy("rep-2", "user-1"), 0)
	require.NoError(t, err)

	waitForStatus(t, m, activeID, domain.JobStatusGeneratingPDF)

	stats, err := m.GetQueueStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.Users)

	close(release)
}
