package pipeline

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/pkg/contracts/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishJob(n *StatusNotifier, id string, status domain.JobStatus, progress int) {
	n.Publish(&domain.ReportJob{
		ID:       id,
		UserID:   "user-1",
		Status:   status,
		Progress: progress,
	})
}

func drain(ch <-chan JobUpdate, n int) []JobUpdate {
	updates := make([]JobUpdate, 0, n)
	for i := 0; i < n; i++ {
		select {
		case u := <-ch:
			updates = append(updates, u)
		case <-time.After(time.Second):
			return updates
		}
	}
	return updates
}

func TestNotifierDeliversUpdates(t *testing.T) {
	n := NewStatusNotifier(nil, quietLogger())

	ch, cancel := n.Subscribe("job-1")
	defer cancel()

	publishJob(n, "job-1", domain.JobStatusProcessing, 10)
	publishJob(n, "job-1", domain.JobStatusGeneratingCharts, 30)
	publishJob(n, "job-2", domain.JobStatusProcessing, 10)

	updates := drain(ch, 2)
	require.Len(t, updates, 2)
	assert.Equal(t, domain.JobStatusProcessing, updates[0].Status)
	assert.Equal(t, 30, updates[1].Progress)
	for _, u := range updates {
		assert.Equal(t, "job-1", u.JobID, "subscribers only see their own job")
	}
}

func TestNotifierProgressIsMonotonicWithinAttempt(t *testing.T) {
	n := NewStatusNotifier(nil, quietLogger())
	ch, cancel := n.Subscribe("job-1")
	defer cancel()

	publishJob(n, "job-1", domain.JobStatusProcessing, 10)
	publishJob(n, "job-1", domain.JobStatusGeneratingCharts, 30)
	// a stale write must not move progress backwards
	publishJob(n, "job-1", domain.JobStatusGeneratingCharts, 20)
	// retry re-enqueue resets the floor
	publishJob(n, "job-1", domain.JobStatusQueued, 0)
	publishJob(n, "job-1", domain.JobStatusProcessing, 10)

	updates := drain(ch, 5)
	require.Len(t, updates, 5)
	progress := []int{updates[0].Progress, updates[1].Progress, updates[2].Progress, updates[3].Progress, updates[4].Progress}
	assert.Equal(t, []int{10, 30, 30, 0, 10}, progress)
}

func TestNotifierClosesChannelOnTerminalState(t *testing.T) {
	n := NewStatusNotifier(nil, quietLogger())
	ch, cancel := n.Subscribe("job-1")
	defer cancel()

	publishJob(n, "job-1", domain.JobStatusProcessing, 10)
	publishJob(n, "job-1", domain.JobStatusCompleted, 100)

	updates := drain(ch, 2)
	require.Len(t, updates, 2)
	assert.Equal(t, domain.JobStatusCompleted, updates[1].Status)

	_, open := <-ch
	assert.False(t, open, "terminal state closes the subscription channel")
	assert.Equal(t, 0, n.SubscriberCount("job-1"))
}

func TestNotifierUnsubscribeIsIdempotent(t *testing.T) {
	n := NewStatusNotifier(nil, quietLogger())
	_, cancel := n.Subscribe("job-1")
	assert.Equal(t, 1, n.SubscriberCount("job-1"))

	cancel()
	cancel()
	assert.Equal(t, 0, n.SubscriberCount("job-1"))

	// publishing after unsubscribe must not panic
	publishJob(n, "job-1", domain.JobStatusProcessing, 10)
}

type captureHub struct {
	mu     sync.Mutex
	events []string
}

func (h *captureHub) BroadcastUpdate(eventType, jobID, action string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType+":"+jobID+":"+action)
}

func TestNotifierMirrorsToHub(t *testing.T) {
	hub := &captureHub{}
	n := NewStatusNotifier(hub, quietLogger())

	publishJob(n, "job-1", domain.JobStatusProcessing, 10)

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.events, 1)
	assert.Equal(t, EventTypeJobStatus+":job-1:update", hub.events[0])
}
