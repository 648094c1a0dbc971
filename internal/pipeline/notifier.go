package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"reportgen/pkg/contracts/domain"
)

// EventTypeJobStatus is the websocket event type for job status pushes.
const EventTypeJobStatus = "report:status"

// JobUpdate is one status/progress mutation delivered to subscribers.
type JobUpdate struct {
	JobID       string           `json:"job_id"`
	UserID      string           `json:"user_id"`
	Status      domain.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
	CurrentStep string           `json:"current_step,omitempty"`
	RetryCount  int              `json:"retry_count"`
	Error       string           `json:"error,omitempty"`
	At          time.Time        `json:"at"`
}

// Broadcaster mirrors job updates onto a transport-level fan-out (the
// websocket hub in production).
type Broadcaster interface {
	BroadcastUpdate(eventType, jobID, action string, payload interface{})
}

type subscriber struct {
	id int
	ch chan JobUpdate
}

// StatusNotifier delivers every job state change to per-job subscribers and
// mirrors them to the hub. Subscriptions end on explicit unsubscribe or when
// the job reaches a terminal state, so no timer or channel leaks outlive a
// job.
type StatusNotifier struct {
	mu           sync.Mutex
	subs         map[string][]*subscriber
	lastProgress map[string]int
	nextSubID    int
	hub          Broadcaster
	logger       *slog.Logger
}

// NewStatusNotifier creates a notifier. hub may be nil when push mirroring
// is not wanted (tests, CLI tools).
func NewStatusNotifier(hub Broadcaster, logger *slog.Logger) *StatusNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusNotifier{
		subs:         make(map[string][]*subscriber),
		lastProgress: make(map[string]int),
		hub:          hub,
		logger:       logger.With(slog.String("component", "status_notifier")),
	}
}

// Subscribe registers for every subsequent mutation of the job. The returned
// cancel func is idempotent; the channel is closed on unsubscribe or when
// the job reaches a terminal state.
func (n *StatusNotifier) Subscribe(jobID string) (<-chan JobUpdate, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextSubID++
	sub := &subscriber{
		id: n.nextSubID,
		ch: make(chan JobUpdate, 16),
	}
	n.subs[jobID] = append(n.subs[jobID], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.removeLocked(jobID, sub.id)
		})
	}
	return sub.ch, cancel
}

func (n *StatusNotifier) removeLocked(jobID string, subID int) {
	subs := n.subs[jobID]
	for i, s := range subs {
		if s.id == subID {
			close(s.ch)
			n.subs[jobID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(n.subs[jobID]) == 0 {
		delete(n.subs, jobID)
	}
}

// Publish fans a job mutation out to subscribers and the hub. Progress is
// clamped monotonically non-decreasing within one processing attempt; a
// retry re-enqueue (queued with progress 0) resets the floor.
func (n *StatusNotifier) Publish(job *domain.ReportJob) {
	n.mu.Lock()

	update := JobUpdate{
		JobID:       job.ID,
		UserID:      job.UserID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		RetryCount:  job.RetryCount,
		Error:       job.Error,
		At:          time.Now(),
	}

	if job.Status == domain.JobStatusQueued {
		n.lastProgress[job.ID] = 0
	} else if last, ok := n.lastProgress[job.ID]; ok && update.Progress < last {
		update.Progress = last
	}
	n.lastProgress[job.ID] = update.Progress

	terminal := job.Status.IsTerminal()
	subs := n.subs[job.ID]
	for _, s := range subs {
		select {
		case s.ch <- update:
		default:
			n.logger.Warn("dropping job update for slow subscriber",
				slog.String("job_id", job.ID),
				slog.Int("subscriber", s.id))
		}
	}

	if terminal {
		for _, s := range subs {
			close(s.ch)
		}
		delete(n.subs, job.ID)
		delete(n.lastProgress, job.ID)
	}
	n.mu.Unlock()

	if n.hub != nil {
		n.hub.BroadcastUpdate(EventTypeJobStatus, job.ID, "update", update)
	}
}

// SubscriberCount returns how many subscribers a job currently has.
func (n *StatusNotifier) SubscriberCount(jobID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[jobID])
}
