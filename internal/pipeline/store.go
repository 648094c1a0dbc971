package pipeline

import (
	"sort"
	"sync"
	"time"

	"reportgen/pkg/contracts/domain"
)

// JobStore persists report jobs. Implementations must return copies so
// callers can never mutate a stored record directly.
type JobStore interface {
	Create(job *domain.ReportJob) error
	Get(id string) (*domain.ReportJob, error)
	Update(job *domain.ReportJob) error
	Delete(id string) error
	List(filter JobFilter) ([]*domain.ReportJob, error)

	// NextQueued returns the user's next dispatchable job: status queued,
	// NextAttemptAt at or before now, ordered by priority descending then
	// QueuedAt ascending. Returns nil when nothing is eligible.
	NextQueued(userID string, now time.Time) (*domain.ReportJob, error)

	// QueuedUserIDs returns the users that have at least one dispatchable
	// job at the given instant.
	QueuedUserIDs(now time.Time) []string

	// CountActive returns how many of the user's jobs currently hold a
	// concurrency token.
	CountActive(userID string) int

	// CleanupOlderThan purges terminal jobs whose CompletedAt precedes the
	// cutoff, returning the number purged.
	CleanupOlderThan(cutoff time.Time) (int, error)
}

// MemoryJobStore is the in-memory JobStore implementation. Records survive
// requester disconnection for the process lifetime; a persistent
// implementation can replace it behind the same interface.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ReportJob
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.ReportJob)}
}

// Create stores a new job.
func (s *MemoryJobStore) Create(job *domain.ReportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return &PipelineError{Type: ErrorTypeState, Message: "job " + job.ID + " already exists"}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get retrieves a job copy by ID.
func (s *MemoryJobStore) Get(id string) (*domain.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// Update replaces an existing job record.
func (s *MemoryJobStore) Update(job *domain.ReportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return ErrJobNotFound
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Delete removes a job record.
func (s *MemoryJobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// List returns job copies matching the filter, newest first.
func (s *MemoryJobStore) List(filter JobFilter) ([]*domain.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ReportJob
	for _, job := range s.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, job.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].QueuedAt.After(result[j].QueuedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// NextQueued implements the dispatch ordering: priority descending with a
// strict FIFO tie-break on QueuedAt.
func (s *MemoryJobStore) NextQueued(userID string, now time.Time) (*domain.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.ReportJob
	for _, job := range s.jobs {
		if job.UserID != userID || job.Status != domain.JobStatusQueued {
			continue
		}
		if job.NextAttemptAt != nil && job.NextAttemptAt.After(now) {
			continue
		}
		if best == nil || queuedBefore(job, best) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

// queuedBefore reports whether a dispatches ahead of b.
func queuedBefore(a, b *domain.ReportJob) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.QueuedAt.Equal(b.QueuedAt) {
		return a.QueuedAt.Before(b.QueuedAt)
	}
	return a.ID < b.ID
}

// QueuedUserIDs returns users with at least one dispatchable job.
func (s *MemoryJobStore) QueuedUserIDs(now time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var users []string
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusQueued {
			continue
		}
		if job.NextAttemptAt != nil && job.NextAttemptAt.After(now) {
			continue
		}
		if _, ok := seen[job.UserID]; !ok {
			seen[job.UserID] = struct{}{}
			users = append(users, job.UserID)
		}
	}
	sort.Strings(users)
	return users
}

// CountActive counts the user's jobs in token-holding states.
func (s *MemoryJobStore) CountActive(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, job := range s.jobs {
		if job.UserID == userID && job.Status.IsActive() {
			count++
		}
	}
	return count
}

// CleanupOlderThan purges terminal jobs completed before the cutoff.
func (s *MemoryJobStore) CleanupOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, job := range s.jobs {
		if !job.Status.IsTerminal() {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Stats reports queue occupancy.
func (s *MemoryJobStore) Stats() QueueStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := QueueStats{}
	users := make(map[string]struct{})
	for _, job := range s.jobs {
		users[job.UserID] = struct{}{}
		switch {
		case job.Status == domain.JobStatusQueued:
			stats.Queued++
		case job.Status.IsActive():
			stats.Active++
		}
	}
	stats.Users = len(users)
	return stats
}
