package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dunamismax/pixelfit/internal/domain"
)

// MemoryJobStore keeps jobs and usage in process. Single-replica only.
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.Job
	usage []domain.UsageLog
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Variants = slices.Clone(job.Variants)
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false, nil
	}
	job.Variants = slices.Clone(job.Variants)
	return job, true, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	job.Variants = slices.Clone(job.Variants)
	return job, nil
}

func (s *MemoryJobStore) RecordUsage(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	s.usage = append(s.usage, usage)
	return nil
}

// Usage returns the recorded usage rows for a user, oldest first.
func (s *MemoryJobStore) Usage(userID string) []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.UsageLog
	for _, u := range s.usage {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out
}
