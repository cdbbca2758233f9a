package job

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store with the same conditional-write semantics
// as the SQL implementation. It backs the poller, service and sweeper tests.
type memStore struct {
	mu        sync.Mutex
	jobs      map[string]map[string]*Job // lane -> id -> job
	resources map[string]map[string]bool // lane -> resource ids that exist
}

func newMemStore(lanes ...string) *memStore {
	s := &memStore{
		jobs:      make(map[string]map[string]*Job),
		resources: make(map[string]map[string]bool),
	}
	for _, lane := range lanes {
		s.jobs[lane] = make(map[string]*Job)
		s.resources[lane] = make(map[string]bool)
	}
	return s
}

func (s *memStore) addResource(lane, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[lane][id] = true
}

func (s *memStore) CreateJob(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.Lane][j.ID] = &cp
	return nil
}

func (s *memStore) GetJob(_ context.Context, lane, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[lane][id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) ActiveJobForResource(_ context.Context, lane, resourceID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs[lane] {
		if j.ResourceID == resourceID && !j.Status.Terminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ProcessingJobs(_ context.Context, lane string) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, j := range s.jobs[lane] {
		if j.Status == StatusProcessing {
			cp := *j
			out = append(out, &cp)
		}
	}
	sortJobs(out, func(j *Job) time.Time {
		if j.StartedAt != nil {
			return *j.StartedAt
		}
		return j.CreatedAt
	})
	return out, nil
}

func (s *memStore) OldestPending(_ context.Context, lane string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, j := range s.jobs[lane] {
		if j.Status == StatusPending {
			cp := *j
			out = append(out, &cp)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	sortJobs(out, func(j *Job) time.Time { return j.CreatedAt })
	return out[0], nil
}

func (s *memStore) ClaimPending(_ context.Context, lane, id string, cap int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[lane][id]
	if !ok || j.Status != StatusPending {
		return false, nil
	}
	// Occupancy is checked under the same lock as the claim, mirroring the
	// SQL store's atomic occupancy-guarded update.
	processing := 0
	for _, other := range s.jobs[lane] {
		if other.Status == StatusProcessing {
			processing++
		}
	}
	if processing >= cap {
		return false, nil
	}
	j.Status = StatusProcessing
	t := now
	j.StartedAt = &t
	return true, nil
}

func (s *memStore) ReleaseClaim(_ context.Context, lane, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[lane][id]
	if !ok || j.Status != StatusProcessing || j.ExternalRef != nil {
		return false, nil
	}
	j.Status = StatusPending
	j.StartedAt = nil
	return true, nil
}

func (s *memStore) SetSubmitted(_ context.Context, lane, id, externalRef, externalStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[lane][id]
	if !ok || j.Status != StatusProcessing {
		return nil
	}
	j.ExternalRef = &externalRef
	j.ExternalStatus = &externalStatus
	return nil
}

func (s *memStore) UpdateProgress(_ context.Context, lane, id string, progress int, externalStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[lane][id]
	if !ok || j.Status != StatusProcessing {
		return nil
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.ExternalStatus = &externalStatus
	return nil
}

func (s *memStore) MarkCompleted(_ context.Context, lane, id, externalStatus string, artifacts map[string]string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[lane][id]
	if !ok || j.Status != StatusProcessing {
		return false, nil
	}
	j.Status = StatusCompleted
	j.Progress = 100
	j.ExternalStatus = &externalStatus
	if len(artifacts) > 0 {
		j.Artifacts = make(map[string]string, len(artifacts))
		for k, v := range artifacts {
			j.Artifacts[k] = v
		}
	}
	t := now
	j.CompletedAt = &t
	return true, nil
}

func (s *memStore) MarkFailed(_ context.Context, lane, id, errMsg string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[lane][id]
	if !ok || (j.Status != StatusPending && j.Status != StatusProcessing) {
		return false, nil
	}
	j.Status = StatusFailed
	j.Error = &errMsg
	t := now
	j.CompletedAt = &t
	return true, nil
}

func (s *memStore) ResetJob(_ context.Context, lane, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[lane][id]
	if !ok || (j.Status != StatusFailed && j.Status != StatusProcessing) {
		return false, nil
	}
	j.Status = StatusPending
	j.Progress = 0
	j.ExternalRef = nil
	j.ExternalStatus = nil
	j.Error = nil
	j.Artifacts = nil
	j.StartedAt = nil
	j.CompletedAt = nil
	return true, nil
}

func (s *memStore) SweepAbandoned(_ context.Context, lane string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, j := range s.jobs[lane] {
		if j.Status == StatusFailed && j.CreatedAt.Before(cutoff) && !s.resources[lane][j.ResourceID] {
			delete(s.jobs[lane], id)
			deleted++
		}
	}
	return deleted, nil
}

func sortJobs(jobs []*Job, key func(*Job) time.Time) {
	for i := 1; i < len(jobs); i++ {
		for k := i; k > 0; k-- {
			a, b := jobs[k-1], jobs[k]
			ka, kb := key(a), key(b)
			if ka.Before(kb) || (ka.Equal(kb) && a.ID <= b.ID) {
				break
			}
			jobs[k-1], jobs[k] = b, a
		}
	}
}
