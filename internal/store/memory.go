package store

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

// MemoryStore is an in-memory JobStore for tests and single-process use.
// Records are stored as JSON snapshots so callers can keep mutating their
// job instance without affecting what readers observe.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string][]byte
	status   map[string]model.JobStatus
	progress map[string][]byte
	order    []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string][]byte),
		status:   make(map[string]model.JobStatus),
		progress: make(map[string][]byte),
	}
}

func (s *MemoryStore) Create(ctx context.Context, job *model.AnalysisJob) error {
	snap, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "memory: marshal job")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return eris.Errorf("memory: job %s already exists", job.JobID)
	}
	s.jobs[job.JobID] = snap
	s.status[job.JobID] = job.Status
	s.order = append(s.order, job.JobID)
	return nil
}

func (s *MemoryStore) SaveProgress(ctx context.Context, jobID string, ev model.ProgressEvent) error {
	snap, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "memory: marshal progress")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[jobID]; !exists {
		return ErrNotFound
	}
	s.progress[jobID] = snap
	return nil
}

func (s *MemoryStore) SaveResult(ctx context.Context, jobID string, job *model.AnalysisJob) error {
	snap, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "memory: marshal result")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.status[jobID]
	if !exists {
		return ErrNotFound
	}
	if current.Terminal() {
		return ErrTerminal
	}
	s.jobs[jobID] = snap
	s.status[jobID] = job.Status
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	s.mu.RLock()
	snap, exists := s.jobs[jobID]
	s.mu.RUnlock()
	if !exists {
		return nil, ErrNotFound
	}

	var job model.AnalysisJob
	if err := json.Unmarshal(snap, &job); err != nil {
		return nil, eris.Wrap(err, "memory: unmarshal job")
	}
	return &job, nil
}

func (s *MemoryStore) LatestProgress(ctx context.Context, jobID string) (*model.ProgressEvent, error) {
	s.mu.RLock()
	snap, ok := s.progress[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var ev model.ProgressEvent
	if err := json.Unmarshal(snap, &ev); err != nil {
		return nil, eris.Wrap(err, "memory: unmarshal progress")
	}
	return &ev, nil
}

func (s *MemoryStore) List(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error) {
	s.mu.RLock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.RUnlock()

	// Insertion order is oldest first; walk it backwards.
	slices.Reverse(ids)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var jobs []model.AnalysisJob
	skipped := 0
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		jobs = append(jobs, *job)
		if len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[jobID]; !exists {
		return false, nil
	}
	delete(s.jobs, jobID)
	delete(s.status, jobID)
	delete(s.progress, jobID)
	for i, id := range s.order {
		if id == jobID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
