package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore はプロセス内でジョブ状態を保持します。
// レコードは書き込みごとに差し替えるため、読み取り側はロックを短時間しか保持しません。
type MemoryStore struct {
	mu   sync.RWMutex
	seq  int64
	jobs map[int64]*Job
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[int64]*Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	job.ID = s.seq
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = job.clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID int64) (*Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(jobID)
	}
	return job.clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, jobID int64, mutate func(*Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return notFound(jobID)
	}
	next := current.clone()
	if err := mutate(next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	next.ID = jobID
	s.jobs[jobID] = next
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	list := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, job.clone())
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) CompletedBefore(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Job
	for _, job := range s.jobs {
		if job.Status == StatusCompleted && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			list = append(list, job.clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID int64) error {
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
