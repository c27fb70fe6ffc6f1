package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs the failsafe wrapper's
// degraded mode and the engine's tests. Maps are copied on the way in and
// out so callers cannot alias the stored state.
type MemoryStore struct {
	mu     sync.Mutex
	starts map[string]int64
	ans    map[string]map[string]string
	rev    map[string]map[string]bool
	time   map[string]map[string]float64
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		starts: map[string]int64{},
		ans:    map[string]map[string]string{},
		rev:    map[string]map[string]bool{},
		time:   map[string]map[string]float64{},
	}
}

func (s *MemoryStore) GetOrInitStartTimestamp(_ context.Context, attemptID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ms, ok := s.starts[attemptID]; ok {
		return ms, nil
	}
	ms := now.UnixMilli()
	s.starts[attemptID] = ms
	return ms, nil
}

func (s *MemoryStore) LoadAnswers(_ context.Context, attemptID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for k, v := range s.ans[attemptID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SaveAnswers(_ context.Context, attemptID string, answers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]string, len(answers))
	for k, v := range answers {
		cp[k] = v
	}
	s.ans[attemptID] = cp
	return nil
}

func (s *MemoryStore) LoadReview(_ context.Context, attemptID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for k, v := range s.rev[attemptID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SaveReview(_ context.Context, attemptID string, review map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]bool, len(review))
	for k, v := range review {
		cp[k] = v
	}
	s.rev[attemptID] = cp
	return nil
}

func (s *MemoryStore) LoadTimeSpent(_ context.Context, attemptID string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]float64{}
	for k, v := range s.time[attemptID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SaveTimeSpent(_ context.Context, attemptID string, spent map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]float64, len(spent))
	for k, v := range spent {
		cp[k] = v
	}
	s.time[attemptID] = cp
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.starts, attemptID)
	delete(s.ans, attemptID)
	delete(s.rev, attemptID)
	delete(s.time, attemptID)
	return nil
}
