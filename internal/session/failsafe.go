package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FailsafeStore wraps a durable Store with an in-memory mirror. Persistence
// is best-effort: when the durable backend fails (quota, outage, disabled
// storage) the session keeps running against the mirror for the lifetime of
// this process, and a later reload restarts timing from zero. That degraded
// mode is deliberate — a storage incident must never block exam-taking.
type FailsafeStore struct {
	inner  Store
	mirror *MemoryStore
	log    zerolog.Logger

	mu       sync.Mutex
	degraded map[string]bool
}

// NewFailsafeStore wraps inner with an in-memory mirror.
func NewFailsafeStore(inner Store, log zerolog.Logger) *FailsafeStore {
	return &FailsafeStore{
		inner:    inner,
		mirror:   NewMemoryStore(),
		log:      log.With().Str("component", "session_store").Logger(),
		degraded: map[string]bool{},
	}
}

// Degraded reports whether the attempt has fallen back to memory-only mode.
func (s *FailsafeStore) Degraded(attemptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded[attemptID]
}

func (s *FailsafeStore) markDegraded(attemptID string, err error) {
	s.mu.Lock()
	already := s.degraded[attemptID]
	s.degraded[attemptID] = true
	s.mu.Unlock()

	if !already {
		s.log.Warn().Err(err).
			Str("attempt_id", attemptID).
			Msg("Durable store unavailable, continuing in-memory only")
	}
}

func (s *FailsafeStore) GetOrInitStartTimestamp(ctx context.Context, attemptID string, now time.Time) (int64, error) {
	ms, err := s.inner.GetOrInitStartTimestamp(ctx, attemptID, now)
	if err != nil {
		s.markDegraded(attemptID, err)
		return s.mirror.GetOrInitStartTimestamp(ctx, attemptID, now)
	}
	// Mirror the durable value so a mid-attempt degradation keeps the anchor.
	s.mirror.mu.Lock()
	s.mirror.starts[attemptID] = ms
	s.mirror.mu.Unlock()
	return ms, nil
}

func (s *FailsafeStore) LoadAnswers(ctx context.Context, attemptID string) (map[string]string, error) {
	if s.Degraded(attemptID) {
		return s.mirror.LoadAnswers(ctx, attemptID)
	}
	out, err := s.inner.LoadAnswers(ctx, attemptID)
	if err != nil {
		s.markDegraded(attemptID, err)
		return s.mirror.LoadAnswers(ctx, attemptID)
	}
	return out, nil
}

func (s *FailsafeStore) SaveAnswers(ctx context.Context, attemptID string, answers map[string]string) error {
	// Mirror first: the in-memory copy must be current even if the durable
	// write below fails.
	_ = s.mirror.SaveAnswers(ctx, attemptID, answers)
	if s.Degraded(attemptID) {
		return nil
	}
	if err := s.inner.SaveAnswers(ctx, attemptID, answers); err != nil {
		s.markDegraded(attemptID, err)
	}
	return nil
}

func (s *FailsafeStore) LoadReview(ctx context.Context, attemptID string) (map[string]bool, error) {
	if s.Degraded(attemptID) {
		return s.mirror.LoadReview(ctx, attemptID)
	}
	out, err := s.inner.LoadReview(ctx, attemptID)
	if err != nil {
		s.markDegraded(attemptID, err)
		return s.mirror.LoadReview(ctx, attemptID)
	}
	return out, nil
}

func (s *FailsafeStore) SaveReview(ctx context.Context, attemptID string, review map[string]bool) error {
	_ = s.mirror.SaveReview(ctx, attemptID, review)
	if s.Degraded(attemptID) {
		return nil
	}
	if err := s.inner.SaveReview(ctx, attemptID, review); err != nil {
		s.markDegraded(attemptID, err)
	}
	return nil
}

func (s *FailsafeStore) LoadTimeSpent(ctx context.Context, attemptID string) (map[string]float64, error) {
	if s.Degraded(attemptID) {
		return s.mirror.LoadTimeSpent(ctx, attemptID)
	}
	out, err := s.inner.LoadTimeSpent(ctx, attemptID)
	if err != nil {
		s.markDegraded(attemptID, err)
		return s.mirror.LoadTimeSpent(ctx, attemptID)
	}
	return out, nil
}

func (s *FailsafeStore) SaveTimeSpent(ctx context.Context, attemptID string, spent map[string]float64) error {
	_ = s.mirror.SaveTimeSpent(ctx, attemptID, spent)
	if s.Degraded(attemptID) {
		return nil
	}
	if err := s.inner.SaveTimeSpent(ctx, attemptID, spent); err != nil {
		s.markDegraded(attemptID, err)
	}
	return nil
}

func (s *FailsafeStore) Purge(ctx context.Context, attemptID string) error {
	_ = s.mirror.Purge(ctx, attemptID)

	s.mu.Lock()
	wasDegraded := s.degraded[attemptID]
	delete(s.degraded, attemptID)
	s.mu.Unlock()

	if wasDegraded {
		// Still try the durable delete: stale keys from before the
		// degradation would otherwise poison the next attempt load.
		_ = s.inner.Purge(ctx, attemptID)
		return nil
	}
	return s.inner.Purge(ctx, attemptID)
}
