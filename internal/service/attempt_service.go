package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prepnest/attempt-backend/internal/assets"
	"github.com/prepnest/attempt-backend/internal/engine"
	"github.com/prepnest/attempt-backend/internal/examapi"
	"github.com/prepnest/attempt-backend/internal/model"
	"github.com/prepnest/attempt-backend/internal/normalize"
	"github.com/prepnest/attempt-backend/internal/repository"
	"github.com/prepnest/attempt-backend/internal/session"
)

// Attempt access errors.
var (
	ErrAttemptNotFound = errors.New("no live attempt with this id")
	ErrNotAttemptOwner = errors.New("attempt belongs to another candidate")
)

// AttemptService owns the registry of live attempt engines: one engine per
// in-flight (exam, candidate) attempt. Starting an attempt that is already
// live resumes the existing engine; it never re-creates timing state.
type AttemptService struct {
	api        examapi.Client
	store      session.Store
	normalizer *normalize.Normalizer
	sink       engine.EventSink
	repo       *repository.AttemptRepository
	loader     *assets.Loader
	clock      engine.Clock
	log        zerolog.Logger

	mu      sync.Mutex
	engines map[string]*engine.Engine
	owners  map[string]int
}

// NewAttemptService creates an AttemptService. repo and loader may be nil
// when Postgres archival or asset warming is disabled (tests).
func NewAttemptService(
	api examapi.Client,
	store session.Store,
	normalizer *normalize.Normalizer,
	sink engine.EventSink,
	repo *repository.AttemptRepository,
	loader *assets.Loader,
	clock engine.Clock,
	log zerolog.Logger,
) *AttemptService {
	if clock == nil {
		clock = engine.SystemClock
	}
	return &AttemptService{
		api:        api,
		store:      store,
		normalizer: normalizer,
		sink:       sink,
		repo:       repo,
		loader:     loader,
		clock:      clock,
		log:        log.With().Str("component", "attempt_service").Logger(),
		engines:    map[string]*engine.Engine{},
		owners:     map[string]int{},
	}
}

// Start begins or rehydrates an attempt. The exam service issues the attempt
// id and the raw paper; the paper is normalized exactly once, here. Fatal
// load failures (not-found, forbidden, transport) surface as
// *examapi.LoadError and never leave a registered engine behind.
func (s *AttemptService) Start(ctx context.Context, examID string, candidateID int) (*model.AttemptState, error) {
	paper, err := s.api.StartAttempt(ctx, examID, candidateID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if eng, ok := s.engines[paper.AttemptID]; ok {
		owner := s.owners[paper.AttemptID]
		s.mu.Unlock()
		if owner != candidateID {
			return nil, ErrNotAttemptOwner
		}
		eng.Resume(ctx)
		state := eng.Snapshot()
		state.Questions = eng.Questions()
		return &state, nil
	}
	s.mu.Unlock()

	questions := s.normalizer.NormalizeAll(paper.Questions)
	if s.loader != nil {
		s.loader.Warm(imageURLs(questions))
	}

	eng := engine.New(engine.Config{
		AttemptID:   paper.AttemptID,
		CandidateID: candidateID,
		Exam:        paper.Exam,
		Questions:   questions,
		Store:       s.store,
		API:         s.api,
		Sink:        s.sink,
		Clock:       s.clock,
		Logger:      s.log,
	})

	if err := eng.Start(ctx); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	if s.repo != nil {
		// Best-effort audit row; the session store is what correctness
		// depends on.
		if err := s.repo.Upsert(ctx, paper.AttemptID, examID, candidateID, s.clock.Now()); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", paper.AttemptID).Msg("Attempt audit upsert failed")
		}
	}

	if eng.Status() != model.AttemptStatusTooEarly {
		s.mu.Lock()
		s.engines[paper.AttemptID] = eng
		s.owners[paper.AttemptID] = candidateID
		s.mu.Unlock()
	}

	state := eng.Snapshot()
	state.Questions = questions
	return &state, nil
}

// Get returns the live engine for an attempt after an ownership check.
func (s *AttemptService) Get(attemptID string, candidateID int) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eng, ok := s.engines[attemptID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if s.owners[attemptID] != candidateID {
		return nil, ErrNotAttemptOwner
	}
	return eng, nil
}

// State returns the reload snapshot, including the normalized paper, and
// marks the client as reattached.
func (s *AttemptService) State(ctx context.Context, attemptID string, candidateID int) (*model.AttemptState, error) {
	eng, err := s.Get(attemptID, candidateID)
	if err != nil {
		return nil, err
	}
	eng.Resume(ctx)
	state := eng.Snapshot()
	state.Questions = eng.Questions()
	// Serve the terminal snapshot once (auto-submission may have finished
	// the attempt between requests), then let the registry forget it.
	s.reapIfTerminal(attemptID, eng)
	return &state, nil
}

// AcknowledgeRules starts the countdown for an attempt.
func (s *AttemptService) AcknowledgeRules(ctx context.Context, attemptID string, candidateID int) (*model.AttemptState, error) {
	eng, err := s.Get(attemptID, candidateID)
	if err != nil {
		return nil, err
	}
	if err := eng.AcknowledgeRules(ctx); err != nil {
		s.reapIfTerminal(attemptID, eng)
		return nil, err
	}
	s.reapIfTerminal(attemptID, eng)
	state := eng.Snapshot()
	return &state, nil
}

// Submit dispatches a manual submission. A *examapi.SubmitError is
// recoverable: the engine is already back IN_PROGRESS and the handler tells
// the candidate to retry.
func (s *AttemptService) Submit(ctx context.Context, attemptID string, candidateID int) (*model.AttemptState, error) {
	eng, err := s.Get(attemptID, candidateID)
	if err != nil {
		return nil, err
	}

	err = eng.Submit(ctx, false)
	s.reapIfTerminal(attemptID, eng)
	if err != nil {
		return nil, err
	}
	state := eng.Snapshot()
	return &state, nil
}

// History lists the candidate's archived attempts, newest first. Returns an
// empty list when archival is disabled.
func (s *AttemptService) History(ctx context.Context, candidateID int) ([]repository.AttemptRecord, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListByCandidate(ctx, candidateID)
}

// Record returns the archived audit row for one attempt after an ownership
// check. Used for attempts the live registry has already forgotten.
func (s *AttemptService) Record(ctx context.Context, attemptID string, candidateID int) (*repository.AttemptRecord, error) {
	if s.repo == nil {
		return nil, ErrAttemptNotFound
	}
	rec, err := s.repo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, ErrAttemptNotFound
	}
	if rec.CandidateID != candidateID {
		return nil, ErrNotAttemptOwner
	}
	return rec, nil
}

// ClientGone tells the engine its event stream dropped.
func (s *AttemptService) ClientGone(ctx context.Context, attemptID string, candidateID int) {
	eng, err := s.Get(attemptID, candidateID)
	if err != nil {
		return
	}
	if err := eng.ClientGone(ctx); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Disconnect flush failed")
	}
}

func imageURLs(questions []model.NormalizedQuestion) []string {
	var urls []string
	for i := range questions {
		if questions[i].PromptImage != "" {
			urls = append(urls, questions[i].PromptImage)
		}
		for _, opt := range questions[i].Options {
			if opt.Image != "" {
				urls = append(urls, opt.Image)
			}
		}
	}
	return urls
}

// reapIfTerminal drops a finished engine from the registry. Auto-submission
// can also finish an engine between requests, so every command path calls
// this after touching the engine.
func (s *AttemptService) reapIfTerminal(attemptID string, eng *engine.Engine) {
	if !eng.Status().Terminal() {
		return
	}
	s.mu.Lock()
	delete(s.engines, attemptID)
	delete(s.owners, attemptID)
	s.mu.Unlock()
}
