// Package engine implements the attempt state machine: one Engine per live
// (exam, candidate) attempt, owning timing, answer mutation rules, and the
// single-submission guarantee. Every event the exam page produces lands
// here, and every mutation is written through the session store before it is
// acknowledged, so a reload reconstructs identical state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepnest/attempt-backend/internal/examapi"
	"github.com/prepnest/attempt-backend/internal/model"
	"github.com/prepnest/attempt-backend/internal/session"
	"github.com/prepnest/attempt-backend/internal/tracker"
)

// Engine command errors.
var (
	ErrWrongState      = errors.New("operation not valid in current attempt state")
	ErrNotEditable     = errors.New("attempt is no longer editable")
	ErrUnknownQuestion = errors.New("unknown question id")
	ErrInvalidOption   = errors.New("answer references an option the question does not have")
	ErrInvalidInteger  = errors.New("answer is not a valid integer value")
)

// Config wires an Engine's collaborators.
type Config struct {
	AttemptID   string
	CandidateID int
	Exam        model.ExamMeta
	Questions   []model.NormalizedQuestion
	Store       session.Store
	API         examapi.Client
	Sink        EventSink
	Clock       Clock
	Logger      zerolog.Logger
}

// Engine is the attempt state machine. A single mutex serializes every
// transition — commands, ticks, and submission — which is what makes the
// "no mutation while a submit is outstanding" rule hold by construction.
type Engine struct {
	attemptID   string
	candidateID int
	exam        model.ExamMeta
	questions   []model.NormalizedQuestion
	byID        map[string]*model.NormalizedQuestion

	store session.Store
	api   examapi.Client
	sink  EventSink
	clock Clock
	log   zerolog.Logger

	mu         sync.Mutex
	status     model.AttemptStatus
	startMs    int64
	remaining  int
	answers    map[string]string
	review     map[string]bool
	track      *tracker.Tracker
	currentQID string
	offline    bool
	hidden     bool
	suspended  bool

	baseCtx    context.Context
	tickCancel context.CancelFunc
}

// New creates an Engine in NOT_STARTED. Call Start to load or rehydrate.
func New(cfg Config) *Engine {
	byID := make(map[string]*model.NormalizedQuestion, len(cfg.Questions))
	for i := range cfg.Questions {
		byID[cfg.Questions[i].ID] = &cfg.Questions[i]
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NopSink{}
	}

	return &Engine{
		attemptID:   cfg.AttemptID,
		candidateID: cfg.CandidateID,
		exam:        cfg.Exam,
		questions:   cfg.Questions,
		byID:        byID,
		store:       cfg.Store,
		api:         cfg.API,
		sink:        sink,
		clock:       clock,
		log: cfg.Logger.With().
			Str("component", "attempt_engine").
			Str("attempt_id", cfg.AttemptID).
			Logger(),
		status: model.AttemptStatusNotStarted,
	}
}

// Start stamps (or rehydrates) the start timestamp and loads persisted
// answers, review flags, and time spent. The stamp happens exactly once per
// attempt: re-entering the same attempt resumes the original anchor, it
// never re-grants duration. Before the scheduled start the attempt parks in
// TOO_EARLY with no timer running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != model.AttemptStatusNotStarted {
		return ErrWrongState
	}

	now := e.clock.Now()
	if now.Before(e.exam.ScheduledAt) {
		e.status = model.AttemptStatusTooEarly
		e.log.Info().Time("scheduled_at", e.exam.ScheduledAt).Msg("Attempt requested before schedule")
		return nil
	}

	startMs, err := e.store.GetOrInitStartTimestamp(ctx, e.attemptID, now)
	if err != nil {
		e.status = model.AttemptStatusFailed
		return fmt.Errorf("init start timestamp: %w", err)
	}
	e.startMs = startMs

	// Loads tolerate a first-ever attempt: absence yields empty structures.
	answers, err := e.store.LoadAnswers(ctx, e.attemptID)
	if err != nil {
		e.status = model.AttemptStatusFailed
		return fmt.Errorf("load answers: %w", err)
	}
	review, err := e.store.LoadReview(ctx, e.attemptID)
	if err != nil {
		e.status = model.AttemptStatusFailed
		return fmt.Errorf("load review: %w", err)
	}
	spent, err := e.store.LoadTimeSpent(ctx, e.attemptID)
	if err != nil {
		e.status = model.AttemptStatusFailed
		return fmt.Errorf("load time spent: %w", err)
	}

	e.answers = answers
	e.review = review
	e.track = tracker.New(now, spent)
	e.baseCtx = context.Background()
	e.status = model.AttemptStatusRulesPending

	e.log.Info().
		Int64("start_ms", startMs).
		Int("answers", len(answers)).
		Msg("Attempt loaded")
	return nil
}

// AcknowledgeRules moves RULES_PENDING → IN_PROGRESS and starts the
// countdown loop. The timer loop begins here, not at load; remaining time is
// still derived from the persisted start timestamp, so reading the rules
// slowly costs exam time exactly as the original flow intends. Idempotent
// once IN_PROGRESS so a reload re-acknowledging is harmless.
func (e *Engine) AcknowledgeRules(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == model.AttemptStatusInProgress {
		return nil
	}
	if e.status != model.AttemptStatusRulesPending {
		return ErrWrongState
	}

	now := e.clock.Now()
	e.remaining = e.deriveRemaining(now)
	if len(e.questions) > 0 {
		e.currentQID = e.questions[0].ID
	}
	e.track.ResetAnchor(now)
	e.status = model.AttemptStatusInProgress
	e.startTicker()

	e.log.Info().Int("remaining_seconds", e.remaining).Msg("Attempt in progress")

	// A reload past expiry must auto-submit immediately with zero remaining,
	// never wait for the next tick.
	if e.remaining == 0 {
		return e.submitLocked(ctx, true)
	}
	return nil
}

// SelectAnswer records a single answer and persists the whole answer map
// before returning. Empty value clears the answer (deselect).
func (e *Engine) SelectAnswer(ctx context.Context, questionID, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != model.AttemptStatusInProgress {
		return ErrNotEditable
	}
	q, ok := e.byID[questionID]
	if !ok {
		return ErrUnknownQuestion
	}

	value = strings.TrimSpace(value)
	if value == "" {
		delete(e.answers, questionID)
	} else {
		if err := validateAnswer(q, value); err != nil {
			return err
		}
		e.answers[questionID] = value
	}

	// Write-then-acknowledge: the durable copy is current before the client
	// hears "saved".
	if err := e.store.SaveAnswers(ctx, e.attemptID, e.answers); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	e.sink.AnswerSaved(e.attemptID, e.candidateID, questionID, value)
	return nil
}

// SetReview toggles the advisory review flag on a question. Review flags
// never block submission.
func (e *Engine) SetReview(ctx context.Context, questionID string, marked bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != model.AttemptStatusInProgress {
		return ErrNotEditable
	}
	if _, ok := e.byID[questionID]; !ok {
		return ErrUnknownQuestion
	}

	if marked {
		e.review[questionID] = true
	} else {
		delete(e.review, questionID)
	}
	if err := e.store.SaveReview(ctx, e.attemptID, e.review); err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	return nil
}

// Navigate charges the elapsed interval to the question being left and makes
// toQuestionID current. Works the same for palette jumps and prev/next.
func (e *Engine) Navigate(ctx context.Context, toQuestionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != model.AttemptStatusInProgress {
		return ErrNotEditable
	}
	if _, ok := e.byID[toQuestionID]; !ok {
		return ErrUnknownQuestion
	}

	if err := e.flushTimeLocked(ctx); err != nil {
		return err
	}
	e.currentQID = toQuestionID
	return nil
}

// SetVisibility records the tab-visibility signal. Hidden is advisory only:
// it flushes time at the hide boundary and is archived as a focus event, but
// it never pauses the countdown — devices that suspend background tabs would
// otherwise make the timer meaningless.
func (e *Engine) SetVisibility(ctx context.Context, hidden bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Terminal() || hidden == e.hidden {
		return nil
	}
	e.hidden = hidden

	kind := FocusTabVisible
	if hidden {
		kind = FocusTabHidden
	}
	e.sink.FocusEvent(e.attemptID, e.candidateID, kind, e.clock.Now())

	if hidden && e.status == model.AttemptStatusInProgress {
		return e.flushTimeLocked(ctx)
	}
	return nil
}

// SetConnectivity records the connectivity signal. Offline freezes the
// countdown outright — ticks are skipped, not hidden — and stops charging
// focus time, since the overlay blocks all interaction. Connectivity and
// visibility are independent signals; neither implies the other.
func (e *Engine) SetConnectivity(ctx context.Context, online bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	offline := !online
	if e.status.Terminal() || offline == e.offline {
		return nil
	}
	e.offline = offline

	now := e.clock.Now()
	kind := FocusOnline
	if offline {
		kind = FocusOffline
	}
	e.sink.FocusEvent(e.attemptID, e.candidateID, kind, now)

	if e.status != model.AttemptStatusInProgress {
		return nil
	}
	if offline {
		// Charge the span up to the outage, then stop the meter.
		return e.flushTimeLocked(ctx)
	}
	// Back online: the frozen span is billed to nobody.
	e.track.ResetAnchor(now)
	return nil
}

// ClientGone handles a dropped event stream (tab closed, crash). Focus time
// is flushed up to the drop; the countdown keeps running — wall-clock time
// keeps draining whether or not a page is open.
func (e *Engine) ClientGone(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != model.AttemptStatusInProgress || e.suspended {
		return nil
	}
	e.suspended = true
	e.sink.FocusEvent(e.attemptID, e.candidateID, FocusClientGone, e.clock.Now())
	return e.flushTimeLocked(ctx)
}

// Resume handles the client reappearing after ClientGone (reload, new
// device). The disconnected span is not billed to any question, and the
// countdown is re-derived from the persisted anchor so per-tick drift
// cannot re-grant time.
func (e *Engine) Resume(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != model.AttemptStatusInProgress || !e.suspended {
		return
	}
	now := e.clock.Now()
	e.suspended = false
	e.track.ResetAnchor(now)
	e.remaining = e.deriveRemaining(now)
	e.sink.FocusEvent(e.attemptID, e.candidateID, FocusResumed, now)
}

// Submit dispatches the submission. Manual submits call this after the
// client-side confirmation; auto-submits (expiry) skip confirmation and call
// it with auto=true. A second submit while SUBMITTING or after completion is
// rejected by the state guard, not by disabled UI.
func (e *Engine) Submit(ctx context.Context, auto bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != model.AttemptStatusInProgress {
		return ErrWrongState
	}
	return e.submitLocked(ctx, auto)
}

// submitLocked runs the SUBMITTING leg with the mutex held, which is exactly
// the spec's "no other mutation while the submit is outstanding". The ticker
// is cancelled first so a stray tick cannot fire a second auto-submission.
func (e *Engine) submitLocked(ctx context.Context, auto bool) error {
	e.stopTicker()
	e.status = model.AttemptStatusSubmitting

	// Final flush: the open question's last interval must be in the payload.
	if err := e.flushTimeLocked(ctx); err != nil {
		e.log.Warn().Err(err).Msg("Pre-submit time flush failed")
	}

	entries := e.buildEntriesLocked()

	e.log.Info().
		Bool("auto", auto).
		Int("entries", len(entries)).
		Msg("Submitting attempt")

	if err := e.api.SubmitAttempt(ctx, e.attemptID, entries); err != nil {
		// Recoverable: back to editable, nothing lost — answers and time
		// were persisted before dispatch. Remaining time is re-derived from
		// the anchor so the failed round-trip is not free time.
		now := e.clock.Now()
		e.status = model.AttemptStatusInProgress
		e.remaining = e.deriveRemaining(now)
		e.track.ResetAnchor(now)
		e.startTicker()
		e.log.Warn().Err(err).Msg("Submission failed, attempt back in progress")
		return err
	}

	e.status = model.AttemptStatusCompleted
	e.sink.Submitted(e.attemptID, e.candidateID, entries, auto, e.clock.Now())

	// Persisted keys are cleared only here, after the confirmed ack.
	if err := e.store.Purge(ctx, e.attemptID); err != nil {
		e.log.Warn().Err(err).Msg("Purge after completion failed")
	}

	e.log.Info().Bool("auto", auto).Msg("Attempt completed")
	return nil
}

// Tick advances the countdown by one second. Fired once per second by the
// runner while IN_PROGRESS; the state guard makes stray ticks no-ops.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != model.AttemptStatusInProgress {
		return
	}
	if e.offline {
		return // frozen, not paused-visually
	}
	if e.remaining > 0 {
		e.remaining--
	}
	if e.remaining == 0 {
		if err := e.submitLocked(ctx, true); err != nil {
			e.log.Warn().Err(err).Msg("Auto-submission failed, will retry on next expiry tick")
		}
	}
}

// Snapshot returns the reload view of the attempt: status, countdown,
// answers, review flags, and whole-second time spent.
func (e *Engine) Snapshot() model.AttemptState {
	e.mu.Lock()
	defer e.mu.Unlock()

	answers := make(map[string]string, len(e.answers))
	for k, v := range e.answers {
		answers[k] = v
	}
	review := make([]string, 0, len(e.review))
	for _, q := range e.questions {
		if e.review[q.ID] {
			review = append(review, q.ID)
		}
	}

	var spent map[string]int
	if e.track != nil {
		spent = e.track.Rounded()
	} else {
		spent = map[string]int{}
	}

	remaining := e.remaining
	if e.status == model.AttemptStatusRulesPending {
		remaining = e.deriveRemaining(e.clock.Now())
	}

	return model.AttemptState{
		AttemptID:        e.attemptID,
		Status:           e.status,
		RemainingSeconds: remaining,
		CurrentQuestion:  e.currentQID,
		Answers:          answers,
		MarkedForReview:  review,
		TimeSpent:        spent,
		Exam:             e.exam,
	}
}

// Questions returns the normalized paper in exam order.
func (e *Engine) Questions() []model.NormalizedQuestion {
	return e.questions
}

// Status returns the current lifecycle state.
func (e *Engine) Status() model.AttemptStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// ── internals ──────────────────────────────────────────────────────

// flushTimeLocked charges the interval since the last boundary to the
// current question and persists the whole map. Caller holds the mutex, so
// this always reads the latest persisted answer state's sibling — the save
// ordering between answers and time is total.
func (e *Engine) flushTimeLocked(ctx context.Context) error {
	if e.track == nil || e.currentQID == "" {
		return nil
	}
	spent := e.track.RecordSwitch(e.currentQID, e.clock.Now())
	if err := e.store.SaveTimeSpent(ctx, e.attemptID, spent); err != nil {
		return fmt.Errorf("save time spent: %w", err)
	}
	return nil
}

// buildEntriesLocked emits one entry per answered question in exam order.
// Unanswered questions are omitted, not sent empty.
func (e *Engine) buildEntriesLocked() []examapi.SubmitEntry {
	rounded := e.track.Rounded()
	entries := make([]examapi.SubmitEntry, 0, len(e.answers))
	for _, q := range e.questions {
		value, ok := e.answers[q.ID]
		if !ok || value == "" {
			continue
		}
		entries = append(entries, examapi.SubmitEntry{
			QuestionID:     q.ID,
			SelectedOption: value,
			TimeTaken:      rounded[q.ID],
		})
	}
	return entries
}

func (e *Engine) deriveRemaining(now time.Time) int {
	total := e.exam.DurationMinutes * 60
	elapsed := int((now.UnixMilli() - e.startMs) / 1000)
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (e *Engine) startTicker() {
	if e.tickCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	e.tickCancel = cancel
	go e.run(ctx)
}

func (e *Engine) stopTicker() {
	if e.tickCancel != nil {
		e.tickCancel()
		e.tickCancel = nil
	}
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(context.Background())
		}
	}
}

// validateAnswer enforces the canonical-answer invariant: single answers are
// one option key, multiple answers are comma-joined keys, integer answers
// are a raw numeric string.
func validateAnswer(q *model.NormalizedQuestion, value string) error {
	switch q.Type {
	case model.QuestionTypeInteger:
		if _, err := strconv.Atoi(value); err != nil {
			return ErrInvalidInteger
		}
	case model.QuestionTypeMultiple:
		for _, key := range strings.Split(value, ",") {
			if !q.HasOptionKey(strings.TrimSpace(key)) {
				return ErrInvalidOption
			}
		}
	default:
		if !q.HasOptionKey(value) {
			return ErrInvalidOption
		}
	}
	return nil
}
