package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepnest/attempt-backend/internal/engine"
	"github.com/prepnest/attempt-backend/internal/examapi"
	"github.com/prepnest/attempt-backend/internal/model"
	"github.com/prepnest/attempt-backend/internal/normalize"
	"github.com/prepnest/attempt-backend/internal/session"
)

// paperStub serves one fixed paper per exam id and accepts all submissions.
type paperStub struct {
	scheduledAt time.Time
}

func (p *paperStub) StartAttempt(_ context.Context, examID string, _ int) (*examapi.AttemptPaper, error) {
	return &examapi.AttemptPaper{
		AttemptID: "att-" + examID,
		Exam: model.ExamMeta{
			Title:           "Mock Test",
			DurationMinutes: 3,
			ScheduledAt:     p.scheduledAt,
		},
		Questions: []model.RawQuestion{
			{ID: "q1", Options: json.RawMessage(`["alpha","beta"]`)},
			{ID: "q2", Options: json.RawMessage(`["alpha","beta"]`)},
		},
	}, nil
}

func (p *paperStub) SubmitAttempt(context.Context, string, []examapi.SubmitEntry) error {
	return nil
}

func newTestService(api examapi.Client) *AttemptService {
	return NewAttemptService(
		api,
		session.NewMemoryStore(),
		&normalize.Normalizer{},
		engine.NopSink{},
		nil, // no Postgres archive
		nil, // no asset warming
		engine.SystemClock,
		zerolog.Nop(),
	)
}

func TestStartRegistersAndResumes(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&paperStub{scheduledAt: time.Now().Add(-time.Hour)})

	state, err := svc.Start(ctx, "exam-1", 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Status != model.AttemptStatusRulesPending {
		t.Fatalf("status = %s, want RULES_PENDING", state.Status)
	}
	if len(state.Questions) != 2 || len(state.Questions[0].Options) != 2 {
		t.Fatalf("paper not normalized: %+v", state.Questions)
	}

	// A second start from the same candidate resumes the live engine.
	again, err := svc.Start(ctx, "exam-1", 7)
	if err != nil {
		t.Fatalf("re-start: %v", err)
	}
	if again.AttemptID != state.AttemptID {
		t.Fatalf("re-start issued a new attempt: %s vs %s", again.AttemptID, state.AttemptID)
	}

	// A different candidate colliding on the same attempt id is rejected.
	if _, err := svc.Start(ctx, "exam-1", 8); !errors.Is(err, ErrNotAttemptOwner) {
		t.Fatalf("foreign start: %v, want ErrNotAttemptOwner", err)
	}
}

func TestOwnershipChecks(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&paperStub{scheduledAt: time.Now().Add(-time.Hour)})

	state, err := svc.Start(ctx, "exam-1", 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.Get(state.AttemptID, 8); !errors.Is(err, ErrNotAttemptOwner) {
		t.Fatalf("foreign get: %v, want ErrNotAttemptOwner", err)
	}
	if _, err := svc.Get("att-unknown", 7); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("unknown get: %v, want ErrAttemptNotFound", err)
	}
	if _, err := svc.State(ctx, "att-unknown", 7); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("unknown state: %v, want ErrAttemptNotFound", err)
	}
}

func TestSubmitReapsCompletedEngine(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&paperStub{scheduledAt: time.Now().Add(-time.Hour)})

	state, err := svc.Start(ctx, "exam-1", 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.AcknowledgeRules(ctx, state.AttemptID, 7); err != nil {
		t.Fatalf("rules ack: %v", err)
	}

	final, err := svc.Submit(ctx, state.AttemptID, 7)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if final.Status != model.AttemptStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", final.Status)
	}

	// The registry forgets completed attempts.
	if _, err := svc.State(ctx, state.AttemptID, 7); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("state after completion: %v, want ErrAttemptNotFound", err)
	}
}

func TestTooEarlyAttemptNotRegistered(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&paperStub{scheduledAt: time.Now().Add(time.Hour)})

	state, err := svc.Start(ctx, "exam-1", 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Status != model.AttemptStatusTooEarly {
		t.Fatalf("status = %s, want TOO_EARLY", state.Status)
	}
	// Nothing to resume: the candidate must start again once the window opens.
	if _, err := svc.Get(state.AttemptID, 7); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("get too-early attempt: %v, want ErrAttemptNotFound", err)
	}
}
