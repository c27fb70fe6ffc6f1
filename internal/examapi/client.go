// Package examapi talks to the exam-definition/results service. The gateway
// never owns exam content or scoring; it starts attempts and submits answer
// entries, and the service remains the source of truth for both.
package examapi

import (
	"context"
	"fmt"

	"github.com/prepnest/attempt-backend/internal/model"
)

// AttemptPaper is the response to a successful attempt start.
type AttemptPaper struct {
	AttemptID string              `json:"attempt_id"`
	Exam      model.ExamMeta      `json:"exam"`
	Questions []model.RawQuestion `json:"questions"`
}

// SubmitEntry is one answered question in the submission payload.
// Unanswered questions are omitted entirely; the results service scores
// skipped items itself.
type SubmitEntry struct {
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
	TimeTaken      int    `json:"time_taken"`
}

// Client is the surface the attempt engine depends on.
type Client interface {
	StartAttempt(ctx context.Context, examID string, candidateID int) (*AttemptPaper, error)
	SubmitAttempt(ctx context.Context, attemptID string, entries []SubmitEntry) error
}

// LoadKind classifies fatal attempt-load failures.
type LoadKind string

const (
	LoadNotFound  LoadKind = "NOT_FOUND"
	LoadForbidden LoadKind = "FORBIDDEN"
	LoadTransport LoadKind = "TRANSPORT"
)

// LoadError is fatal: the attempt ends in FAILED with no retry path.
type LoadError struct {
	Kind    LoadKind
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("load attempt: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("load attempt: %s", e.Kind)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SubmitError is recoverable: the attempt returns to IN_PROGRESS and the
// candidate may retry. Nothing already answered is lost — every answer was
// flushed to the session store before the submit was dispatched.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit attempt: %s", e.Message)
}

func (e *SubmitError) Unwrap() error { return e.Err }
