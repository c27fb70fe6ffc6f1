package model

import "time"

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusNotStarted   AttemptStatus = "NOT_STARTED"
	AttemptStatusTooEarly     AttemptStatus = "TOO_EARLY"
	AttemptStatusRulesPending AttemptStatus = "RULES_PENDING"
	AttemptStatusInProgress   AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitting   AttemptStatus = "SUBMITTING"
	AttemptStatusCompleted    AttemptStatus = "COMPLETED"
	AttemptStatusFailed       AttemptStatus = "FAILED"
)

// Terminal reports whether no further transitions are possible from s.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusTooEarly || s == AttemptStatusCompleted || s == AttemptStatusFailed
}

// ExamMeta is the immutable exam header loaded once per attempt.
type ExamMeta struct {
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalMarks      float64   `json:"total_marks"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

// AttemptState is the reload snapshot returned to the client: everything
// needed to reconstruct the exam page exactly as it was.
type AttemptState struct {
	AttemptID        string             `json:"attempt_id"`
	Status           AttemptStatus      `json:"status"`
	RemainingSeconds int                `json:"remaining_seconds"`
	CurrentQuestion  string             `json:"current_question,omitempty"`
	Answers          map[string]string  `json:"answers"`
	MarkedForReview  []string           `json:"marked_for_review"`
	TimeSpent        map[string]int     `json:"time_spent"`
	Exam             ExamMeta           `json:"exam"`
	Questions        []NormalizedQuestion `json:"questions,omitempty"`
}

// AnswerRequest is the payload for saving a single answer.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,qid,max=64"`
	Value      string `json:"value" binding:"max=512"`
}

// ReviewRequest toggles the review flag on a question.
type ReviewRequest struct {
	QuestionID string `json:"question_id" binding:"required,qid,max=64"`
	Marked     bool   `json:"marked"`
}
