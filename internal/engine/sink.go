package engine

import (
	"time"

	"github.com/prepnest/attempt-backend/internal/examapi"
)

// EventSink receives archival side effects from the engine: answer edits,
// focus/connectivity signals, and confirmed submissions. The production sink
// enqueues to Redis for the persistence workers; tests use NopSink.
type EventSink interface {
	AnswerSaved(attemptID string, candidateID int, questionID, value string)
	FocusEvent(attemptID string, candidateID int, kind string, at time.Time)
	Submitted(attemptID string, candidateID int, entries []examapi.SubmitEntry, auto bool, at time.Time)
}

// Focus event kinds recorded through the sink.
const (
	FocusTabHidden  = "tab_hidden"
	FocusTabVisible = "tab_visible"
	FocusOffline    = "offline"
	FocusOnline     = "online"
	FocusClientGone = "client_gone"
	FocusResumed    = "resumed"
)

// NopSink discards all events.
type NopSink struct{}

func (NopSink) AnswerSaved(string, int, string, string)                       {}
func (NopSink) FocusEvent(string, int, string, time.Time)                     {}
func (NopSink) Submitted(string, int, []examapi.SubmitEntry, bool, time.Time) {}
