package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepnest/attempt-backend/internal/config"
	"github.com/prepnest/attempt-backend/internal/examapi"
)

// Queue is the engine's EventSink: it enqueues archival payloads to Redis
// lists consumed by the persistence workers. Enqueues are fire-and-forget;
// a lost archival event never blocks exam-taking.
type Queue struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewQueue creates a Queue.
func NewQueue(rdb *redis.Client, log zerolog.Logger) *Queue {
	return &Queue{
		rdb: rdb,
		log: log.With().Str("component", "archive_queue").Logger(),
	}
}

type answerPayload struct {
	AttemptID   string `json:"attempt_id"`
	CandidateID int    `json:"candidate_id"`
	QID         string `json:"q_id"`
	Answer      string `json:"answer"`
}

type eventPayload struct {
	AttemptID   string `json:"attempt_id"`
	CandidateID int    `json:"candidate_id"`
	Kind        string `json:"kind"`
	Timestamp   int64  `json:"timestamp"`
}

type submissionPayload struct {
	AttemptID   string                `json:"attempt_id"`
	CandidateID int                   `json:"candidate_id"`
	Auto        bool                  `json:"auto"`
	FinishedAt  int64                 `json:"finished_at"`
	Entries     []examapi.SubmitEntry `json:"entries"`
}

func (q *Queue) AnswerSaved(attemptID string, candidateID int, questionID, value string) {
	q.push(config.WorkerKey.PersistAnswersQueue, answerPayload{
		AttemptID:   attemptID,
		CandidateID: candidateID,
		QID:         questionID,
		Answer:      value,
	})
}

func (q *Queue) FocusEvent(attemptID string, candidateID int, kind string, at time.Time) {
	q.push(config.WorkerKey.PersistEventsQueue, eventPayload{
		AttemptID:   attemptID,
		CandidateID: candidateID,
		Kind:        kind,
		Timestamp:   at.Unix(),
	})
}

func (q *Queue) Submitted(attemptID string, candidateID int, entries []examapi.SubmitEntry, auto bool, at time.Time) {
	q.push(config.WorkerKey.PersistSubmissionsQueue, submissionPayload{
		AttemptID:   attemptID,
		CandidateID: candidateID,
		Auto:        auto,
		FinishedAt:  at.Unix(),
		Entries:     entries,
	})
}

func (q *Queue) push(queue string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		q.log.Error().Err(err).Str("queue", queue).Msg("Marshal error")
		return
	}
	if err := q.rdb.RPush(context.Background(), queue, data).Err(); err != nil {
		q.log.Error().Err(err).Str("queue", queue).Msg("Enqueue error")
	}
}
