package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepnest/attempt-backend/internal/config"
)

const (
	SubmissionPollTimeout = 1 * time.Second
)

// SubmissionWorker archives confirmed submissions: it closes the attempts
// row and writes the final per-question answers with their time-taken
// figures. It runs strictly after the results service has acknowledged, so
// this path can never cause a double submission.
type SubmissionWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewSubmissionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "submission_worker").Logger(),
	}
}

func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SubmissionWorker) processNext(ctx context.Context) {
	item, err := w.rdb.BLPop(ctx, SubmissionPollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(item) < 2 {
		return
	}

	var p submissionPayload
	if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		return
	}

	if err := w.persist(ctx, &p); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", p.AttemptID).
			Msg("Persist error, requeueing")
		w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, item[1])
		time.Sleep(5 * time.Second)
	}
}

// persist writes the submission in one transaction: final answers first,
// then the attempt close. Both use UNNEST so a hundred-question paper is
// still two statements.
func (w *SubmissionWorker) persist(ctx context.Context, p *submissionPayload) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if len(p.Entries) > 0 {
		n := len(p.Entries)
		qids := make([]string, 0, n)
		answers := make([]string, 0, n)
		taken := make([]int, 0, n)
		for _, e := range p.Entries {
			qids = append(qids, e.QuestionID)
			answers = append(answers, e.SelectedOption)
			taken = append(taken, e.TimeTaken)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO attempt_answers (attempt_id, question_id, answer, time_taken)
			SELECT $1, u.question_id, u.answer, u.time_taken
			FROM UNNEST($2::text[], $3::text[], $4::int[]) AS u (question_id, answer, time_taken)
			ON CONFLICT (attempt_id, question_id) DO UPDATE
			SET answer = EXCLUDED.answer,
			    time_taken = EXCLUDED.time_taken,
			    updated_at = NOW()`,
			p.AttemptID, qids, answers, taken,
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE attempts
		 SET status = 'COMPLETED', finished_at = $1, auto_submitted = $2
		 WHERE id = $3`,
		time.Unix(p.FinishedAt, 0), p.Auto, p.AttemptID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (w *SubmissionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		item, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSubmissionsQueue).Result()
		if err != nil {
			break
		}

		var p submissionPayload
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &p); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, item)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining submissions")
	}
}
