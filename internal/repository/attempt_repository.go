package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRecord is the audit row for one attempt. Postgres is the archival
// copy used by results tooling and incident review; live attempt state lives
// in the session store.
type AttemptRecord struct {
	ID            string     `json:"id"`
	ExamID        string     `json:"exam_id"`
	CandidateID   int        `json:"candidate_id"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	AutoSubmitted bool       `json:"auto_submitted"`
}

// AttemptRepository handles attempt archival data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Upsert records the attempt start. Idempotent: re-entering a live attempt
// must not reset started_at.
func (r *AttemptRepository) Upsert(ctx context.Context, attemptID, examID string, candidateID int, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (id, exam_id, candidate_id, status, started_at)
		 VALUES ($1, $2, $3, 'IN_PROGRESS', $4)
		 ON CONFLICT (id) DO NOTHING`,
		attemptID, examID, candidateID, startedAt,
	)
	return err
}

// GetByID retrieves one attempt record. Completion is written by the
// submission worker, not here.
func (r *AttemptRepository) GetByID(ctx context.Context, attemptID string) (*AttemptRecord, error) {
	rec := &AttemptRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, candidate_id, status, started_at, finished_at, auto_submitted
		 FROM attempts WHERE id = $1`, attemptID,
	).Scan(&rec.ID, &rec.ExamID, &rec.CandidateID, &rec.Status, &rec.StartedAt, &rec.FinishedAt, &rec.AutoSubmitted)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByCandidate retrieves a candidate's archived attempts, newest first.
func (r *AttemptRepository) ListByCandidate(ctx context.Context, candidateID int) ([]AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, candidate_id, status, started_at, finished_at, auto_submitted
		 FROM attempts
		 WHERE candidate_id = $1
		 ORDER BY started_at DESC`, candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		if err := rows.Scan(&rec.ID, &rec.ExamID, &rec.CandidateID, &rec.Status, &rec.StartedAt, &rec.FinishedAt, &rec.AutoSubmitted); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
