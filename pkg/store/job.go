package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/memhub/memoryd/pkg/apperr"
)

// EnqueueJob inserts a pending job scheduled to run at runAt (now when
// zero).
func (s *Store) EnqueueJob(ctx context.Context, jobType string, payload map[string]any, runAt time.Time) (*Job, error) {
	if runAt.IsZero() {
		runAt = time.Now()
	}
	payloadJSON, err := marshalMeta(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	j := &Job{ID: newID(), Type: jobType, Status: JobStatusPending, Payload: payload, RunAt: runAt}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO jobs (job_id, type, status, payload, run_at)
		VALUES ($1, $2, 'pending', $3, $4)
		RETURNING created_at, updated_at`,
		j.ID, j.Type, payloadJSON, j.RunAt)
	if err := row.Scan(&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return j, nil
}

// FetchNextJob atomically claims the oldest due pending job and marks
// it running, using SELECT ... FOR UPDATE SKIP LOCKED so concurrent
// workers never contend on the same row. Returns apperr.ErrNotFound
// when no job is due.
func (s *Store) FetchNextJob(ctx context.Context, jobTypes []string) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin job claim transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT job_id, type, status, payload, run_at, attempts, last_error, created_at, updated_at
		FROM jobs
		WHERE status = 'pending' AND run_at <= now()`
	args := []any{}
	if len(jobTypes) > 0 {
		query += ` AND type = ANY($1)`
		args = append(args, pqStringArray(jobTypes))
	}
	query += ` ORDER BY run_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`

	row := tx.QueryRowContext(ctx, query, args...)
	j, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', updated_at = now() WHERE job_id = $1`, j.ID); err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job claim: %w", err)
	}
	j.Status = JobStatusRunning
	return j, nil
}

// CompleteJob marks a running job as done.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'done', updated_at = now() WHERE job_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return requireAffected(res)
}

// FailJob increments attempts and either reschedules the job with
// exponential backoff (2^attempts seconds) or marks it permanently
// failed once maxAttempts is reached.
func (s *Store) FailJob(ctx context.Context, id string, jobErr error, maxAttempts int) error {
	row := s.db.QueryRowContext(ctx, `SELECT attempts FROM jobs WHERE job_id = $1`, id)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("failed to read job attempts: %w", err)
	}
	attempts++
	errText := ""
	if jobErr != nil {
		errText = jobErr.Error()
	}

	if attempts >= maxAttempts {
		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET status = 'failed', attempts = $1, last_error = $2, updated_at = now()
			WHERE job_id = $3`, attempts, errText, id)
		if err != nil {
			return fmt.Errorf("failed to mark job failed: %w", err)
		}
		return requireAffected(res)
	}

	backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'pending', attempts = $1, last_error = $2, run_at = $3, updated_at = now()
		WHERE job_id = $4`, attempts, errText, time.Now().Add(backoff), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return requireAffected(res)
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, type, status, payload, run_at, attempts, last_error, created_at, updated_at
		FROM jobs WHERE job_id = $1`, id)
	return scanJob(row)
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var payloadJSON []byte
	if err := row.Scan(&j.ID, &j.Type, &j.Status, &payloadJSON, &j.RunAt,
		&j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	payload, err := unmarshalMeta(payloadJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	j.Payload = payload
	return &j, nil
}
