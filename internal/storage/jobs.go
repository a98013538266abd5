package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Job states.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

const defaultMaxAttempts = 3

const jobColumns = `id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error`

// EnqueueJob adds a pending job. A zero RunAfter means now; a zero
// MaxAttempts means 3.
func (s *Store) EnqueueJob(job Job) error {
	now := time.Now()
	runAfter := job.RunAfter
	if runAfter.IsZero() {
		runAfter = now
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	_, err := s.db.Exec(`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, NULL)`,
		job.ID, job.Type, job.PayloadJSON, JobPending, maxAttempts,
		runAfter.UnixMilli(), now.UnixMilli(), now.UnixMilli())
	return err
}

// ClaimNextJob moves the oldest due pending job of one of types to running
// and returns it, or nil when nothing is due.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UnixMilli()
	args := []any{JobRunning, now, JobPending, now}
	for _, t := range types {
		args = append(args, t)
	}

	j, err := scanJob(s.db.QueryRow(`
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = ? AND run_after <= ? AND type IN (`+placeholders(len(types))+`)
			ORDER BY run_after, created_at
			LIMIT 1
		)
		RETURNING `+jobColumns, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	return &j, nil
}

// CompleteJob marks a running job completed.
func (s *Store) CompleteJob(id string) error {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		JobCompleted, time.Now().UnixMilli(), id, JobRunning)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// FailJob records a failed attempt. The job goes back to pending with a
// 2^attempts second backoff, or to failed once max_attempts is reached.
func (s *Store) FailJob(id string, errMsg string) error {
	now := time.Now().UnixMilli()
	res, err := s.db.Exec(`
		UPDATE jobs SET
			attempts   = attempts + 1,
			last_error = ?,
			updated_at = ?,
			status     = CASE WHEN attempts + 1 >= max_attempts THEN ? ELSE ? END,
			run_after  = CASE WHEN attempts + 1 >= max_attempts THEN run_after ELSE ? + (1000 << (attempts + 1)) END
		WHERE id = ?`,
		errMsg, now, JobFailed, JobPending, now, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// PruneJobs deletes completed and failed jobs last touched before cutoff.
func (s *Store) PruneJobs(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		JobCompleted, JobFailed, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RequeueStaleJobs returns running jobs last touched before cutoff to
// pending. A worker that died mid-job leaves its claim behind otherwise.
func (s *Store) RequeueStaleJobs(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		JobPending, time.Now().UnixMilli(), JobRunning, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var runAfter, created, updated int64
	var lastError sql.NullString
	if err := row.Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &created, &updated, &lastError); err != nil {
		return Job{}, err
	}
	j.RunAfter = time.UnixMilli(runAfter).UTC()
	j.CreatedAt = time.UnixMilli(created).UTC()
	j.UpdatedAt = time.UnixMilli(updated).UTC()
	j.LastError = lastError.String
	return j, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
