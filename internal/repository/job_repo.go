package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tallyfold/receiptd/internal/models"
	"go.uber.org/zap"
)

const jobColumns = `id, public_id, receipt_id, status, attempts, max_attempts,
	failed_stage, error_message, next_attempt_at, started_at, finished_at,
	created_at, updated_at`

// JobRepository handles extraction job database operations
type JobRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sql.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new pending job
func (r *JobRepository) Create(tx *sql.Tx, job *models.ExtractJob) error {
	query := `
		INSERT INTO extract_jobs (public_id, receipt_id, status, max_attempts)
		VALUES (?, ?, ?, ?)
	`

	exec := r.db.Exec
	if tx != nil {
		exec = tx.Exec
	}

	result, err := exec(query, job.PublicID, job.ReceiptID, models.JobStatusPending, job.MaxAttempts)
	if err != nil {
		r.logger.Error("Failed to create extract job", zap.Error(err))
		return fmt.Errorf("failed to create extract job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	job.ID = id
	job.Status = models.JobStatusPending
	return nil
}

// GetByPublicID retrieves a job by its UUID. Returns nil, nil when no row
// matches.
func (r *JobRepository) GetByPublicID(publicID string) (*models.ExtractJob, error) {
	query := `SELECT ` + jobColumns + ` FROM extract_jobs WHERE public_id = ?`
	return r.scanOne(r.db.QueryRow(query, publicID))
}

// GetLatestForReceipt returns the most recent job for a receipt.
func (r *JobRepository) GetLatestForReceipt(receiptID int64) (*models.ExtractJob, error) {
	query := `SELECT ` + jobColumns + ` FROM extract_jobs WHERE receipt_id = ? ORDER BY id DESC LIMIT 1`
	return r.scanOne(r.db.QueryRow(query, receiptID))
}

func (r *JobRepository) scanOne(row *sql.Row) (*models.ExtractJob, error) {
	var job models.ExtractJob
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.PublicID,
		&job.ReceiptID,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.FailedStage,
		&job.ErrorMessage,
		&job.NextAttempt,
		&startedAt,
		&finishedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get extract job", zap.Error(err))
		return nil, fmt.Errorf("failed to get extract job: %w", err)
	}

	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

// ClaimPending atomically picks up to limit due pending jobs and marks them
// running. The single UPDATE keeps two workers from claiming the same job.
func (r *JobRepository) ClaimPending(limit int) ([]*models.ExtractJob, error) {
	var claimed []*models.ExtractJob

	rows, err := r.db.Query(`
		SELECT `+jobColumns+`
		FROM extract_jobs
		WHERE status = ? AND next_attempt_at <= CURRENT_TIMESTAMP
		ORDER BY id
		LIMIT ?
	`, models.JobStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to query pending jobs", zap.Error(err))
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	defer rows.Close()

	var candidates []*models.ExtractJob
	for rows.Next() {
		var job models.ExtractJob
		var startedAt, finishedAt sql.NullTime
		err := rows.Scan(
			&job.ID, &job.PublicID, &job.ReceiptID, &job.Status,
			&job.Attempts, &job.MaxAttempts, &job.FailedStage, &job.ErrorMessage,
			&job.NextAttempt, &startedAt, &finishedAt, &job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending job: %w", err)
		}
		candidates = append(candidates, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, job := range candidates {
		result, err := r.db.Exec(`
			UPDATE extract_jobs
			SET status = ?, attempts = attempts + 1, started_at = CURRENT_TIMESTAMP,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, models.JobStatusRunning, job.ID, models.JobStatusPending)
		if err != nil {
			r.logger.Error("Failed to claim job", zap.Int64("job_id", job.ID), zap.Error(err))
			continue
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			// Another worker got there first.
			continue
		}
		job.Status = models.JobStatusRunning
		job.Attempts++
		claimed = append(claimed, job)
	}

	return claimed, nil
}

// MarkCompleted finishes a job successfully.
func (r *JobRepository) MarkCompleted(tx *sql.Tx, id int64) error {
	query := `
		UPDATE extract_jobs
		SET status = ?, failed_stage = '', error_message = '',
			finished_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	exec := r.db.Exec
	if tx != nil {
		exec = tx.Exec
	}

	if _, err := exec(query, models.JobStatusCompleted, id); err != nil {
		r.logger.Error("Failed to mark job completed", zap.Int64("job_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

// MarkFailed records a failure. When attempts remain the job goes back to
// pending with a backoff; otherwise it is failed terminally.
func (r *JobRepository) MarkFailed(id int64, stage, errMsg string, retryable bool, backoff time.Duration) error {
	if retryable {
		next := time.Now().UTC().Add(backoff)
		_, err := r.db.Exec(`
			UPDATE extract_jobs
			SET status = ?, failed_stage = ?, error_message = ?,
				next_attempt_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, models.JobStatusPending, stage, errMsg, next, id)
		if err != nil {
			r.logger.Error("Failed to reschedule job", zap.Int64("job_id", id), zap.Error(err))
			return fmt.Errorf("failed to reschedule job: %w", err)
		}
		return nil
	}

	_, err := r.db.Exec(`
		UPDATE extract_jobs
		SET status = ?, failed_stage = ?, error_message = ?,
			finished_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, models.JobStatusFailed, stage, errMsg, id)
	if err != nil {
		r.logger.Error("Failed to mark job failed", zap.Int64("job_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
