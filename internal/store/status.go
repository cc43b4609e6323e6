package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sugang-app/apiserver/types"
)

// StatusRepository persists the terminal outcome of each intent, keyed by its
// request ID (the dedup key).
type StatusRepository struct {
	db *sql.DB
}

func NewStatusRepository(db *sql.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// Record upserts the outcome for a request. A redelivered intent overwrites
// its earlier row with the same terminal outcome, which keeps the write
// idempotent.
func (r *StatusRepository) Record(ctx context.Context, status types.RegistrationStatus) error {
	if status.ProcessedAt.IsZero() {
		status.ProcessedAt = time.Now()
	}

	const query = `
		INSERT INTO registration_statuses (request_id, action, student_id, course_id, outcome, reason, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO UPDATE
		SET outcome = EXCLUDED.outcome,
			reason = EXCLUDED.reason,
			processed_at = EXCLUDED.processed_at`
	_, err := r.db.ExecContext(
		ctx,
		query,
		status.RequestID,
		status.Action,
		status.StudentID,
		status.CourseID,
		status.Outcome,
		status.Reason,
		status.ProcessedAt,
	)
	return err
}

// Get returns the recorded outcome for a request, or ErrNotFound if the
// worker has not processed it yet.
func (r *StatusRepository) Get(ctx context.Context, requestID string) (types.RegistrationStatus, error) {
	const query = `
		SELECT request_id, action, student_id, course_id, outcome, reason, processed_at
		FROM registration_statuses
		WHERE request_id = $1`
	var status types.RegistrationStatus
	err := r.db.QueryRowContext(ctx, query, requestID).Scan(
		&status.RequestID,
		&status.Action,
		&status.StudentID,
		&status.CourseID,
		&status.Outcome,
		&status.Reason,
		&status.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RegistrationStatus{}, ErrNotFound
		}
		return types.RegistrationStatus{}, err
	}
	return status, nil
}
