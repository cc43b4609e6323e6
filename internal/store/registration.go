package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RegistrationRepository applies registration state changes. It is the only
// writer of the registrations table and the courses.registered_count column.
type RegistrationRepository struct {
	db *sql.DB
}

func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Register grants the student a seat in the course.
//
// The capacity check and the increment are a check-then-act pair: two workers
// that both read the counter before either writes it would oversell the
// course. The whole step therefore runs in one transaction that first takes a
// row lock on the course (SELECT ... FOR UPDATE), serializing concurrent
// attempts per course. Registrations for different courses do not contend.
//
// Returns ErrCourseNotFound, ErrCourseFull, ErrUserNotFound, or
// ErrAlreadyRegistered for business rejections; any other error is transient.
func (r *RegistrationRepository) Register(ctx context.Context, studentID, courseID string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Lock the course row. Every other register/unregister for this course
	// blocks here until we commit or roll back.
	var capacity, registered int
	err = tx.QueryRowContext(ctx,
		`SELECT capacity, registered_count FROM courses WHERE id = $1 FOR UPDATE`,
		courseID,
	).Scan(&capacity, &registered)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCourseNotFound
		}
		return fmt.Errorf("lock course row: %w", err)
	}

	if registered >= capacity {
		return ErrCourseFull
	}

	var userExists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE student_id = $1)`,
		studentID,
	).Scan(&userExists)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !userExists {
		return ErrUserNotFound
	}

	var alreadyRegistered bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE student_id = $1 AND course_id = $2)`,
		studentID, courseID,
	).Scan(&alreadyRegistered)
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if alreadyRegistered {
		return ErrAlreadyRegistered
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO registrations (student_id, course_id) VALUES ($1, $2)`,
		studentID, courseID,
	); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE courses SET registered_count = registered_count + 1, updated_at = now() WHERE id = $1`,
		courseID,
	); err != nil {
		return fmt.Errorf("increment registered_count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Unregister releases the student's seat in the course. The counter is
// decremented only when a registration row was actually removed, so the count
// never drifts below the true membership.
//
// Returns ErrCourseNotFound or ErrNotRegistered for business rejections.
func (r *RegistrationRepository) Unregister(ctx context.Context, studentID, courseID string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)`,
		courseID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check course: %w", err)
	}
	if !exists {
		return ErrCourseNotFound
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM registrations WHERE student_id = $1 AND course_id = $2`,
		studentID, courseID,
	)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if affected == 0 {
		return ErrNotRegistered
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE courses
		 SET registered_count = registered_count - 1, updated_at = now()
		 WHERE id = $1 AND registered_count > 0`,
		courseID,
	); err != nil {
		return fmt.Errorf("decrement registered_count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
