package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sugang-app/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByStudentID(ctx context.Context, studentID string) (types.User, error) {
	const query = `
		SELECT id, student_id, name, department, password_hash, created_at, updated_at
		FROM users
		WHERE student_id = $1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, studentID).Scan(
		&user.ID,
		&user.StudentID,
		&user.Name,
		&user.Department,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (student_id, name, department, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.StudentID,
		user.Name,
		user.Department,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET name = $1,
			department = $2,
			password_hash = $3,
			updated_at = $4
		WHERE student_id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Department,
		user.PasswordHash,
		user.UpdatedAt,
		user.StudentID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// ListRegisteredCourses returns the courses a student holds a seat in, in
// registration order.
func (r *UserRepository) ListRegisteredCourses(ctx context.Context, studentID string) ([]types.Course, error) {
	const query = `
		SELECT c.id, c.name, c.professor, c.department, c.credits, c.schedule,
		       c.capacity, c.registered_count, c.created_at, c.updated_at
		FROM registrations reg
		JOIN courses c ON c.id = reg.course_id
		WHERE reg.student_id = $1
		ORDER BY reg.created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := make([]types.Course, 0)
	for rows.Next() {
		var c types.Course
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.Professor,
			&c.Department,
			&c.Credits,
			&c.Schedule,
			&c.Capacity,
			&c.RegisteredCount,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}
