package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sugang-app/apiserver/types"
)

// CourseRepository handles persistence for the course catalog.
type CourseRepository struct {
	db *sql.DB
}

func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns a page of the catalog plus the total match count. A non-empty
// search term matches name, professor, or department, case-insensitively.
func (r *CourseRepository) List(ctx context.Context, search string, offset, limit int) ([]types.Course, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	pattern := "%" + search + "%"

	const countQuery = `
		SELECT COUNT(1) FROM courses
		WHERE $1 = '' OR name ILIKE $2 OR professor ILIKE $2 OR department ILIKE $2`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, search, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT id, name, professor, department, credits, schedule,
		       capacity, registered_count, created_at, updated_at
		FROM courses
		WHERE $1 = '' OR name ILIKE $2 OR professor ILIKE $2 OR department ILIKE $2
		ORDER BY name, id
		OFFSET $3 LIMIT $4`
	rows, err := r.db.QueryContext(ctx, listQuery, search, pattern, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	courses := make([]types.Course, 0, limit)
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
			return nil, 0, err
		}
		courses = append(courses, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return courses, total, nil
}

func (r *CourseRepository) Get(ctx context.Context, id string) (types.Course, error) {
	const query = `
		SELECT id, name, professor, department, credits, schedule,
		       capacity, registered_count, created_at, updated_at
		FROM courses
		WHERE id = $1`
	var c types.Course
	err := r.db.QueryRowContext(ctx, query, id).Scan(
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
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Course{}, ErrNotFound
		}
		return types.Course{}, err
	}
	return c, nil
}

func (r *CourseRepository) Create(ctx context.Context, course types.Course) (types.Course, error) {
	now := time.Now()
	course.CreatedAt = now
	course.UpdatedAt = now
	if course.ID == "" {
		course.ID = uuid.New().String()
	}
	course.RegisteredCount = 0

	const query = `
		INSERT INTO courses (id, name, professor, department, credits, schedule,
		                     capacity, registered_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		course.ID,
		course.Name,
		course.Professor,
		course.Department,
		course.Credits,
		course.Schedule,
		course.Capacity,
		course.RegisteredCount,
		course.CreatedAt,
		course.UpdatedAt,
	); err != nil {
		return types.Course{}, err
	}

	return course, nil
}

// Upsert inserts the course or refreshes its catalog fields. The seat counter
// is never touched here; only the registration worker moves it.
func (r *CourseRepository) Upsert(ctx context.Context, course types.Course) (types.Course, error) {
	now := time.Now()
	course.CreatedAt = now
	course.UpdatedAt = now
	if course.ID == "" {
		course.ID = uuid.New().String()
	}

	const query = `
		INSERT INTO courses (id, name, professor, department, credits, schedule,
		                     capacity, registered_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			professor = EXCLUDED.professor,
			department = EXCLUDED.department,
			credits = EXCLUDED.credits,
			schedule = EXCLUDED.schedule,
			capacity = EXCLUDED.capacity,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		course.ID,
		course.Name,
		course.Professor,
		course.Department,
		course.Credits,
		course.Schedule,
		course.Capacity,
		course.CreatedAt,
		course.UpdatedAt,
	); err != nil {
		return types.Course{}, err
	}

	return course, nil
}

// Delete removes a catalog entry. Courses with live registrations are
// protected by the foreign key and answer ErrCourseInUse.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrCourseInUse
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
