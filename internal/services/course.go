package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sugang-app/apiserver/types"
)

const maxCapacity = 100_000

// CourseRepository defines persistence operations for the catalog.
type CourseRepository interface {
	List(ctx context.Context, search string, offset, limit int) ([]types.Course, int, error)
	Get(ctx context.Context, id string) (types.Course, error)
	Create(ctx context.Context, course types.Course) (types.Course, error)
	Upsert(ctx context.Context, course types.Course) (types.Course, error)
	Delete(ctx context.Context, id string) error
}

// CourseService encapsulates catalog use-cases.
type CourseService struct {
	repo CourseRepository
}

func NewCourseService(repo CourseRepository) *CourseService {
	return &CourseService{repo: repo}
}

func (s *CourseService) List(ctx context.Context, search string, offset, limit int) ([]types.Course, int, error) {
	return s.repo.List(ctx, strings.TrimSpace(search), offset, limit)
}

func (s *CourseService) Get(ctx context.Context, id string) (types.Course, error) {
	return s.repo.Get(ctx, id)
}

// Create validates the new course and delegates to the repository. Capacity
// is fixed here; only the registration worker moves the seat counter.
func (s *CourseService) Create(ctx context.Context, course types.Course) (types.Course, error) {
	course.Name = strings.TrimSpace(course.Name)
	if course.Name == "" {
		return types.Course{}, errors.New("course name is required")
	}
	if course.Capacity <= 0 {
		return types.Course{}, errors.New("capacity must be a positive integer")
	}
	if course.Capacity > maxCapacity {
		return types.Course{}, errors.New("capacity is out of range")
	}
	return s.repo.Create(ctx, course)
}

func (s *CourseService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
