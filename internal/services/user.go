package services

import (
	"context"

	"github.com/sugang-app/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByStudentID(ctx context.Context, studentID string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	ListRegisteredCourses(ctx context.Context, studentID string) ([]types.Course, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByStudentID(ctx context.Context, studentID string) (types.User, error) {
	return s.repo.GetByStudentID(ctx, studentID)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Update(ctx, user)
}

func (s *UserService) ListRegisteredCourses(ctx context.Context, studentID string) ([]types.Course, error) {
	return s.repo.ListRegisteredCourses(ctx, studentID)
}
