package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUserNotFound is returned when the referenced student does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrCourseNotFound is returned when the referenced course does not exist.
var ErrCourseNotFound = errors.New("course not found")

// ErrCourseFull is returned when a course has no remaining seats.
var ErrCourseFull = errors.New("course is full")

// ErrCourseInUse is returned when a course cannot be deleted because
// students still hold seats in it.
var ErrCourseInUse = errors.New("course has registered students")

// ErrAlreadyRegistered is returned when the student already holds a seat in
// the course.
var ErrAlreadyRegistered = errors.New("already registered for this course")

// ErrNotRegistered is returned when an unregister targets a (student, course)
// pair that holds no seat.
var ErrNotRegistered = errors.New("not registered for this course")
