package types

import "time"

// User represents a student account in the system.
// It contains identity, department, and audit metadata.
type User struct {
	// ID is the internal row identifier of the user.
	ID int64 `json:"id" db:"id"`

	// StudentID is the unique, immutable student number used to log in
	// and to key all registration state.
	StudentID string `json:"studentId" db:"student_id"`

	// Name is the student's display or full name.
	Name string `json:"name" db:"name"`

	// Department is the department the student belongs to.
	Department string `json:"department" db:"department"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
