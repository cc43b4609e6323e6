package types

import "time"

// Course represents a course offering in the catalog.
type Course struct {
	// ID is the store-assigned course identifier.
	ID string `json:"id" db:"id"`

	// Name is the course title.
	Name string `json:"name" db:"name"`

	// Professor is the lecturer in charge.
	Professor string `json:"professor" db:"professor"`

	// Department is the offering department.
	Department string `json:"department" db:"department"`

	// Credits is the credit value of the course.
	Credits int `json:"credits" db:"credits"`

	// Schedule is an opaque display string ("월1,2 수3" etc.).
	// The server never parses it.
	Schedule string `json:"schedule" db:"schedule"`

	// Capacity is the seat limit, fixed at creation.
	Capacity int `json:"capacity" db:"capacity"`

	// RegisteredCount is the number of seats taken. It is mutated only by
	// the registration worker and always satisfies
	// 0 <= RegisteredCount <= Capacity.
	RegisteredCount int `json:"registered" db:"registered_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Remaining returns the number of free seats.
func (c *Course) Remaining() int {
	return c.Capacity - c.RegisteredCount
}

// IsFull reports whether no seats remain.
func (c *Course) IsFull() bool {
	return c.RegisteredCount >= c.Capacity
}
