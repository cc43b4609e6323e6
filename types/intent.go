package types

import "time"

// IntentAction is the kind of registration change an intent asks for.
type IntentAction string

const (
	ActionRegister   IntentAction = "register"
	ActionUnregister IntentAction = "unregister"
)

// Valid reports whether the action is one of the known kinds.
func (a IntentAction) Valid() bool {
	return a == ActionRegister || a == ActionUnregister
}

// IntentMessage is the queue payload for a desired registration change.
// It is created by the producer, applied by the worker, then discarded.
// Field order is fixed; the dedup key is a hash of this exact encoding.
type IntentMessage struct {
	Action    IntentAction `json:"action"`
	StudentID string       `json:"studentId"`
	CourseID  string       `json:"courseId"`
}

// Outcome is the terminal result of processing one intent.
type Outcome string

const (
	// OutcomePending means the intent has been enqueued but not yet applied.
	OutcomePending Outcome = "pending"
	// OutcomeAccepted means the state change was applied.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeRejected means the intent was refused; Reason says why.
	OutcomeRejected Outcome = "rejected"
)

// Rejection reasons recorded alongside OutcomeRejected.
const (
	ReasonUnknownAction  = "unknown_action"
	ReasonCourseNotFound = "course_not_found"
	ReasonUserNotFound   = "user_not_found"
	ReasonCourseFull     = "course_full"
	ReasonNotRegistered  = "not_registered"
)

// RegistrationStatus is the durable record of what became of an intent,
// keyed by the producer-assigned request ID (the dedup key). It is what the
// status-lookup endpoint serves, closing the gap between "request submitted"
// and the eventual result.
type RegistrationStatus struct {
	RequestID   string       `json:"requestId" db:"request_id"`
	Action      IntentAction `json:"action" db:"action"`
	StudentID   string       `json:"studentId" db:"student_id"`
	CourseID    string       `json:"courseId" db:"course_id"`
	Outcome     Outcome      `json:"outcome" db:"outcome"`
	Reason      string       `json:"reason,omitempty" db:"reason"`
	ProcessedAt time.Time    `json:"processed_at" db:"processed_at"`
}
