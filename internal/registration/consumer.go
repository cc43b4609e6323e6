package registration

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/sugang-app/apiserver/internal/mq"
	"github.com/sugang-app/apiserver/internal/store"
	"github.com/sugang-app/apiserver/types"
)

// RegistrationStore applies registration state changes atomically per course.
type RegistrationStore interface {
	Register(ctx context.Context, studentID, courseID string) error
	Unregister(ctx context.Context, studentID, courseID string) error
}

// StatusStore records the terminal outcome of each intent.
type StatusStore interface {
	Record(ctx context.Context, status types.RegistrationStatus) error
}

// ConsumerMetrics counts processed intents. May be nil.
type ConsumerMetrics interface {
	RecordIntentOutcome(action, outcome string)
	RecordBatch()
	RecordBatchFailure()
}

// Consumer drains intent batches and applies each record against the store.
//
// Business rejections (course full, missing course or user, unknown action)
// are terminal: they are recorded to the status store and never stop the
// batch. Only transient errors (store unreachable) propagate, so the broker
// redelivers the batch. Redelivery is ordinary re-processing: the store's
// in-transaction duplicate check turns a redelivered register into an
// idempotent accept, and the status upsert rewrites the same outcome.
type Consumer struct {
	registrations RegistrationStore
	statuses      StatusStore
	metrics       ConsumerMetrics
}

// NewConsumer constructs a Consumer with its dependencies.
func NewConsumer(registrations RegistrationStore, statuses StatusStore, metrics ConsumerMetrics) *Consumer {
	return &Consumer{
		registrations: registrations,
		statuses:      statuses,
		metrics:       metrics,
	}
}

// ProcessBatch applies each record independently. The first transient error
// aborts the invocation so the whole batch is redelivered.
func (c *Consumer) ProcessBatch(ctx context.Context, msgs []mq.Message) error {
	if c.metrics != nil {
		c.metrics.RecordBatch()
	}

	for _, msg := range msgs {
		if err := c.process(ctx, msg); err != nil {
			log.Printf("[worker] transient failure on message %s: %v", msg.ID, err)
			if c.metrics != nil {
				c.metrics.RecordBatchFailure()
			}
			return err
		}
	}
	return nil
}

// process applies one intent. A nil return means the record reached a
// terminal outcome (accepted or rejected) and must not be redelivered.
func (c *Consumer) process(ctx context.Context, msg mq.Message) error {
	requestID := msg.Attributes[mq.AttrDedupKey]
	if requestID == "" {
		// Self-submitted messages always carry the key; recompute for
		// records injected by other tools.
		requestID = DedupKey(msg.Data)
	}

	var intent types.IntentMessage
	if err := json.Unmarshal(msg.Data, &intent); err != nil {
		log.Printf("[worker] dropping undecodable message %s: %v", msg.ID, err)
		return c.record(ctx, requestID, intent, types.OutcomeRejected, types.ReasonUnknownAction)
	}

	if !intent.Action.Valid() {
		log.Printf("[worker] unknown action %q in message %s", intent.Action, msg.ID)
		return c.record(ctx, requestID, intent, types.OutcomeRejected, types.ReasonUnknownAction)
	}

	var err error
	switch intent.Action {
	case types.ActionRegister:
		err = c.registrations.Register(ctx, intent.StudentID, intent.CourseID)
	case types.ActionUnregister:
		err = c.registrations.Unregister(ctx, intent.StudentID, intent.CourseID)
	}

	if err == nil {
		log.Printf("[worker] %s applied for student=%s course=%s",
			intent.Action, intent.StudentID, intent.CourseID)
		return c.record(ctx, requestID, intent, types.OutcomeAccepted, "")
	}

	// A duplicate register means the student already holds the seat: the
	// idempotent no-op for redelivered intents. Recorded as accepted.
	if intent.Action == types.ActionRegister && errors.Is(err, store.ErrAlreadyRegistered) {
		log.Printf("[worker] register already applied for student=%s course=%s",
			intent.StudentID, intent.CourseID)
		return c.record(ctx, requestID, intent, types.OutcomeAccepted, "")
	}

	if reason, rejected := rejectionReason(err); rejected {
		log.Printf("[worker] %s rejected for student=%s course=%s: %s",
			intent.Action, intent.StudentID, intent.CourseID, reason)
		return c.record(ctx, requestID, intent, types.OutcomeRejected, reason)
	}

	return err
}

func (c *Consumer) record(ctx context.Context, requestID string, intent types.IntentMessage, outcome types.Outcome, reason string) error {
	if c.metrics != nil {
		c.metrics.RecordIntentOutcome(string(intent.Action), string(outcome))
	}
	return c.statuses.Record(ctx, types.RegistrationStatus{
		RequestID:   requestID,
		Action:      intent.Action,
		StudentID:   intent.StudentID,
		CourseID:    intent.CourseID,
		Outcome:     outcome,
		Reason:      reason,
		ProcessedAt: time.Now(),
	})
}

// rejectionReason maps store sentinels to recorded rejection reasons.
func rejectionReason(err error) (string, bool) {
	switch {
	case errors.Is(err, store.ErrCourseNotFound):
		return types.ReasonCourseNotFound, true
	case errors.Is(err, store.ErrUserNotFound):
		return types.ReasonUserNotFound, true
	case errors.Is(err, store.ErrCourseFull):
		return types.ReasonCourseFull, true
	case errors.Is(err, store.ErrNotRegistered):
		return types.ReasonNotRegistered, true
	default:
		return "", false
	}
}
