// Package registration implements the course-registration workflow: a
// producer that turns HTTP requests into queued intents, and a consumer that
// applies them to the store under capacity and duplicate invariants.
package registration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/sugang-app/apiserver/config"
	"github.com/sugang-app/apiserver/internal/mq"
	"github.com/sugang-app/apiserver/types"
)

// Publisher is the queue operation the producer needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ProducerMetrics counts published intents. May be nil.
type ProducerMetrics interface {
	RecordIntentPublished(action string)
}

// Producer turns registration requests into queued intents. Submission only
// guarantees that the intent is durably enqueued; the outcome is applied
// later by the worker and surfaced through the status store.
type Producer struct {
	publisher Publisher
	channel   string
	group     string
	metrics   ProducerMetrics
}

// NewProducer constructs a Producer publishing to the configured channel
// under the configured ordering group.
func NewProducer(publisher Publisher, cfg config.RegistrationConfig, metrics ProducerMetrics) *Producer {
	return &Producer{
		publisher: publisher,
		channel:   cfg.Channel,
		group:     cfg.OrderingGroup,
		metrics:   metrics,
	}
}

// Submit validates and enqueues an intent. The returned request ID is the
// intent's dedup key: identical submissions map to the same ID, and the
// status endpoint answers for it once the worker has processed the intent.
func (p *Producer) Submit(ctx context.Context, action types.IntentAction, studentID, courseID string) (string, error) {
	if !action.Valid() {
		return "", fmt.Errorf("unknown action %q", action)
	}
	if studentID == "" {
		return "", errors.New("studentId is required")
	}
	if courseID == "" {
		return "", errors.New("courseId is required")
	}

	msg := types.IntentMessage{
		Action:    action,
		StudentID: studentID,
		CourseID:  courseID,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode intent: %w", err)
	}

	requestID := DedupKey(body)
	attrs := map[string]string{
		mq.AttrOrderingGroup: p.group,
		mq.AttrDedupKey:      requestID,
	}

	if _, err := p.publisher.Publish(ctx, p.channel, body, attrs); err != nil {
		return "", fmt.Errorf("publish intent: %w", err)
	}

	log.Printf("[producer] enqueued %s intent for student=%s course=%s request=%s",
		action, studentID, courseID, requestID)
	if p.metrics != nil {
		p.metrics.RecordIntentPublished(string(action))
	}
	return requestID, nil
}

// DedupKey returns the deterministic dedup key for an encoded intent body:
// the SHA-256 hex digest of the exact bytes placed on the queue.
func DedupKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
