package mq

import "context"

// Well-known message attributes. Backends map them onto whatever native
// ordering and dedup primitives they have.
const (
	// AttrOrderingGroup names the partition key: messages sharing a group
	// are delivered in strict publish order.
	AttrOrderingGroup = "ordering-group"
	// AttrDedupKey is a content hash used to suppress duplicate enqueue of
	// bit-identical messages within the backend's dedup window.
	AttrDedupKey = "dedup-key"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// BatchHandler processes a batch of messages. Return an error to nack the
// whole batch for redelivery.
type BatchHandler func(ctx context.Context, msgs []Message) error

// BatchOptions tunes batch consumption.
type BatchOptions struct {
	// Size is the maximum number of messages per batch.
	Size int
	// FlushMillis is how long a partial batch may wait before it is
	// handed to the handler anyway.
	FlushMillis int
}

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	SubscribeBatch(ctx context.Context, channel string, opts BatchOptions, handler BatchHandler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel one at a time.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// SubscribeBatch consumes messages from the named channel in batches. Each
// message is acked or nacked according to the batch result.
func (m *MQ) SubscribeBatch(ctx context.Context, channel string, opts BatchOptions, handler BatchHandler) error {
	return m.backend.SubscribeBatch(ctx, channel, opts, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.Size < 1 {
		o.Size = 10
	}
	if o.FlushMillis < 1 {
		o.FlushMillis = 250
	}
	return o
}
