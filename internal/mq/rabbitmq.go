package mq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sugang-app/apiserver/config"
)

// dedupWindow is how long a published dedup key suppresses bit-identical
// resubmissions. Matches the five-minute window typical of FIFO queues.
const dedupWindow = 5 * time.Minute

// RabbitMQClient wraps a RabbitMQ connection/channel pair.
//
// Strict ordering is provided by declaring queues with the
// single-active-consumer argument: the broker feeds one consumer at a time,
// in queue order, regardless of how many worker processes are attached.
// AMQP has no native content dedup, so the client keeps its own window of
// recently published dedup keys and drops repeats before they hit the wire.
type RabbitMQClient struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	queueDurable    bool
	queueAutoDelete bool
	prefetchCount   int

	mu        sync.Mutex
	published map[string]time.Time // dedup key -> publish time
}

// NewRabbitMQClient constructs a RabbitMQ client from config.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:            conn,
		channel:         ch,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
		prefetchCount:   cfg.PrefetchCount,
		published:       make(map[string]time.Time),
	}, nil
}

// Publish sends a message to the named queue. When the attributes carry a
// dedup key that was already published within the dedup window, the message
// is silently dropped and the key is returned as the message ID, mirroring a
// FIFO queue's deduplicated accept.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	if _, err := r.declareQueue(channel); err != nil {
		return "", err
	}

	messageID := attrs[AttrDedupKey]
	if messageID != "" && r.seenRecently(messageID) {
		return messageID, nil
	}
	if messageID == "" {
		messageID = newMessageID()
	}

	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}

	err := r.channel.PublishWithContext(ctx, "", channel, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return "", err
	}

	if key := attrs[AttrDedupKey]; key != "" {
		r.remember(key)
	}
	return messageID, nil
}

// Subscribe consumes messages from the named queue one at a time.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	deliveries, cleanup, err := r.consume(channel)
	if err != nil {
		return err
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, deliveryToMessage(delivery)); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// SubscribeBatch drains the delivery channel into batches of up to opts.Size
// messages, flushing partial batches after opts.FlushMillis. The whole batch
// is acked on success or nacked for redelivery on error.
func (r *RabbitMQClient) SubscribeBatch(ctx context.Context, channel string, opts BatchOptions, handler BatchHandler) error {
	opts = opts.withDefaults()

	deliveries, cleanup, err := r.consume(channel)
	if err != nil {
		return err
	}
	defer cleanup()

	flush := time.Duration(opts.FlushMillis) * time.Millisecond

	for {
		// Block for the first delivery of the next batch.
		var batch []amqp.Delivery
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			batch = append(batch, delivery)
		}

		// Top up from prefetched deliveries until full or the flush
		// interval elapses.
		timer := time.NewTimer(flush)
	fill:
		for len(batch) < opts.Size {
			select {
			case <-ctx.Done():
				timer.Stop()
				r.nackAll(batch)
				return ctx.Err()
			case delivery, ok := <-deliveries:
				if !ok {
					break fill
				}
				batch = append(batch, delivery)
			case <-timer.C:
				break fill
			}
		}
		timer.Stop()

		msgs := make([]Message, 0, len(batch))
		for _, delivery := range batch {
			msgs = append(msgs, deliveryToMessage(delivery))
		}

		if err := handler(ctx, msgs); err != nil {
			r.nackAll(batch)
			continue
		}
		for _, delivery := range batch {
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the underlying channel and connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) consume(channel string) (<-chan amqp.Delivery, func(), error) {
	if strings.TrimSpace(channel) == "" {
		return nil, nil, errors.New("rabbitmq channel is required")
	}

	if _, err := r.declareQueue(channel); err != nil {
		return nil, nil, err
	}

	consumerTag := fmt.Sprintf("consumer-%s", newMessageID())
	deliveries, err := r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = r.channel.Cancel(consumerTag, false)
	}
	return deliveries, cleanup, nil
}

func (r *RabbitMQClient) declareQueue(name string) (amqp.Queue, error) {
	return r.channel.QueueDeclare(
		name,
		r.queueDurable,
		r.queueAutoDelete,
		false,
		false,
		amqp.Table{"x-single-active-consumer": true},
	)
}

func (r *RabbitMQClient) seenRecently(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.published[key]
	if !ok {
		return false
	}
	if time.Since(at) > dedupWindow {
		delete(r.published, key)
		return false
	}
	return true
}

func (r *RabbitMQClient) remember(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for k, at := range r.published {
		if now.Sub(at) > dedupWindow {
			delete(r.published, k)
		}
	}
	r.published[key] = now
}

func (r *RabbitMQClient) nackAll(batch []amqp.Delivery) {
	for _, delivery := range batch {
		_ = delivery.Nack(false, true)
	}
}

func deliveryToMessage(delivery amqp.Delivery) Message {
	return Message{
		ID:         delivery.MessageId,
		Data:       delivery.Body,
		Attributes: headersToAttributes(delivery.Headers),
	}
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
