package mq

import (
	"context"
	"time"
)

// collector turns per-message callbacks into batched handler invocations.
// Callers block in submit until the batch their message landed in has been
// processed, so the per-message ack decision can follow the batch result.
type collector struct {
	opts    BatchOptions
	handler BatchHandler
	items   chan collectorItem
}

type collectorItem struct {
	msg  Message
	done chan error
}

func newCollector(opts BatchOptions, handler BatchHandler) *collector {
	return &collector{
		opts:    opts,
		handler: handler,
		items:   make(chan collectorItem),
	}
}

// submit hands a message to the collector and waits for its batch outcome.
func (c *collector) submit(ctx context.Context, msg Message) error {
	item := collectorItem{msg: msg, done: make(chan error, 1)}
	select {
	case c.items <- item:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-item.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run flushes batches until the context is cancelled.
func (c *collector) run(ctx context.Context) {
	flush := time.Duration(c.opts.FlushMillis) * time.Millisecond

	for {
		var batch []collectorItem
		select {
		case <-ctx.Done():
			return
		case item := <-c.items:
			batch = append(batch, item)
		}

		timer := time.NewTimer(flush)
	fill:
		for len(batch) < c.opts.Size {
			select {
			case <-ctx.Done():
				timer.Stop()
				c.finish(batch, ctx.Err())
				return
			case item := <-c.items:
				batch = append(batch, item)
			case <-timer.C:
				break fill
			}
		}
		timer.Stop()

		msgs := make([]Message, 0, len(batch))
		for _, item := range batch {
			msgs = append(msgs, item.msg)
		}
		c.finish(batch, c.handler(ctx, msgs))
	}
}

func (c *collector) finish(batch []collectorItem, err error) {
	for _, item := range batch {
		item.done <- err
	}
}
