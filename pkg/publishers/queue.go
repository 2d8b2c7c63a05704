package publishers

import (
	"context"
	"io"
)

// queuePublisher adapts a message-queue sender to the Publisher interface.
type queuePublisher struct {
	id     string
	typ    string
	sender sender
}

func (q *queuePublisher) ID() string   { return q.id }
func (q *queuePublisher) Type() string { return q.typ }

func (q *queuePublisher) Publish(ctx context.Context, evt Event) error {
	return q.sender.Send(ctx, evt)
}

// Close releases the sender's client when it holds one.
func (q *queuePublisher) Close() error {
	if c, ok := q.sender.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
