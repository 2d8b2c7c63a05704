package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Fanout hands each event to every configured sink. A failing sink does not
// stop delivery to the others.
type Fanout struct {
	sinks []Publisher
}

// NewFanout keeps the non-nil publishers in order.
func NewFanout(pubs []Publisher) *Fanout {
	f := &Fanout{sinks: make([]Publisher, 0, len(pubs))}
	for _, p := range pubs {
		if p != nil {
			f.sinks = append(f.sinks, p)
		}
	}
	return f
}

// Publish reports how many sinks accepted the event, with the failures of
// the rest joined into one error.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil {
		return 0, nil
	}
	delivered := 0
	var failures []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, evt); err != nil {
			failures = append(failures, fmt.Errorf("%s publisher[%s]: %w", sink.Type(), sink.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(failures...)
}

// Close closes the sinks that hold connections.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var failures []error
	for _, sink := range f.sinks {
		c, ok := sink.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			failures = append(failures, fmt.Errorf("close publisher[%s]: %w", sink.ID(), err))
		}
	}
	return errors.Join(failures...)
}

// Size is the number of sinks.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}
