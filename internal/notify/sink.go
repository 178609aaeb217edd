package notify

import (
	"context"
	"errors"
)

// Sink publishes an encoded notification on a topic.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MultiSink fans a message out to several sinks. Every sink is attempted.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink constructs a MultiSink, skipping nil entries.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, sink := range sinks {
		if sink != nil {
			m.sinks = append(m.sinks, sink)
		}
	}
	return m
}

// Len reports the number of configured sinks.
func (m *MultiSink) Len() int {
	if m == nil {
		return 0
	}
	return len(m.sinks)
}

// Publish forwards to all sinks and joins their errors.
func (m *MultiSink) Publish(ctx context.Context, topic string, payload []byte) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
