package services

import (
	"context"
	"sync"
)

// PublishedEvent is an event captured by RecordingPublisher
type PublishedEvent struct {
	Subject string
	Data    any
}

// RecordingPublisher is an in-memory EventPublisher for testing
type RecordingPublisher struct {
	events []PublishedEvent
	err    error
	mu     sync.Mutex
}

// NewRecordingPublisher creates a publisher that keeps every event
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// FailWith makes subsequent Publish calls return err
func (r *RecordingPublisher) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *RecordingPublisher) Publish(_ context.Context, subject string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, PublishedEvent{Subject: subject, Data: data})
	return nil
}

func (r *RecordingPublisher) Close() error { return nil }

// Events returns a copy of the recorded events
func (r *RecordingPublisher) Events() []PublishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PublishedEvent(nil), r.events...)
}

// Subjects returns the subjects of the recorded events in order
func (r *RecordingPublisher) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	subjects := make([]string, len(r.events))
	for i, e := range r.events {
		subjects[i] = e.Subject
	}
	return subjects
}
