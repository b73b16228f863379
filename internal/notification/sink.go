package notification

import (
	"context"
	"errors"
	"time"
)

// Topics published by the tracker.
const (
	TopicMovement           = "movement"
	TopicQuarantineReleased = "quarantine_released"
	TopicObjectOverdue      = "object_overdue"
)

// Event is a fact about a product object that already happened and committed.
type Event struct {
	Topic        string    `json:"topic"`
	ProcessID    int64     `json:"process_id"`
	SerialNumber string    `json:"serial_number"`
	Payload      any       `json:"payload,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Sink delivers events to downstream consumers. Delivery is best-effort:
// an error never undoes the change the event describes.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder counts delivery outcomes per sink.
type Recorder interface {
	ObserveNotification(sink, outcome string)
}

// Delivery outcomes reported to a Recorder.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)
