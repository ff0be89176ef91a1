package event

import (
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a published payload with its topic and metadata.
// Envelopes are immutable once created.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string

	// Topic is the hierarchical event type.
	Topic Topic

	// Time is when the event was created.
	Time time.Time

	// Source identifies the component that published the event.
	Source string

	// Payload carries the event-specific data.
	Payload any
}

// New creates an envelope for the given topic and payload.
func New(t Topic, source string, payload any) Envelope {
	return Envelope{
		ID:      uuid.NewString(),
		Topic:   t,
		Time:    time.Now(),
		Source:  source,
		Payload: payload,
	}
}
