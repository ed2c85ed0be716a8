package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/terminal-bench/flightsurety/shared/events"
)

// AllEvents matches every subject events are published on
const AllEvents = "surety.>"

// StreamName is the JetStream stream holding the event feed
const StreamName = "SURETY"

type rawPublisher interface {
	publish(ctx context.Context, subject string, payload []byte, msgID string) error
}

// EventPublisher delivers committed events to NATS, one message per event
// on the event's subject.
type EventPublisher struct {
	pub rawPublisher
}

// NewEventPublisher creates a publisher over client
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{pub: client}
}

// Name identifies the sink
func (p *EventPublisher) Name() string {
	return "nats"
}

// Deliver publishes events in order and stops at the first failure
func (p *EventPublisher) Deliver(ctx context.Context, batch []events.Event) error {
	for i := range batch {
		e := &batch[i]
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", e.Seq, err)
		}
		if err := p.pub.publish(ctx, e.Subject(), payload, e.ID.String()); err != nil {
			return fmt.Errorf("failed to publish event %d: %w", e.Seq, err)
		}
	}
	return nil
}

// DecodeEvent parses a message published by EventPublisher
func DecodeEvent(msg *nats.Msg) (events.Event, error) {
	var e events.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		return events.Event{}, fmt.Errorf("failed to decode event on %s: %w", msg.Subject, err)
	}
	return e, nil
}
