// Package publisher turns completed contact mutations into durable broker
// messages. Publication is fire-and-forget relative to the triggering
// database write: callers log failures and never roll back the mutation.
package publisher

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mycontacts-app/mycontacts/libs/events"
	"github.com/mycontacts-app/mycontacts/libs/kafkax"
)

// Sink is the broker-facing half of pubsub.Publisher that this package needs.
type Sink interface {
	Publish(ctx context.Context, key string, data []byte, attrs map[string]string) (string, error)
}

type Publisher struct {
	sink Sink
}

func New(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

// Publish builds a domain event stamped now, encodes it, and submits it to
// the broker. It performs no local retry; the returned message ID is for
// correlation in logs. The contact snapshot is captured by value, so later
// mutations of the row cannot alter an already-published event.
func (p *Publisher) Publish(ctx context.Context, eventType events.Type, contact events.Contact, userEmail string) (string, error) {
	if !eventType.Known() {
		return "", fmt.Errorf("publish: unsupported event type %q", eventType)
	}

	evt := events.New(eventType, contact, userEmail)
	data, err := events.Encode(evt)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", eventType, err)
	}

	// Key by contact ID so events for one contact share a partition.
	id, err := p.sink.Publish(ctx, strconv.FormatInt(contact.ID, 10), data, map[string]string{
		kafkax.HeaderEventType: string(eventType),
	})
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", eventType, err)
	}
	return id, nil
}
