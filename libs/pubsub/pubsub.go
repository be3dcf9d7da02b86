// Package pubsub defines the broker contract the notification pipeline is
// written against: durable publish with a broker-assigned message ID, and a
// subscription stream with at-least-once delivery driven by ack/nack.
package pubsub

import (
	"context"
	"sync"
)

// Publisher submits one durable message to the broker topic it was built for.
type Publisher interface {
	// Publish returns the message identifier assigned on acceptance.
	Publish(ctx context.Context, key string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Message is a single delivery. Exactly one of Ack or Nack decides its fate:
// Ack means done (never redeliver), Nack requests redelivery. The first call
// wins; later calls are no-ops.
type Message interface {
	ID() string
	Data() []byte
	// Attempt is the 1-based delivery attempt for this message.
	Attempt() int
	Ack()
	Nack()
}

// Subscription is an effectively infinite stream of deliveries. Receive
// invokes fn concurrently up to the subscription's in-flight bound and
// returns nil on context cancellation or a non-nil error on unrecoverable
// broker failure.
type Subscription interface {
	Receive(ctx context.Context, fn func(ctx context.Context, msg Message)) error
	Close() error
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeAcked
	outcomeNacked
)

// message is the concrete delivery handed to subscription callbacks.
type message struct {
	id      string
	data    []byte
	attempt int

	mu    sync.Mutex
	state outcome
}

func (m *message) ID() string   { return m.id }
func (m *message) Data() []byte { return m.data }
func (m *message) Attempt() int { return m.attempt }

func (m *message) Ack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == outcomePending {
		m.state = outcomeAcked
	}
}

func (m *message) Nack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == outcomePending {
		m.state = outcomeNacked
	}
}

func (m *message) settled() outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
