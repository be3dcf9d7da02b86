// Package dispatch routes decoded events to their side-effect handlers.
// The routing table is built once at startup and never mutated afterwards,
// so it is safe for concurrent dispatch without locking.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/mycontacts-app/mycontacts/libs/events"
)

var ErrNoHandler = errors.New("no handler registered")

type Handler func(ctx context.Context, evt events.Event) error

type Dispatcher struct {
	handlers map[events.Type]Handler
}

func New(handlers map[events.Type]Handler) *Dispatcher {
	table := make(map[events.Type]Handler, len(handlers))
	for t, h := range handlers {
		table[t] = h
	}
	return &Dispatcher{handlers: table}
}

// Dispatch resolves the handler for the event's type and runs it. An
// unregistered type returns ErrNoHandler (wrapped); handler errors pass
// through untouched so the caller can tell the two apart.
func (d *Dispatcher) Dispatch(ctx context.Context, evt events.Event) error {
	h, ok := d.handlers[evt.Type]
	if !ok {
		return fmt.Errorf("%w for event type %q", ErrNoHandler, evt.Type)
	}
	return h(ctx, evt)
}
