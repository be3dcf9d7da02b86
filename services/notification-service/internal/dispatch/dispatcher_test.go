package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/mycontacts-app/mycontacts/libs/events"
)

func TestDispatchRoutesByType(t *testing.T) {
	var got events.Type
	d := New(map[events.Type]Handler{
		events.ContactCreated: func(_ context.Context, evt events.Event) error {
			got = evt.Type
			return nil
		},
	})

	evt := events.New(events.ContactCreated, events.Contact{ID: 1, Name: "Ada"}, "o@x.com")
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got != events.ContactCreated {
		t.Fatalf("handler not invoked for %s", events.ContactCreated)
	}
}

func TestDispatchUnknownType(t *testing.T) {
	d := New(nil)
	evt := events.Event{Type: "UNKNOWN_TYPE", UserEmail: "o@x.com"}
	err := d.Dispatch(context.Background(), evt)
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	handlerErr := errors.New("smtp down")
	d := New(map[events.Type]Handler{
		events.ContactDeleted: func(context.Context, events.Event) error { return handlerErr },
	})

	evt := events.New(events.ContactDeleted, events.Contact{ID: 1}, "o@x.com")
	err := d.Dispatch(context.Background(), evt)
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if errors.Is(err, ErrNoHandler) {
		t.Fatal("handler error must be distinguishable from ErrNoHandler")
	}
}
