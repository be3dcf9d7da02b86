package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/mycontacts-app/mycontacts/libs/events"
	"github.com/mycontacts-app/mycontacts/libs/kafkax"
)

type fakeSink struct {
	key   string
	data  []byte
	attrs map[string]string
	err   error
	calls int
}

func (f *fakeSink) Publish(_ context.Context, key string, data []byte, attrs map[string]string) (string, error) {
	f.calls++
	f.key = key
	f.data = data
	f.attrs = attrs
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func TestPublishSubmitsEncodedEvent(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink)

	contact := events.Contact{ID: 42, Name: "Ada", Email: "a@x.com", Mobile: "123"}
	id, err := p.Publish(context.Background(), events.ContactCreated, contact, "owner@example.com")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("expected broker message id, got %q", id)
	}
	if sink.key != "42" {
		t.Fatalf("expected contact id key, got %q", sink.key)
	}
	if sink.attrs[kafkax.HeaderEventType] != "CONTACT_CREATED" {
		t.Fatalf("missing event_type attr: %v", sink.attrs)
	}

	evt, err := events.Decode(sink.data)
	if err != nil {
		t.Fatalf("published payload does not decode: %v", err)
	}
	if evt.Type != events.ContactCreated || evt.UserEmail != "owner@example.com" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Contact != contact {
		t.Fatalf("snapshot mismatch: %+v", evt.Contact)
	}
	if evt.Timestamp.IsZero() {
		t.Fatal("timestamp not assigned at publish time")
	}
}

func TestPublishRejectsUnknownType(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink)

	if _, err := p.Publish(context.Background(), "CONTACT_EXPLODED", events.Contact{ID: 1}, "o@x.com"); err == nil {
		t.Fatal("expected error for unsupported event type")
	}
	if sink.calls != 0 {
		t.Fatal("nothing should reach the broker for an unsupported type")
	}
}

func TestPublishRejectsEmptySubject(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink)

	if _, err := p.Publish(context.Background(), events.ContactDeleted, events.Contact{ID: 1}, ""); err == nil {
		t.Fatal("expected error for empty user email")
	}
	if sink.calls != 0 {
		t.Fatal("nothing should reach the broker without a subject")
	}
}

func TestPublishSurfacesBrokerError(t *testing.T) {
	sink := &fakeSink{err: errors.New("broker unavailable")}
	p := New(sink)

	if _, err := p.Publish(context.Background(), events.ContactCreated, events.Contact{ID: 1, Name: "Ada"}, "o@x.com"); err == nil {
		t.Fatal("expected broker error to surface to the caller")
	}
}
