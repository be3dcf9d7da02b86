package events

import (
	"strings"
	"testing"
	"time"
)

func sampleContact() Contact {
	return Contact{ID: 1, Name: "Ada", Email: "a@x.com", Mobile: "123"}
}

func TestRoundTrip(t *testing.T) {
	for _, typ := range []Type{ContactCreated, ContactUpdated, ContactDeleted} {
		evt := New(typ, sampleContact(), "owner@example.com")

		data, err := Encode(evt)
		if err != nil {
			t.Fatalf("%s: Encode failed: %v", typ, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", typ, err)
		}
		if got.Type != evt.Type || got.UserEmail != evt.UserEmail {
			t.Fatalf("%s: round trip mismatch: %+v vs %+v", typ, got, evt)
		}
		if got.Contact != evt.Contact {
			t.Fatalf("%s: contact mismatch: %+v vs %+v", typ, got.Contact, evt.Contact)
		}
		if !got.Timestamp.Equal(evt.Timestamp) {
			t.Fatalf("%s: timestamp mismatch: %s vs %s", typ, got.Timestamp, evt.Timestamp)
		}
	}
}

func TestWireFieldNames(t *testing.T) {
	evt := New(ContactCreated, sampleContact(), "owner@example.com")
	data, err := Encode(evt)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, field := range []string{`"eventType"`, `"userEmail"`, `"contact"`, `"timestamp"`, `"mobile"`} {
		if !strings.Contains(string(data), field) {
			t.Fatalf("wire payload missing %s: %s", field, data)
		}
	}
}

func TestDecodeUnknownTypeIsTransportValid(t *testing.T) {
	evt, err := Decode([]byte(`{"eventType":"UNKNOWN_TYPE","userEmail":"o@x.com","contact":{"id":1,"name":"Ada","email":"a@x.com","mobile":"123"},"timestamp":"2026-01-02T03:04:05Z"}`))
	if err != nil {
		t.Fatalf("Decode should accept unknown event types: %v", err)
	}
	if evt.Type.Known() {
		t.Fatalf("UNKNOWN_TYPE should not be a known type")
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !evt.Timestamp.Equal(want) {
		t.Fatalf("timestamp mismatch: %s", evt.Timestamp)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"empty type":      `{"eventType":"","userEmail":"o@x.com","contact":{}}`,
		"missing subject": `{"eventType":"CONTACT_CREATED","contact":{}}`,
		"bad timestamp":   `{"eventType":"CONTACT_CREATED","userEmail":"o@x.com","contact":{},"timestamp":"yesterday"}`,
	}
	for name, payload := range cases {
		if _, err := Decode([]byte(payload)); err == nil {
			t.Fatalf("%s: Decode should fail for %s", name, payload)
		}
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	if _, err := Encode(Event{UserEmail: "o@x.com"}); err != ErrEmptyEventType {
		t.Fatalf("expected ErrEmptyEventType, got %v", err)
	}
	if _, err := Encode(Event{Type: ContactCreated}); err != ErrEmptyUserEmail {
		t.Fatalf("expected ErrEmptyUserEmail, got %v", err)
	}
}
