// Package events defines the domain events emitted by contact mutations and
// their wire codec. An event is a value snapshot of the contact at mutation
// time; once encoded it never changes.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type identifies the mutation that produced an event. The set below is
// closed for dispatch purposes, but unknown values are still valid on the
// wire so that decoding never breaks on newer producers.
type Type string

const (
	ContactCreated Type = "CONTACT_CREATED"
	ContactUpdated Type = "CONTACT_UPDATED"
	ContactDeleted Type = "CONTACT_DELETED"
)

// Known reports whether t is one of the routable event types.
func (t Type) Known() bool {
	switch t {
	case ContactCreated, ContactUpdated, ContactDeleted:
		return true
	}
	return false
}

// Contact is the snapshot of a contact record carried in an event payload.
type Contact struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Mobile    string     `json:"mobile"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Event is the unit of work flowing through the notification pipeline.
// UserEmail is the account the notification concerns; Timestamp is assigned
// at publish time with second precision so encode/decode round-trips exactly.
type Event struct {
	Type      Type      `json:"eventType"`
	UserEmail string    `json:"userEmail"`
	Contact   Contact   `json:"contact"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	ErrEmptyEventType = errors.New("event type is empty")
	ErrEmptyUserEmail = errors.New("user email is empty")
)

// New builds an event stamped with the current UTC time.
func New(eventType Type, contact Contact, userEmail string) Event {
	return Event{
		Type:      eventType,
		UserEmail: userEmail,
		Contact:   contact,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
}

// Encode serializes the event to its JSON wire form.
func Encode(evt Event) ([]byte, error) {
	if evt.Type == "" {
		return nil, ErrEmptyEventType
	}
	if evt.UserEmail == "" {
		return nil, ErrEmptyUserEmail
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// Decode parses the JSON wire form back into an event. It rejects payloads
// that are structurally broken or missing required fields; an unknown event
// type is not an error here, only at dispatch.
func Decode(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if evt.Type == "" {
		return Event{}, fmt.Errorf("decode event: %w", ErrEmptyEventType)
	}
	if evt.UserEmail == "" {
		return Event{}, fmt.Errorf("decode event: %w", ErrEmptyUserEmail)
	}
	return evt, nil
}

// MarshalJSON emits Timestamp as RFC3339 UTC, matching the wire contract.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{
		alias:     alias(e),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	var aux struct {
		alias
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Event(aux.alias)
	if aux.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", aux.Timestamp, err)
		}
		e.Timestamp = ts.UTC()
	}
	return nil
}
