// Package notify holds the per-event-type side effects: composing and
// sending the operator notification mail for each contact mutation.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/mycontacts-app/mycontacts/libs/events"
	"github.com/mycontacts-app/mycontacts/services/notification-service/internal/dispatch"
	"github.com/mycontacts-app/mycontacts/services/notification-service/internal/email"
)

// Notifier mails the configured operator address about contact mutations.
// Sending is not deduplicated: under at-least-once delivery a redelivered
// event produces a duplicate mail, which is harmless to stored state.
type Notifier struct {
	mailer   email.Sender
	operator string
	logger   *slog.Logger
}

func New(mailer email.Sender, operator string, logger *slog.Logger) *Notifier {
	return &Notifier{mailer: mailer, operator: operator, logger: logger}
}

// Handlers returns the full dispatch table for the known event types.
func (n *Notifier) Handlers() map[events.Type]dispatch.Handler {
	return map[events.Type]dispatch.Handler{
		events.ContactCreated: n.ContactCreated,
		events.ContactUpdated: n.ContactUpdated,
		events.ContactDeleted: n.ContactDeleted,
	}
}

func (n *Notifier) ContactCreated(ctx context.Context, evt events.Event) error {
	name := evt.Contact.Name
	text := fmt.Sprintf("Please be informed that a new contact - %s has been added in your account", name)
	htmlBody := fmt.Sprintf("Please be informed that a new contact - <b>%s</b> has been added in your account", html.EscapeString(name))
	return n.send(evt, "New Contact created!!", text, htmlBody)
}

func (n *Notifier) ContactUpdated(ctx context.Context, evt events.Event) error {
	name := evt.Contact.Name
	text := fmt.Sprintf("Please be informed that - %s contact details have been updated", name)
	htmlBody := fmt.Sprintf("Please be informed that - <b>%s</b> contact details have been updated", html.EscapeString(name))
	return n.send(evt, "Contact updated!!", text, htmlBody)
}

// ContactDeleted includes the full last-known snapshot, since the record no
// longer exists to query.
func (n *Notifier) ContactDeleted(ctx context.Context, evt events.Event) error {
	c := evt.Contact
	text := fmt.Sprintf(
		"Please be informed that - %s contact has been deleted.\n\nContact details:\nName: %s\nEmail: %s\nMobile: %s",
		c.Name, c.Name, c.Email, c.Mobile,
	)
	htmlBody := fmt.Sprintf(
		"<p>Please be informed that - %s contact has been deleted.</p><h3>Contact Details:</h3><ul><li><strong>Name:</strong> %s</li><li><strong>Email:</strong> %s</li><li><strong>Mobile:</strong> %s</li></ul>",
		html.EscapeString(c.Name), html.EscapeString(c.Name), html.EscapeString(c.Email), html.EscapeString(c.Mobile),
	)
	return n.send(evt, "Contact deleted!!", text, htmlBody)
}

func (n *Notifier) send(evt events.Event, subject, text, htmlBody string) error {
	if err := n.mailer.Send(n.operator, subject, text, htmlBody); err != nil {
		return fmt.Errorf("send %s mail for contact %d: %w", evt.Type, evt.Contact.ID, err)
	}
	n.logger.Info("notification mail sent",
		"event_type", string(evt.Type),
		"contact_id", evt.Contact.ID,
		"recipient", n.operator,
	)
	return nil
}
