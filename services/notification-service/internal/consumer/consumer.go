// Package consumer runs the long-lived message loop: receive, decode,
// dispatch, then ack or nack. A message failure never takes the loop down;
// only unrecoverable broker errors escape Run.
package consumer

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mycontacts-app/mycontacts/libs/events"
	"github.com/mycontacts-app/mycontacts/libs/pubsub"
	"github.com/mycontacts-app/mycontacts/services/notification-service/internal/dispatch"
)

type Consumer struct {
	sub        pubsub.Subscription
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func New(logger *slog.Logger, sub pubsub.Subscription, dispatcher *dispatch.Dispatcher) *Consumer {
	return &Consumer{sub: sub, dispatcher: dispatcher, logger: logger}
}

// Run blocks on the subscription until ctx is cancelled (returns nil) or the
// broker fails unrecoverably (returns the error for the supervisor).
func (c *Consumer) Run(ctx context.Context) error {
	defer c.sub.Close()
	return c.sub.Receive(ctx, c.handle)
}

// handle drives one delivery to its terminal state:
//   - malformed payload: ack and drop, retrying cannot fix it
//   - unknown event type: ack and drop with a warning
//   - handler failure: nack, the broker redelivers under its retry policy
//   - otherwise: ack
func (c *Consumer) handle(ctx context.Context, msg pubsub.Message) {
	ctx, span := otel.Tracer("pubsub").Start(ctx, "pubsub.consume",
		trace.WithAttributes(
			attribute.String("messaging.message.id", msg.ID()),
			attribute.Int("messaging.delivery_attempt", msg.Attempt()),
		),
	)
	defer span.End()

	evt, err := events.Decode(msg.Data())
	if err != nil {
		c.logger.Error("dropping malformed message",
			"message_id", msg.ID(),
			"err", err,
		)
		span.RecordError(err)
		msg.Ack()
		return
	}

	if err := c.dispatcher.Dispatch(ctx, evt); err != nil {
		if errors.Is(err, dispatch.ErrNoHandler) {
			c.logger.Warn("dropping message with unhandled event type",
				"message_id", msg.ID(),
				"event_type", string(evt.Type),
			)
			msg.Ack()
			return
		}
		c.logger.Error("handler failed, requesting redelivery",
			"message_id", msg.ID(),
			"event_type", string(evt.Type),
			"attempt", msg.Attempt(),
			"err", err,
		)
		span.RecordError(err)
		msg.Nack()
		return
	}

	c.logger.Info("event processed",
		"message_id", msg.ID(),
		"event_type", string(evt.Type),
		"contact_id", evt.Contact.ID,
	)
	msg.Ack()
}
