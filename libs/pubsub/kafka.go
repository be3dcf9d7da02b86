package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mycontacts-app/mycontacts/libs/kafkax"
)

// KafkaPublisher writes messages to a single well-known topic. Each message
// gets a UUID event_id header which doubles as the returned message ID.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

type PublisherConfig struct {
	Brokers string
	Topic   string
}

func NewKafkaPublisher(cfg PublisherConfig) (*KafkaPublisher, error) {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, data []byte, attrs map[string]string) (string, error) {
	eventID := uuid.NewString()
	headers := []kafka.Header{
		{Key: kafkax.HeaderEventID, Value: []byte(eventID)},
	}
	for k, v := range attrs {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = kafkax.InjectTraceHeaders(ctx, headers)

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return eventID, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)

// kafkaReader is the slice of *kafka.Reader the subscription uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ kafkaReader = (*kafka.Reader)(nil)

// KafkaSubscription consumes a topic through a consumer group and layers the
// ack/nack contract on top of Kafka offsets: a message's offset is committed
// only once it reaches a terminal state, and a nacked message is redelivered
// in process after a backoff, up to MaxDeliveries attempts. Messages that
// exhaust their attempts are dropped with a loud log; that boundary belongs
// to the broker layer, not the consumer.
//
// Commits advance per partition through the contiguous prefix of terminal
// offsets, so a fast delivery never commits past a slower earlier one.
type KafkaSubscription struct {
	reader  kafkaReader
	logger  *slog.Logger
	cfg     SubscriptionConfig
	offsets *offsetTracker
}

type SubscriptionConfig struct {
	Brokers string
	Topic   string
	GroupID string
	// MaxInFlight bounds concurrently processed messages.
	MaxInFlight int
	// MaxDeliveries caps delivery attempts for a nacked message.
	MaxDeliveries int
	// RedeliveryBackoff is the pause before a nacked message is retried.
	RedeliveryBackoff time.Duration
	// DrainTimeout is the hard deadline for in-flight work during shutdown.
	DrainTimeout time.Duration
}

const maxConsecutiveFetchErrors = 10

func NewKafkaSubscription(logger *slog.Logger, cfg SubscriptionConfig) (*KafkaSubscription, error) {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka topic and group id required")
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	if cfg.RedeliveryBackoff <= 0 {
		cfg.RedeliveryBackoff = 2 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 20 * time.Second
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaSubscription{reader: reader, logger: logger, cfg: cfg, offsets: newOffsetTracker()}, nil
}

func (s *KafkaSubscription) Receive(ctx context.Context, fn func(ctx context.Context, msg Message)) error {
	sem := make(chan struct{}, s.cfg.MaxInFlight)
	var wg sync.WaitGroup

	var fetchErr error
	consecutiveErrs := 0
	for {
		km, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			consecutiveErrs++
			if consecutiveErrs >= maxConsecutiveFetchErrors {
				fetchErr = fmt.Errorf("kafka fetch: %w", err)
				break
			}
			s.logger.Error("kafka fetch error", "err", err, "consecutive", consecutiveErrs)
			time.Sleep(time.Second)
			continue
		}
		consecutiveErrs = 0

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Fetched but never delivered; uncommitted, so it comes back.
			goto drain
		}
		s.offsets.track(km)
		wg.Add(1)
		go func(km kafka.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			s.deliver(ctx, fn, km)
		}(km)
	}

drain:
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("shutdown drain timeout, abandoning in-flight messages",
			"timeout", s.cfg.DrainTimeout.String())
	}
	return fetchErr
}

// deliver runs one message through the callback, retrying on nack until the
// message is acked, attempts run out, or the context ends. Once terminal,
// the message's offset becomes eligible to commit; the actual commit may be
// carried by a later-completing sibling on the same partition.
func (s *KafkaSubscription) deliver(ctx context.Context, fn func(ctx context.Context, msg Message), km kafka.Message) {
	meta := kafkax.ExtractEventMeta(km)
	msgCtx := kafkax.ExtractTraceContext(ctx, km.Headers)

	for attempt := 1; ; attempt++ {
		m := &message{id: meta.EventID, data: km.Value, attempt: attempt}
		fn(msgCtx, m)

		// An unsettled message is treated as nacked: the callback made no
		// decision, so redelivery is the safe default.
		if m.settled() == outcomeAcked {
			break
		}
		if attempt >= s.cfg.MaxDeliveries {
			s.logger.Error("message dropped after max deliveries",
				"event_id", meta.EventID,
				"event_type", meta.EventType,
				"deliveries", attempt,
			)
			break
		}
		select {
		case <-ctx.Done():
			// Shutdown mid-retry: leave the offset uncommitted so the
			// message is redelivered after restart.
			return
		case <-time.After(s.cfg.RedeliveryBackoff):
		}
	}

	// The commit covers the contiguous prefix of terminal offsets on this
	// partition; while an earlier offset is still in flight nothing is
	// committed, so a crash redelivers every non-terminal message.
	commit, ok := s.offsets.complete(km)
	if !ok {
		return
	}
	if err := s.reader.CommitMessages(context.WithoutCancel(ctx), commit); err != nil {
		s.logger.Error("kafka commit failed", "err", err, "event_id", meta.EventID)
	}
}

func (s *KafkaSubscription) Close() error {
	return s.reader.Close()
}

var _ Subscription = (*KafkaSubscription)(nil)
