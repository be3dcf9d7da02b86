package pubsub

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// fakeReader serves a fixed queue of messages; once drained, FetchMessage
// blocks until the context ends, like a quiet live reader.
type fakeReader struct {
	mu      sync.Mutex
	queue   []kafka.Message
	commits []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		km := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return km, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committed() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]kafka.Message, len(r.commits))
	copy(out, r.commits)
	return out
}

func newTestSubscription(reader kafkaReader, cfg SubscriptionConfig) *KafkaSubscription {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	if cfg.RedeliveryBackoff <= 0 {
		cfg.RedeliveryBackoff = time.Millisecond
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	return &KafkaSubscription{
		reader:  reader,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:     cfg,
		offsets: newOffsetTracker(),
	}
}

func TestReceiveHoldsCommitForSlowerEarlierOffset(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Partition: 0, Offset: 4, Value: []byte("slow")},
		{Partition: 0, Offset: 5, Value: []byte("fast")},
	}}
	sub := newTestSubscription(reader, SubscriptionConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	slowStarted := make(chan struct{})
	release := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- sub.Receive(ctx, func(_ context.Context, m Message) {
			switch string(m.Data()) {
			case "slow":
				close(slowStarted)
				<-release
				m.Ack()
			case "fast":
				<-slowStarted
				m.Ack()
			}
		})
	}()

	// Wait for offset 5 to reach its terminal bookkeeping while offset 4
	// is still held inside its callback.
	deadline := time.Now().Add(5 * time.Second)
	for {
		sub.offsets.mu.Lock()
		po := sub.offsets.partitions[0]
		fastDone := po != nil && len(po.done) > 0
		sub.offsets.mu.Unlock()
		if fastDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("offset 5 never completed")
		}
		time.Sleep(time.Millisecond)
	}
	if got := reader.committed(); len(got) != 0 {
		t.Fatalf("nothing may be committed while offset 4 is in flight, got %+v", got)
	}

	close(release)
	// Receive's drain waits for both deliveries, commits included.
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	commits := reader.committed()
	if len(commits) != 1 {
		t.Fatalf("expected one contiguous commit, got %d: %+v", len(commits), commits)
	}
	if commits[0].Offset != 5 {
		t.Fatalf("commit should cover both offsets via offset 5, got %d", commits[0].Offset)
	}
}

func TestNackedMessageRedeliveredUntilMaxDeliveries(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Partition: 0, Offset: 7, Value: []byte("x")},
	}}
	sub := newTestSubscription(reader, SubscriptionConfig{MaxDeliveries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var attempts []int
	exhausted := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- sub.Receive(ctx, func(_ context.Context, m Message) {
			mu.Lock()
			attempts = append(attempts, m.Attempt())
			mu.Unlock()
			if m.Attempt() == 3 {
				close(exhausted)
			}
			m.Nack()
		})
	}()

	<-exhausted
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	mu.Lock()
	got := append([]int(nil), attempts...)
	mu.Unlock()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected attempts 1,2,3, got %v", got)
	}
	commits := reader.committed()
	if len(commits) != 1 || commits[0].Offset != 7 {
		t.Fatalf("dropped message must still commit its offset, got %+v", commits)
	}
}

func TestUnsettledCallbackIsRedelivered(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Partition: 0, Offset: 2, Value: []byte("x")},
	}}
	sub := newTestSubscription(reader, SubscriptionConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	acked := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- sub.Receive(ctx, func(_ context.Context, m Message) {
			// First attempt returns without settling; redelivery is the
			// safe default for an undecided delivery.
			if m.Attempt() == 2 {
				m.Ack()
				close(acked)
			}
		})
	}()

	<-acked
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	commits := reader.committed()
	if len(commits) != 1 || commits[0].Offset != 2 {
		t.Fatalf("expected one commit for offset 2, got %+v", commits)
	}
}

func TestOffsetTrackerContiguousPrefix(t *testing.T) {
	tr := newOffsetTracker()
	msg := func(p int, off int64) kafka.Message {
		return kafka.Message{Partition: p, Offset: off}
	}
	tr.track(msg(0, 4))
	tr.track(msg(0, 5))
	tr.track(msg(0, 6))
	tr.track(msg(1, 9))

	if _, ok := tr.complete(msg(0, 5)); ok {
		t.Fatal("offset 5 must wait for offset 4")
	}
	c, ok := tr.complete(msg(0, 4))
	if !ok || c.Offset != 5 {
		t.Fatalf("completing 4 should release up to 5, got %+v ok=%v", c, ok)
	}
	c, ok = tr.complete(msg(0, 6))
	if !ok || c.Offset != 6 {
		t.Fatalf("completing 6 should release 6, got %+v ok=%v", c, ok)
	}
	c, ok = tr.complete(msg(1, 9))
	if !ok || c.Offset != 9 || c.Partition != 1 {
		t.Fatalf("partitions must advance independently, got %+v ok=%v", c, ok)
	}
}
