package pubsub

import (
	"math"
	"sync"

	"github.com/segmentio/kafka-go"
)

// offsetTracker gates offset commits per partition. A Kafka commit for
// offset N marks every offset at or below N as consumed, so with concurrent
// deliveries a completed message may only be committed once every earlier
// fetched offset on its partition is terminal too. Committing out of order
// would skip an in-flight earlier message after a crash.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

type partitionOffsets struct {
	inFlight map[int64]struct{}
	done     map[int64]kafka.Message
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: map[int]*partitionOffsets{}}
}

func (t *offsetTracker) partition(p int) *partitionOffsets {
	po := t.partitions[p]
	if po == nil {
		po = &partitionOffsets{
			inFlight: map[int64]struct{}{},
			done:     map[int64]kafka.Message{},
		}
		t.partitions[p] = po
	}
	return po
}

// track records a fetched message before its delivery starts.
func (t *offsetTracker) track(km kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partition(km.Partition).inFlight[km.Offset] = struct{}{}
}

// complete marks km terminal and returns the highest message on its
// partition below every still-in-flight offset. That message is safe to
// commit, covering km and any earlier completed siblings; ok is false while
// an earlier offset is still being processed.
func (t *offsetTracker) complete(km kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	po := t.partition(km.Partition)
	delete(po.inFlight, km.Offset)
	po.done[km.Offset] = km

	floor := int64(math.MaxInt64)
	for off := range po.inFlight {
		if off < floor {
			floor = off
		}
	}

	var commit kafka.Message
	found := false
	for off, m := range po.done {
		if off < floor && (!found || off > commit.Offset) {
			commit = m
			found = true
		}
	}
	if !found {
		return kafka.Message{}, false
	}
	for off := range po.done {
		if off <= commit.Offset {
			delete(po.done, off)
		}
	}
	return commit, true
}
