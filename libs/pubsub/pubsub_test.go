package pubsub

import "testing"

func TestMessageFirstSettlementWins(t *testing.T) {
	m := &message{id: "m1", data: []byte("x"), attempt: 1}
	if m.settled() != outcomePending {
		t.Fatal("new message should be pending")
	}

	m.Ack()
	m.Nack()
	if m.settled() != outcomeAcked {
		t.Fatal("ack then nack should stay acked")
	}

	m2 := &message{id: "m2", attempt: 1}
	m2.Nack()
	m2.Ack()
	if m2.settled() != outcomeNacked {
		t.Fatal("nack then ack should stay nacked")
	}
}
