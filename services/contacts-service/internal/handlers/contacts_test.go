package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mycontacts-app/mycontacts/libs/events"
	"github.com/mycontacts-app/mycontacts/services/contacts-service/internal/publisher"
	"github.com/mycontacts-app/mycontacts/services/contacts-service/internal/storage"
)

type recordingSink struct {
	calls  int
	ctxErr error
}

func (s *recordingSink) Publish(ctx context.Context, key string, data []byte, attrs map[string]string) (string, error) {
	s.calls++
	s.ctxErr = ctx.Err()
	return "msg-1", nil
}

func TestPublishEventSurvivesClientDisconnect(t *testing.T) {
	sink := &recordingSink{}
	h := NewContactHandler(nil, publisher.New(sink), slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/contacts", nil).WithContext(ctx)
	cancel()

	h.publishEvent(req, events.ContactCreated, storage.Contact{ID: 1, Name: "Ada", Email: "a@x.com", Mobile: "123"}, "owner@example.com")

	if sink.calls != 1 {
		t.Fatalf("publish should still reach the broker, calls=%d", sink.calls)
	}
	if sink.ctxErr != nil {
		t.Fatalf("publish context must outlive the request: %v", sink.ctxErr)
	}
}
