package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mycontacts-app/mycontacts/libs/events"
	"github.com/mycontacts-app/mycontacts/services/contacts-service/internal/publisher"
	"github.com/mycontacts-app/mycontacts/services/contacts-service/internal/storage"
)

const listLimit = 15

type ContactHandler struct {
	contacts *storage.ContactRepository
	events   *publisher.Publisher
	logger   *slog.Logger
}

func NewContactHandler(contacts *storage.ContactRepository, pub *publisher.Publisher, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, events: pub, logger: logger}
}

type contactRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
}

type contactResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
}

func toResponse(c storage.Contact) contactResponse {
	return contactResponse{ID: c.ID, Name: c.Name, Email: c.Email, Mobile: c.Mobile}
}

func toSnapshot(c storage.Contact) events.Contact {
	createdAt := c.CreatedAt
	updatedAt := c.UpdatedAt
	return events.Contact{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Mobile:    c.Mobile,
		CreatedAt: &createdAt,
		UpdatedAt: &updatedAt,
	}
}

// publishEvent is fire-and-forget: a broker failure is logged and never
// surfaces to the client, since the mutation has already committed. It runs
// on a context detached from the request so a client disconnect after the
// mutation cannot cancel the publish.
func (h *ContactHandler) publishEvent(r *http.Request, eventType events.Type, snapshot storage.Contact, userEmail string) {
	ctx := context.WithoutCancel(r.Context())
	id, err := h.events.Publish(ctx, eventType, toSnapshot(snapshot), userEmail)
	if err != nil {
		h.logger.Error("event publish failed",
			"event_type", string(eventType),
			"contact_id", snapshot.ID,
			"err", err,
		)
		return
	}
	h.logger.Info("event published",
		"event_type", string(eventType),
		"contact_id", snapshot.ID,
		"event_id", id,
	)
}

// Collection handles /api/contacts.
func (h *ContactHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item handles /api/contacts/{id}.
func (h *ContactHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, err := contactID(r)
	if err != nil {
		http.Error(w, "invalid contact id", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func contactID(r *http.Request) (int64, error) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/contacts/")
	return strconv.ParseInt(strings.Trim(raw, "/"), 10, 64)
}

func (h *ContactHandler) list(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	contacts, err := h.contacts.ListByUser(r.Context(), claims.User.ID, listLimit)
	if err != nil {
		http.Error(w, "failed to list contacts", http.StatusInternalServerError)
		return
	}

	out := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, toResponse(c))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (h *ContactHandler) create(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Mobile = strings.TrimSpace(req.Mobile)
	if req.Name == "" || req.Email == "" || req.Mobile == "" {
		http.Error(w, "name, email and mobile are required", http.StatusBadRequest)
		return
	}

	contact, err := h.contacts.Create(r.Context(), claims.User.ID, req.Name, req.Email, req.Mobile)
	if err != nil {
		http.Error(w, "failed to create contact", http.StatusInternalServerError)
		return
	}

	h.publishEvent(r, events.ContactCreated, contact, claims.User.Email)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toResponse(contact))
}

func (h *ContactHandler) get(w http.ResponseWriter, r *http.Request, id int64) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	contact, err := h.contacts.GetByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "contact not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load contact", http.StatusInternalServerError)
		return
	}
	if contact.UserID != claims.User.ID {
		http.Error(w, "not allowed to view this contact", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toResponse(contact))
}

func (h *ContactHandler) update(w http.ResponseWriter, r *http.Request, id int64) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	existing, err := h.contacts.GetByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "contact not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load contact", http.StatusInternalServerError)
		return
	}
	if existing.UserID != claims.User.ID {
		http.Error(w, "not allowed to update this contact", http.StatusForbidden)
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Mobile = strings.TrimSpace(req.Mobile)
	if req.Name == "" || req.Email == "" || req.Mobile == "" {
		http.Error(w, "name, email and mobile are required", http.StatusBadRequest)
		return
	}

	updated, err := h.contacts.Update(r.Context(), id, req.Name, req.Email, req.Mobile)
	if err != nil {
		http.Error(w, "failed to update contact", http.StatusInternalServerError)
		return
	}

	// The event carries the pre-update snapshot of the record.
	h.publishEvent(r, events.ContactUpdated, existing, claims.User.Email)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toResponse(updated))
}

func (h *ContactHandler) delete(w http.ResponseWriter, r *http.Request, id int64) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	existing, err := h.contacts.GetByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "contact not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load contact", http.StatusInternalServerError)
		return
	}
	if existing.UserID != claims.User.ID {
		http.Error(w, "not allowed to delete this contact", http.StatusForbidden)
		return
	}

	if err := h.contacts.Delete(r.Context(), id); err != nil {
		http.Error(w, "failed to delete contact", http.StatusInternalServerError)
		return
	}

	// The record is gone; the event carries its last known snapshot.
	h.publishEvent(r, events.ContactDeleted, existing, claims.User.Email)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toResponse(existing))
}
