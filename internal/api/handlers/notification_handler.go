package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/zatekoja/hospitalops/internal/api/middleware"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
)

// NotificationInbox defines the notification operations used by the handler.
type NotificationInbox interface {
	ListForUser(ctx context.Context, userID int64, limit int) ([]*entities.Notification, error)
	ConfirmDelivery(ctx context.Context, actor *entities.User, notificationID int64) (*entities.Notification, error)
	MarkRead(ctx context.Context, actorID, notificationID int64) (*entities.Notification, error)
	MarkAllRead(ctx context.Context, actorID int64) (int64, error)
}

// NotificationHandler handles notification inbox requests
type NotificationHandler struct {
	inbox NotificationInbox
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(inbox NotificationInbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	notifications, err := h.inbox.ListForUser(r.Context(), actor.ID, limit)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// ConfirmDelivery handles POST /api/notifications/{id}/confirm-delivery
func (h *NotificationHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	notification, err := h.inbox.ConfirmDelivery(r.Context(), actor, id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, notification)
}

// MarkRead handles POST /api/notifications/{id}/mark-read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	notification, err := h.inbox.MarkRead(r.Context(), actor.ID, id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, notification)
}

// MarkAllRead handles POST /api/notifications/mark-all-read
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	count, err := h.inbox.MarkAllRead(r.Context(), actor.ID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"marked": count})
}
