package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/api/middleware"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
)

const sseHeartbeatInterval = 30 * time.Second

// SSEHandler streams queue events to browsers over Server-Sent Events
type SSEHandler struct {
	eventBus providers.EventBus
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{eventBus: eventBus}
}

// StreamQueue handles GET /api/stream/queue/{department}
func (h *SSEHandler) StreamQueue(w http.ResponseWriter, r *http.Request) {
	department := entities.Department(r.PathValue("department"))
	if !department.Valid() {
		respondWithError(w, http.StatusBadRequest, "unknown department")
		return
	}

	h.stream(w, r, providers.QueueGroup(department), map[string]interface{}{
		"department": department,
	})
}

// StreamUser handles GET /api/stream/user/{id}. Only the user themselves or
// staff may attach to a personal stream.
func (h *SSEHandler) StreamUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || userID <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if actor.ID != userID && !actor.Staff() {
		respondWithError(w, http.StatusForbidden, "cannot attach to another user's stream")
		return
	}

	h.stream(w, r, providers.QueueUserGroup(userID), map[string]interface{}{
		"user_id": userID,
	})
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, group string, connected map[string]interface{}) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.eventBus.Subscribe(r.Context(), group)
	if err != nil {
		log.Error().Err(err).Str("group", group).Msg("failed to subscribe")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	connected["timestamp"] = time.Now().UTC()
	sendEvent(w, "connected", connected)
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("group", group).Msg("sse client disconnected")
			return
		case <-ticker.C:
			sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now().UTC(),
			})
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			sendEvent(w, event.Type, event)
			flusher.Flush()
		}
	}
}

func sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal sse event")
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
