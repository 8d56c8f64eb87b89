package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zatekoja/hospitalops/internal/api/middleware"
	"github.com/zatekoja/hospitalops/internal/application/services"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

// AdmissionService defines the patient admission operations used by the handler.
type AdmissionService interface {
	Join(ctx context.Context, patientID int64, department entities.Department, priorityLevel entities.PriorityLevel) (*services.JoinResult, error)
	CheckAvailability(ctx context.Context, actorID int64, department entities.Department) (*services.Availability, error)
}

// DispatchService defines the nurse dispatch operations used by the handler.
type DispatchService interface {
	StartNext(ctx context.Context, nurseID int64, department entities.Department) (*services.StartNextResult, error)
	MarkServed(ctx context.Context, nurseID int64, department entities.Department, ref int64, class entities.QueueClass) (*services.ServedEntry, error)
	Remove(ctx context.Context, nurseID int64, department entities.Department, ref int64, class entities.QueueClass) (*services.ServedEntry, error)
}

// QueueStatusService defines the queue state operations used by the handler.
type QueueStatusService interface {
	GetStatus(ctx context.Context, department entities.Department) (*entities.QueueStatus, error)
	ListStatuses(ctx context.Context) ([]*entities.QueueStatus, error)
	ListStatusLogs(ctx context.Context, department *entities.Department, limit int) ([]*entities.QueueStatusLog, error)
	ListEntries(ctx context.Context, department entities.Department) ([]*entities.QueueEntry, []*entities.PriorityEntry, error)
	SetOpen(ctx context.Context, actorID int64, department entities.Department, isOpen bool, cause entities.ChangeReason, notes string) (*entities.QueueStatus, error)
}

// QueueHandler handles queue admission, dispatch and status requests
type QueueHandler struct {
	admission AdmissionService
	dispatch  DispatchService
	status    QueueStatusService
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(admission AdmissionService, dispatch DispatchService, status QueueStatusService) *QueueHandler {
	return &QueueHandler{
		admission: admission,
		dispatch:  dispatch,
		status:    status,
	}
}

type joinRequest struct {
	Department    entities.Department    `json:"department"`
	PriorityLevel entities.PriorityLevel `json:"priority_level"`
}

// Join handles POST /api/queue/join
func (h *QueueHandler) Join(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload joinRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.admission.Join(r.Context(), actor.ID, payload.Department, payload.PriorityLevel)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

// Availability handles GET /api/queue/availability
func (h *QueueHandler) Availability(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	department := entities.Department(r.URL.Query().Get("department"))
	availability, err := h.admission.CheckAvailability(r.Context(), actor.ID, department)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, availability)
}

// GetStatus handles GET /api/queue/status. Without a department parameter it
// returns every department's status.
func (h *QueueHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("department"); raw != "" {
		status, err := h.status.GetStatus(r.Context(), entities.Department(raw))
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, status)
		return
	}

	statuses, err := h.status.ListStatuses(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"statuses": statuses,
		"count":    len(statuses),
	})
}

type setStatusRequest struct {
	Department entities.Department `json:"department"`
	IsOpen     bool                `json:"is_open"`
	Notes      string              `json:"notes"`
}

// SetStatus handles POST /api/queue/status
func (h *QueueHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if !payload.Department.Valid() {
		respondWithError(w, http.StatusBadRequest, "unknown department")
		return
	}

	status, err := h.status.SetOpen(r.Context(), actor.ID, payload.Department, payload.IsOpen, entities.ChangeReasonManual, payload.Notes)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// StatusLogs handles GET /api/queue/status/logs
func (h *QueueHandler) StatusLogs(w http.ResponseWriter, r *http.Request) {
	var department *entities.Department
	if raw := r.URL.Query().Get("department"); raw != "" {
		d := entities.Department(raw)
		if !d.Valid() {
			respondWithError(w, http.StatusBadRequest, "unknown department")
			return
		}
		department = &d
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := h.status.ListStatusLogs(r.Context(), department, limit)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// Patients handles GET /api/queue/patients
func (h *QueueHandler) Patients(w http.ResponseWriter, r *http.Request) {
	department := entities.Department(r.URL.Query().Get("department"))
	normal, priority, err := h.status.ListEntries(r.Context(), department)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"priority_queue": priority,
		"normal_queue":   normal,
		"total":          len(priority) + len(normal),
	})
}

type startNextRequest struct {
	Department entities.Department `json:"department"`
}

// StartNext handles POST /api/queue/start-next
func (h *QueueHandler) StartNext(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload startNextRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.dispatch.StartNext(r.Context(), actor.ID, payload.Department)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

type entryActionRequest struct {
	Department  entities.Department `json:"department"`
	QueueType   entities.QueueClass `json:"queue_type"`
	EntryID     int64               `json:"entry_id"`
	QueueNumber int64               `json:"queue_number"`
}

func (req *entryActionRequest) ref() int64 {
	if req.EntryID > 0 {
		return req.EntryID
	}
	return req.QueueNumber
}

// MarkServed handles POST /api/queue/mark-served
func (h *QueueHandler) MarkServed(w http.ResponseWriter, r *http.Request) {
	h.finishEntry(w, r, h.dispatch.MarkServed)
}

// Remove handles POST /api/queue/remove
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.finishEntry(w, r, h.dispatch.Remove)
}

func (h *QueueHandler) finishEntry(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, nurseID int64, department entities.Department, ref int64, class entities.QueueClass) (*services.ServedEntry, error)) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload entryActionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if payload.ref() <= 0 {
		respondWithError(w, http.StatusBadRequest, "entry_id or queue_number is required")
		return
	}
	if payload.QueueType == "" {
		payload.QueueType = entities.QueueClassNormal
	}

	entry, err := action(r.Context(), actor.ID, payload.Department, payload.ref(), payload.QueueType)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps application error types onto HTTP statuses
func respondWithAppError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Type {
	case apperrors.ErrorTypeNotFound, apperrors.ErrorTypeNotConfigured:
		status = http.StatusNotFound
	case apperrors.ErrorTypeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrorTypeConflict, apperrors.ErrorTypeClosed, apperrors.ErrorTypeAlreadyInQueue:
		status = http.StatusConflict
	case apperrors.ErrorTypeUnauthorized:
		status = http.StatusForbidden
	case apperrors.ErrorTypeTransient:
		status = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"error": appErr.Message,
		"code":  string(appErr.Type),
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	respondWithJSON(w, status, body)
}
