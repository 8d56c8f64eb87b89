package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zatekoja/hospitalops/internal/api/middleware"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
)

// ScheduleManager defines the schedule CRUD operations used by the handler.
type ScheduleManager interface {
	CreateSchedule(ctx context.Context, actorID int64, schedule *entities.QueueSchedule) error
	UpdateSchedule(ctx context.Context, actorID int64, schedule *entities.QueueSchedule) error
	DeleteSchedule(ctx context.Context, actorID int64, id int64) error
	ListSchedules(ctx context.Context, department *entities.Department) ([]*entities.QueueSchedule, error)
}

// ScheduleHandler handles nurse schedule requests
type ScheduleHandler struct {
	schedules ScheduleManager
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(schedules ScheduleManager) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

type scheduleRequest struct {
	Department     entities.Department     `json:"department"`
	NurseID        int64                   `json:"nurse_id"`
	StartTime      string                  `json:"start_time"`
	EndTime        string                  `json:"end_time"`
	DaysOfWeek     []int                   `json:"days_of_week"`
	IsActive       *bool                   `json:"is_active"`
	ManualOverride bool                    `json:"manual_override"`
	OverrideStatus entities.OverrideStatus `json:"override_status"`
}

func (req *scheduleRequest) toEntity(actorID int64) *entities.QueueSchedule {
	nurseID := req.NurseID
	if nurseID == 0 {
		nurseID = actorID
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	return &entities.QueueSchedule{
		Department:     req.Department,
		NurseID:        nurseID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		DaysOfWeek:     req.DaysOfWeek,
		IsActive:       isActive,
		ManualOverride: req.ManualOverride,
		OverrideStatus: req.OverrideStatus,
	}
}

// Create handles POST /api/queue/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	schedule := payload.toEntity(actor.ID)
	if err := h.schedules.CreateSchedule(r.Context(), actor.ID, schedule); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, schedule)
}

// Update handles PUT /api/queue/schedules/{id}
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	var payload scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	schedule := payload.toEntity(actor.ID)
	schedule.ID = id
	if err := h.schedules.UpdateSchedule(r.Context(), actor.ID, schedule); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, schedule)
}

// Delete handles DELETE /api/queue/schedules/{id}
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	if err := h.schedules.DeleteSchedule(r.Context(), actor.ID, id); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// List handles GET /api/queue/schedules
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	var department *entities.Department
	if raw := r.URL.Query().Get("department"); raw != "" {
		d := entities.Department(raw)
		if !d.Valid() {
			respondWithError(w, http.StatusBadRequest, "unknown department")
			return
		}
		department = &d
	}

	schedules, err := h.schedules.ListSchedules(r.Context(), department)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}
