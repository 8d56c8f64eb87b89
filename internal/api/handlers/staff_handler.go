package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/hospitalops/internal/application/services"
)

// StaffDirectory defines the staff read operations used by the handler.
type StaffDirectory interface {
	AvailableStaff(ctx context.Context) (*services.StaffAvailability, error)
}

// StaffHandler handles staff availability requests
type StaffHandler struct {
	staff StaffDirectory
}

// NewStaffHandler creates a new staff handler
func NewStaffHandler(staff StaffDirectory) *StaffHandler {
	return &StaffHandler{staff: staff}
}

// Available handles GET /api/staff/available
func (h *StaffHandler) Available(w http.ResponseWriter, r *http.Request) {
	availability, err := h.staff.AvailableStaff(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, availability)
}
