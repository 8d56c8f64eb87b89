package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/hospitalops/internal/api/handlers"
	"github.com/zatekoja/hospitalops/internal/application/services"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

type stubDirectory struct {
	users map[int64]*entities.User
}

func (d *stubDirectory) Lookup(ctx context.Context, id int64) (*entities.User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %d not found", id))
	}
	return user, nil
}

func (d *stubDirectory) IteratePatients(ctx context.Context, batchSize int, fn func(ids []int64) error) error {
	return nil
}

func (d *stubDirectory) ListAvailableNurses(ctx context.Context) ([]*entities.User, error) {
	return nil, nil
}

func (d *stubDirectory) ListAvailableDoctors(ctx context.Context) ([]*entities.User, error) {
	return nil, nil
}

type stubAdmission struct{}

func (s *stubAdmission) Join(ctx context.Context, patientID int64, department entities.Department, priorityLevel entities.PriorityLevel) (*services.JoinResult, error) {
	return &services.JoinResult{QueueNumber: 1, Position: 1}, nil
}

func (s *stubAdmission) CheckAvailability(ctx context.Context, actorID int64, department entities.Department) (*services.Availability, error) {
	return &services.Availability{IsAvailable: true}, nil
}

type stubDispatch struct{}

func (s *stubDispatch) StartNext(ctx context.Context, nurseID int64, department entities.Department) (*services.StartNextResult, error) {
	return &services.StartNextResult{}, nil
}

func (s *stubDispatch) MarkServed(ctx context.Context, nurseID int64, department entities.Department, ref int64, class entities.QueueClass) (*services.ServedEntry, error) {
	return &services.ServedEntry{}, nil
}

func (s *stubDispatch) Remove(ctx context.Context, nurseID int64, department entities.Department, ref int64, class entities.QueueClass) (*services.ServedEntry, error) {
	return &services.ServedEntry{}, nil
}

type stubStatus struct{}

func (s *stubStatus) GetStatus(ctx context.Context, department entities.Department) (*entities.QueueStatus, error) {
	return &entities.QueueStatus{Department: department}, nil
}

func (s *stubStatus) ListStatuses(ctx context.Context) ([]*entities.QueueStatus, error) {
	return nil, nil
}

func (s *stubStatus) ListStatusLogs(ctx context.Context, department *entities.Department, limit int) ([]*entities.QueueStatusLog, error) {
	return nil, nil
}

func (s *stubStatus) ListEntries(ctx context.Context, department entities.Department) ([]*entities.QueueEntry, []*entities.PriorityEntry, error) {
	return nil, nil, nil
}

func (s *stubStatus) SetOpen(ctx context.Context, actorID int64, department entities.Department, isOpen bool, cause entities.ChangeReason, notes string) (*entities.QueueStatus, error) {
	return &entities.QueueStatus{Department: department, IsOpen: isOpen}, nil
}

type stubSchedules struct{}

func (s *stubSchedules) CreateSchedule(ctx context.Context, actorID int64, schedule *entities.QueueSchedule) error {
	schedule.ID = 1
	return nil
}

func (s *stubSchedules) UpdateSchedule(ctx context.Context, actorID int64, schedule *entities.QueueSchedule) error {
	return nil
}

func (s *stubSchedules) DeleteSchedule(ctx context.Context, actorID int64, id int64) error {
	return nil
}

func (s *stubSchedules) ListSchedules(ctx context.Context, department *entities.Department) ([]*entities.QueueSchedule, error) {
	return nil, nil
}

type stubInbox struct{}

func (s *stubInbox) ListForUser(ctx context.Context, userID int64, limit int) ([]*entities.Notification, error) {
	return nil, nil
}

func (s *stubInbox) ConfirmDelivery(ctx context.Context, actor *entities.User, notificationID int64) (*entities.Notification, error) {
	return &entities.Notification{ID: notificationID}, nil
}

func (s *stubInbox) MarkRead(ctx context.Context, actorID, notificationID int64) (*entities.Notification, error) {
	return &entities.Notification{ID: notificationID, IsRead: true}, nil
}

func (s *stubInbox) MarkAllRead(ctx context.Context, actorID int64) (int64, error) {
	return 0, nil
}

type stubStaff struct{}

func (s *stubStaff) AvailableStaff(ctx context.Context) (*services.StaffAvailability, error) {
	return &services.StaffAvailability{}, nil
}

func newTestRouter() http.Handler {
	directory := &stubDirectory{users: map[int64]*entities.User{
		1: {ID: 1, Role: entities.RolePatient, Verified: true},
		2: {ID: 2, Role: entities.RoleNurse, Verified: true},
		3: {ID: 3, Role: entities.RoleDoctor, Verified: true},
		4: {ID: 4, Role: entities.RoleAdmin, Verified: true},
	}}

	router := NewRouter(
		handlers.NewQueueHandler(&stubAdmission{}, &stubDispatch{}, &stubStatus{}),
		handlers.NewScheduleHandler(&stubSchedules{}),
		handlers.NewNotificationHandler(&stubInbox{}),
		handlers.NewStaffHandler(&stubStaff{}),
		directory,
	)
	return router.SetupRoutes()
}

func send(t *testing.T, handler http.Handler, method, target, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointIsOpen(t *testing.T) {
	handler := newTestRouter()
	rec := send(t, handler, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRoleGate(t *testing.T) {
	handler := newTestRouter()

	cases := []struct {
		name     string
		method   string
		target   string
		bearer   string
		body     string
		wantCode int
	}{
		{"patient joins", http.MethodPost, "/api/queue/join", "1", `{"department":"OPD"}`, http.StatusCreated},
		{"nurse cannot join as patient", http.MethodPost, "/api/queue/join", "2", `{"department":"OPD"}`, http.StatusForbidden},
		{"patient cannot dispatch", http.MethodPost, "/api/queue/start-next", "1", `{"department":"OPD"}`, http.StatusForbidden},
		{"nurse dispatches", http.MethodPost, "/api/queue/start-next", "2", `{"department":"OPD"}`, http.StatusOK},
		{"doctor cannot manage schedules", http.MethodPost, "/api/queue/schedules", "3", `{"department":"OPD","start_time":"08:00","end_time":"17:00"}`, http.StatusForbidden},
		{"admin manages schedules", http.MethodPost, "/api/queue/schedules", "4", `{"department":"OPD","start_time":"08:00","end_time":"17:00"}`, http.StatusCreated},
		{"anyone verified reads status", http.MethodGet, "/api/queue/status?department=OPD", "1", "", http.StatusOK},
		{"patient cannot read logs", http.MethodGet, "/api/queue/status/logs", "1", "", http.StatusForbidden},
		{"patient reads own inbox", http.MethodGet, "/api/notifications", "1", "", http.StatusOK},
		{"patient cannot list staff", http.MethodGet, "/api/staff/available", "1", "", http.StatusForbidden},
		{"nurse lists staff", http.MethodGet, "/api/staff/available", "2", "", http.StatusOK},
		{"unauthenticated is rejected", http.MethodGet, "/api/queue/status", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := send(t, handler, tc.method, tc.target, tc.bearer, tc.body)
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestScheduleRoutesCarryPathValues(t *testing.T) {
	handler := newTestRouter()

	rec := send(t, handler, http.MethodPut, "/api/queue/schedules/12", "2",
		`{"department":"OPD","start_time":"08:00","end_time":"17:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, handler, http.MethodDelete, "/api/queue/schedules/12", "2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, handler, http.MethodPost, "/api/notifications/8/mark-read", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
