package routes

import (
	"net/http"

	"github.com/zatekoja/hospitalops/internal/api/handlers"
	"github.com/zatekoja/hospitalops/internal/api/middleware"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
)

// Router wires handlers, the role gate and the middleware chain
type Router struct {
	mux *http.ServeMux

	queueHandler        *handlers.QueueHandler
	scheduleHandler     *handlers.ScheduleHandler
	notificationHandler *handlers.NotificationHandler
	staffHandler        *handlers.StaffHandler

	directory repositories.UserDirectory
}

// NewRouter creates a new router
func NewRouter(
	queueHandler *handlers.QueueHandler,
	scheduleHandler *handlers.ScheduleHandler,
	notificationHandler *handlers.NotificationHandler,
	staffHandler *handlers.StaffHandler,
	directory repositories.UserDirectory,
) *Router {
	return &Router{
		mux:                 http.NewServeMux(),
		queueHandler:        queueHandler,
		scheduleHandler:     scheduleHandler,
		notificationHandler: notificationHandler,
		staffHandler:        staffHandler,
		directory:           directory,
	}
}

// command binds one route pattern to its handler and allowed roles. An empty
// role list admits any authenticated, verified user.
type command struct {
	pattern string
	roles   []entities.UserRole
	handler http.HandlerFunc
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	nurse := []entities.UserRole{entities.RoleNurse, entities.RoleAdmin}
	patient := []entities.UserRole{entities.RolePatient}
	anyVerified := []entities.UserRole{}

	commands := []command{
		// Schedule endpoints
		{"POST /api/queue/schedules", nurse, r.scheduleHandler.Create},
		{"GET /api/queue/schedules", nurse, r.scheduleHandler.List},
		{"PUT /api/queue/schedules/{id}", nurse, r.scheduleHandler.Update},
		{"DELETE /api/queue/schedules/{id}", nurse, r.scheduleHandler.Delete},

		// Queue state endpoints
		{"GET /api/queue/status", anyVerified, r.queueHandler.GetStatus},
		{"POST /api/queue/status", nurse, r.queueHandler.SetStatus},
		{"GET /api/queue/status/logs", nurse, r.queueHandler.StatusLogs},

		// Admission endpoints
		{"POST /api/queue/join", patient, r.queueHandler.Join},
		{"GET /api/queue/availability", anyVerified, r.queueHandler.Availability},

		// Dispatch endpoints
		{"POST /api/queue/start-next", nurse, r.queueHandler.StartNext},
		{"POST /api/queue/mark-served", nurse, r.queueHandler.MarkServed},
		{"POST /api/queue/remove", nurse, r.queueHandler.Remove},
		{"GET /api/queue/patients", nurse, r.queueHandler.Patients},

		// Notification endpoints
		{"GET /api/notifications", anyVerified, r.notificationHandler.List},
		{"POST /api/notifications/mark-all-read", anyVerified, r.notificationHandler.MarkAllRead},
		{"POST /api/notifications/{id}/confirm-delivery", anyVerified, r.notificationHandler.ConfirmDelivery},
		{"POST /api/notifications/{id}/mark-read", anyVerified, r.notificationHandler.MarkRead},

		// Staff endpoints
		{"GET /api/staff/available", nurse, r.staffHandler.Available},
	}

	authenticate := middleware.Authenticate(r.directory)
	for _, cmd := range commands {
		r.mux.Handle(cmd.pattern, authenticate(middleware.RequireRoles(cmd.roles...)(cmd.handler)))
	}

	// CORS is outermost so every response carries its headers
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(handler)
	return handler
}
