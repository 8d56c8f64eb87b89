package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

type contextKey string

const actorContextKey contextKey = "actor"

// ActorFrom returns the authenticated user stored by the auth middleware.
func ActorFrom(ctx context.Context) (*entities.User, bool) {
	actor, ok := ctx.Value(actorContextKey).(*entities.User)
	return actor, ok
}

// Authenticate resolves the bearer identity against the user directory and
// stores the verified user in the request context. Token issuance lives with
// the identity provider; the gateway forwards the subject id as the bearer.
func Authenticate(directory repositories.UserDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := bearerSubject(r)
			if !ok {
				unauthorized(w, "missing or malformed authorization header")
				return
			}

			user, err := directory.Lookup(r.Context(), subject)
			if err != nil {
				if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
					unauthorized(w, "unknown user")
					return
				}
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}
			if !user.Verified {
				forbidden(w, "account is not verified")
				return
			}

			ctx := context.WithValue(r.Context(), actorContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles gates a handler to the given roles. An empty role list admits
// any authenticated user.
func RequireRoles(roles ...entities.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[entities.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[actor.Role]; !ok {
					forbidden(w, "insufficient role")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerSubject(r *http.Request) (int64, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return 0, false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, false
	}
	subject, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || subject <= 0 {
		return 0, false
	}
	return subject, true
}

func unauthorized(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusUnauthorized, map[string]string{"error": message})
}

func forbidden(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusForbidden, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
