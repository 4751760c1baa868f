package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/foundrly/platform/internal/auth"
	"github.com/foundrly/platform/internal/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// RequireAuth resolves the caller through the authenticator and rejects
// anonymous requests with 401.
func RequireAuth(authn auth.Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authn.Authenticate(r)
			if err != nil {
				status := http.StatusUnauthorized
				message := "authentication required"
				if err != auth.ErrAnonymous {
					status = http.StatusInternalServerError
					message = "authentication failed"
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				json.NewEncoder(w).Encode(map[string]string{"error": message})
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
