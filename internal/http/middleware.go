package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// UserContextKey is the key the authenticated caller's user id is stored
// under in the request context.
const UserContextKey ContextKey = "user_id"

const defaultUserID = "default"

// AuthenticateAPIToken checks the Authorization bearer token against the
// configured api token and stashes the caller's user id in the context. The
// user id comes from the X-User-ID header; a missing header maps to the
// default single-operator user.
func (s *Server) AuthenticateAPIToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "Unauthorized: Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		expected := s.config.Config.APIToken
		if expected == "" || subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) != 1 {
			s.log.Debug().Msg("API token authentication failed")
			http.Error(w, "Unauthorized: Invalid API token", http.StatusUnauthorized)
			return
		}

		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			userID = defaultUserID
		}

		ctx := context.WithValue(r.Context(), UserContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userIDFromContext returns the authenticated user id, or the default when
// the route skipped authentication.
func userIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(UserContextKey).(string); ok && userID != "" {
		return userID
	}
	return defaultUserID
}

// LoggerMiddleware provides structured logging for HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With().Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				reqID := middleware.GetReqID(r.Context())

				if rec := recover(); rec != nil {
					reqLogger.Error().
						Str("type", "error").
						Timestamp().
						Interface("recover_info", rec).
						Bytes("debug_stack", debug.Stack()).
						Str("request_id", reqID).
						Msg("Unhandled panic recovered by middleware")
					http.Error(ww, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
