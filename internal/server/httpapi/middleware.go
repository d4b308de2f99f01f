package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/campusfix/campusfix/internal/models"
	"github.com/campusfix/campusfix/internal/server/auth"
)

type ctxKey int

const userIDKey ctxKey = 0

// userID returns the authenticated user id, or "" for anonymous requests.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found {
		return ""
	}
	return token
}

// requireAuth rejects requests without a valid access token and stores the
// user id in the request context. An expired token yields 401 so the client
// refreshes and replays.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, models.ErrInvalidToken)
			return
		}
		id, err := auth.GetUserIDFromToken(token, s.jwtSecret)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}
