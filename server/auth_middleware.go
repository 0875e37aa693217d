package server

import (
	"context"
	"net/http"

	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"github.com/jrsteele09/go-discord-auth/sessions"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the authenticated sessions.Session
const ContextKeySession ContextKey = "session"

// RequireSession rejects requests without an authenticated session cookie
// with a 401 JSON error and injects the session into the request context.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, ok := s.currentSession(r)
			if !ok || !session.Authenticated() {
				writeFlowError(w, apperrors.Unauthorized("Invalid Session"))
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			next(w, r.WithContext(ctx))
		}
	}
}

func sessionFromContext(ctx context.Context) (sessions.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(sessions.Session)
	return session, ok
}
