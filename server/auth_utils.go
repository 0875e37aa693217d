package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"github.com/jrsteele09/go-discord-auth/sessions"
	"github.com/rs/zerolog/log"
)

const (
	// sessionCookieName holds the id of the sessions.Session
	sessionCookieName = "discord_session_id"
	csrfHeader        = "X-CSRF-Token"
	contentTypeJSON   = "application/json; charset=utf-8"
)

func (s *Server) SetSessionCookie(w http.ResponseWriter, sessionID string, r *http.Request, maxAge int) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	s.SetSessionCookie(w, "", r, -1)
}

// currentSession loads the session named by the cookie, if any.
func (s *Server) currentSession(r *http.Request) (sessions.Session, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return sessions.Session{}, false
	}
	session, err := s.sessions.Get(cookie.Value)
	if err != nil {
		log.Debug().Err(err).Msg("session cookie does not match a session")
		return sessions.Session{}, false
	}
	return session, true
}

// sessionForLogin returns the current session or a new anonymous one, which
// carries the csrf token through the Discord round trip.
func (s *Server) sessionForLogin(w http.ResponseWriter, r *http.Request) (sessions.Session, error) {
	if session, ok := s.currentSession(r); ok {
		return session, nil
	}
	session, err := s.newSession()
	if err != nil {
		return sessions.Session{}, err
	}
	if err := s.sessions.Upsert(session); err != nil {
		return sessions.Session{}, err
	}
	s.SetSessionCookie(w, session.ID, r, int(s.config.GetMaxSessionAge().Seconds()))
	return session, nil
}

// newSession issues a fresh id and csrf token.
func (s *Server) newSession() (sessions.Session, error) {
	return sessions.New(s.nowTime(), s.config.GetMaxSessionAge())
}

// requestCSRFToken reads the csrf token from the X-CSRF-Token header, falling
// back to the form field.
func (s *Server) requestCSRFToken(r *http.Request) string {
	if token := r.Header.Get(csrfHeader); token != "" {
		return token
	}
	return r.PostFormValue(s.flow.QueryKeys().CSRFToken)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to write json response")
	}
}

// writeFlowError renders any error as {"code":..,"message":..} with the
// matching status.
func writeFlowError(w http.ResponseWriter, err error) {
	fe := apperrors.AsFlowError(err)
	writeJSON(w, fe.Code, fe)
}
