package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-discord-auth/discord"
	"github.com/jrsteele09/go-discord-auth/oauthflow"
	"github.com/rs/zerolog/log"
)

const refreshTimeout = 30 * time.Second

type refreshResponse struct {
	Refreshed bool   `json:"refreshed"`
	Redirect  string `json:"redirect"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

type logoutResponse struct {
	Complete     bool          `json:"complete"`
	ExistSession bool          `json:"existSession"`
	Redirect     string        `json:"redirect"`
	User         *discord.User `json:"user,omitempty"`
}

type meResponse struct {
	User      *discord.User `json:"user"`
	AvatarURL string        `json:"avatar_url"`
	CSRFToken string        `json:"csrfToken"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LoginHandler sends the browser to Discord, or straight to the redirect
// target when the session is already authenticated.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.sessionForLogin(w, r)
		if err != nil {
			logError(r.Method, r.URL.Path, err.Error())
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		flowType := oauthflow.FlowType(r.URL.Query().Get("type"))
		if flowType == "" {
			flowType = oauthflow.TypeLogin
		}

		result, err := s.flow.Login(oauthflow.LoginRequest{
			Type:          flowType,
			Query:         r.URL.Query(),
			Origin:        oauthflow.DomainURL(r, s.port, s.config.GetTrustProxy()),
			CSRFToken:     session.CSRFToken,
			SessionExists: session.Authenticated(),
		})
		if err != nil {
			writeFlowError(w, err)
			return
		}

		if result.Authorize {
			session.Redirect = result.State.Redirect
			if err := s.sessions.Upsert(session); err != nil {
				log.Err(err).Msg("Login: failed to store session")
			}
		}
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
	}
}

// RedirectHandler is the Discord callback. A new login replaces the session id
// so an id issued before authentication cannot be reused after it.
func (s *Server) RedirectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A callback without a session gets a fresh csrf token, so a forged
		// state cannot match it
		session, err := s.sessionForLogin(w, r)
		if err != nil {
			logError(r.Method, r.URL.Path, err.Error())
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		result, err := s.flow.Redirect(r.Context(), oauthflow.RedirectRequest{
			Query:         r.URL.Query(),
			ExpectedCSRF:  session.CSRFToken,
			SessionExists: session.Authenticated(),
		})
		if err != nil {
			writeFlowError(w, err)
			return
		}

		if result.NewSession {
			oldID := session.ID
			renewed, err := s.newSession()
			if err != nil {
				logError(r.Method, r.URL.Path, err.Error())
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			renewed.ApplyToken(result.TokenRequest, s.nowTime())
			renewed.User = result.User
			renewed.Redirect = ""
			if err := s.sessions.Upsert(renewed); err != nil {
				logError(r.Method, r.URL.Path, err.Error())
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			_ = s.sessions.Delete(oldID)
			s.SetSessionCookie(w, renewed.ID, r, int(s.config.GetMaxSessionAge().Seconds()))
		}

		if result.State.Type == oauthflow.TypeWebhook && result.TokenRequest != nil {
			log.Info().Str("guild_id", result.GuildID).Msg("webhook authorized")
		}
		http.Redirect(w, r, result.Redirect, http.StatusFound)
	}
}

// RefreshHandler refreshes the session's access token. Discord refresh tokens
// are single use, so concurrent calls for one session share a single grant,
// which outlives the caller that started it.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, exists := s.currentSession(r)
		csrfToken := s.requestCSRFToken(r)

		refresh := func() (any, error) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), refreshTimeout)
			defer cancel()
			result, err := s.flow.Refresh(ctx, oauthflow.RefreshRequest{
				CSRFToken:     csrfToken,
				ExpectedCSRF:  session.CSRFToken,
				Redirect:      session.Redirect,
				Query:         r.URL.Query(),
				RefreshToken:  session.RefreshToken,
				SessionExists: exists && session.Authenticated(),
			})
			if err != nil {
				return nil, err
			}
			if result.Refreshed {
				session.ApplyToken(result.TokenRequest, s.nowTime())
				if err := s.sessions.Upsert(session); err != nil {
					return nil, err
				}
			}
			return result, nil
		}

		var (
			v   any
			err error
		)
		if exists && session.Authenticated() {
			v, err, _ = s.refreshes.Do(session.ID+":"+csrfToken, refresh)
		} else {
			v, err = refresh()
		}
		if err != nil {
			writeFlowError(w, err)
			return
		}

		result := v.(*oauthflow.RefreshResult)
		resp := refreshResponse{Refreshed: result.Refreshed, Redirect: result.Redirect}
		if result.Refreshed {
			resp.ExpiresIn = result.TokenRequest.ExpiresIn
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, exists := s.currentSession(r)

		result, err := s.flow.Logout(r.Context(), oauthflow.LogoutRequest{
			CSRFToken:     s.requestCSRFToken(r),
			ExpectedCSRF:  session.CSRFToken,
			Redirect:      session.Redirect,
			Query:         r.URL.Query(),
			AccessToken:   session.AccessToken,
			SessionExists: exists && session.Authenticated(),
		})
		if err != nil {
			writeFlowError(w, err)
			return
		}

		if exists {
			if err := s.sessions.Delete(session.ID); err != nil {
				log.Err(err).Msg("Logout: failed to delete session")
			}
			s.ClearSessionCookie(w, r)
		}
		writeJSON(w, http.StatusOK, logoutResponse{
			Complete:     result.Complete,
			ExistSession: result.ExistSession,
			Redirect:     result.Redirect,
			User:         result.User,
		})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := sessionFromContext(r.Context())

		writeJSON(w, http.StatusOK, meResponse{
			User:      session.User,
			AvatarURL: discord.UserAvatarURL(session.User),
			CSRFToken: session.CSRFToken,
			ExpiresAt: session.TokenExpiresAt,
		})
	}
}

func (s *Server) GuildsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := sessionFromContext(r.Context())
		guilds, err := s.api.GetUserGuilds(r.Context(), session.AccessToken)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, guilds)
	}
}

func (s *Server) ConnectionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := sessionFromContext(r.Context())
		connections, err := s.api.GetUserConnections(r.Context(), session.AccessToken)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, connections)
	}
}

func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
