// Package oauthflow sequences the Discord OAuth2 authorization-code flow:
// login, the provider callback, token refresh and logout. Every operation
// returns its result or an *errors.FlowError carrying {code, message}; the
// caller decides how to render it.
package oauthflow

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-discord-auth/discord"
	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"github.com/jrsteele09/go-discord-auth/statecodec"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Flow struct {
	cfg      Config
	codec    *statecodec.Codec
	provider Provider
}

func New(cfg Config, codec *statecodec.Codec, provider Provider) (*Flow, error) {
	if codec == nil {
		return nil, errors.New("[oauthflow.New] state codec is required")
	}
	if provider == nil {
		return nil, errors.New("[oauthflow.New] provider is required")
	}
	cfg.Query = cfg.Query.withDefaults()
	return &Flow{cfg: cfg, codec: codec, provider: provider}, nil
}

// QueryKeys returns the query parameter names in use.
func (f *Flow) QueryKeys() QueryKeys {
	return f.cfg.Query
}

type LoginRequest struct {
	Type FlowType
	// Query holds the incoming query parameters; the redirect target is read
	// from the configured redirect key.
	Query url.Values
	// Origin is the scheme://host of this site, see DomainURL.
	Origin        string
	CSRFToken     string
	SessionExists bool
}

type LoginResult struct {
	RedirectURL string
	// Authorize is true when RedirectURL points at Discord.
	Authorize bool
	State     State
}

// Login decides where to send the browser. Without a session, or for the
// login_command and webhook types, it is the Discord authorization url.
// Otherwise the sanitized redirect target on this site.
func (f *Flow) Login(req LoginRequest) (*LoginResult, error) {
	if !req.Type.Valid() {
		return nil, f.reject("login", apperrors.Config("Invalid Config Values"))
	}
	if f.cfg.App.ClientID == "" {
		return nil, f.reject("login", apperrors.Config("Invalid System Config"))
	}
	if req.Query == nil {
		req.Query = url.Values{}
	}
	if len(req.Query[f.cfg.Query.Redirect]) > 1 {
		return nil, f.reject("login", apperrors.BadRequest("Invalid Request"))
	}

	state := State{
		CSRFToken: req.CSRFToken,
		Redirect:  SanitizeRedirect(req.Query.Get(f.cfg.Query.Redirect), req.Origin),
		Type:      req.Type,
	}

	if !req.SessionExists || req.Type != TypeLogin {
		authURL, err := BuildAuthURL(f.provider.AuthorizeURL(), f.cfg.App, state, f.codec, req.Type)
		if err != nil {
			return nil, f.reject("login", apperrors.Config("Invalid Crypto Values").WithCause(err))
		}
		log.Debug().Str("flow", "login").Str("type", string(req.Type)).Bool("authorize", true).Msg("redirecting to discord")
		return &LoginResult{RedirectURL: authURL, Authorize: true, State: state}, nil
	}

	log.Debug().Str("flow", "login").Str("type", string(req.Type)).Bool("authorize", false).Msg("session exists")
	return &LoginResult{RedirectURL: req.Origin + "/" + state.Redirect, State: state}, nil
}

type RedirectRequest struct {
	// Query carries state, code and guild_id from the Discord callback.
	Query url.Values
	// ExpectedCSRF is the session's csrf token. Empty disables the check.
	ExpectedCSRF  string
	SessionExists bool
}

type RedirectResult struct {
	NewSession   bool
	State        State
	Redirect     string
	TokenRequest *discord.TokenResponse
	User         *discord.User
	GuildID      string
}

// Redirect handles the Discord callback. It decrypts the state, checks the
// csrf token and exchanges the code. A visit with an existing session is a
// no-op unless the state is a webhook.
func (f *Flow) Redirect(ctx context.Context, req RedirectRequest) (*RedirectResult, error) {
	if req.Query == nil {
		req.Query = url.Values{}
	}
	state := f.decodeState(req.Query.Get("state"))

	if !csrfMatches(req.ExpectedCSRF, state.CSRFToken) {
		return nil, f.reject("redirect", apperrors.CSRF("Incorrect csrfToken"))
	}

	result := &RedirectResult{
		State:    state,
		Redirect: rootRelative(state.Redirect),
	}

	if req.SessionExists && state.Type != TypeWebhook {
		log.Debug().Str("flow", "redirect").Bool("new_session", false).Msg("session exists, skipping code exchange")
		return result, nil
	}

	code := req.Query.Get("code")
	if code == "" {
		return nil, f.reject("redirect", apperrors.Unauthorized("Invalid Code"))
	}

	app := f.cfg.App
	if state.Type == TypeLoginCommand {
		app.Scopes = []string{discord.ScopeApplicationsCommands, discord.ScopeCommandsUpdate}
	}

	tok, err := f.provider.ExchangeCode(ctx, app, code)
	if err != nil {
		return nil, f.reject("redirect", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, f.reject("redirect", apperrors.Upstream(http.StatusInternalServerError, "Invalid User Token Data", nil))
	}
	result.TokenRequest = tok

	switch state.Type {
	case TypeLogin:
		result.NewSession = true
		if f.cfg.FirstGetUser {
			user, err := f.provider.GetCurrentUser(ctx, tok.AccessToken)
			if err != nil {
				return nil, f.reject("redirect", err)
			}
			if user == nil {
				return nil, f.reject("redirect", apperrors.Upstream(http.StatusInternalServerError, "Invalid JSON User Data", nil))
			}
			result.User = user
		}
	case TypeWebhook:
		result.GuildID = req.Query.Get("guild_id")
	default:
		return nil, f.reject("redirect", apperrors.BadRequest("Invalid State Type"))
	}

	log.Debug().Str("flow", "redirect").Str("type", string(state.Type)).Bool("new_session", result.NewSession).Msg("code exchanged")
	return result, nil
}

type RefreshRequest struct {
	// CSRFToken is the value sent by the client.
	CSRFToken string
	// ExpectedCSRF is the session's csrf token. Empty disables the check.
	ExpectedCSRF  string
	Redirect      string
	Query         url.Values
	RefreshToken  string
	SessionExists bool
}

type RefreshResult struct {
	Refreshed    bool
	TokenRequest *discord.TokenResponse
	Redirect     string
}

// Refresh swaps the session's refresh token for a new access token.
func (f *Flow) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	if !csrfMatches(req.ExpectedCSRF, req.CSRFToken) {
		return nil, f.reject("refresh", apperrors.CSRF("Incorrect csrfToken"))
	}

	result := &RefreshResult{Redirect: f.finalRedirect(req.Redirect, req.Query)}
	if !req.SessionExists {
		return result, nil
	}
	if req.RefreshToken == "" {
		return nil, f.reject("refresh", apperrors.Unauthorized("Invalid Refresh Token Data"))
	}

	tok, err := f.provider.RefreshToken(ctx, f.cfg.App, req.RefreshToken)
	if err != nil {
		return nil, f.reject("refresh", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, f.reject("refresh", apperrors.Upstream(http.StatusInternalServerError, "Invalid User Token Data", nil))
	}

	result.Refreshed = true
	result.TokenRequest = tok
	log.Debug().Str("flow", "refresh").Msg("token refreshed")
	return result, nil
}

type LogoutRequest struct {
	CSRFToken     string
	ExpectedCSRF  string
	Redirect      string
	Query         url.Values
	AccessToken   string
	SessionExists bool
}

type LogoutResult struct {
	// Data is the revoke endpoint response.
	Data         map[string]any
	ExistSession bool
	// Complete is true once the token has been revoked.
	Complete bool
	Redirect string
	State    State
	User     *discord.User
}

// Logout revokes the session's access token with Discord.
func (f *Flow) Logout(ctx context.Context, req LogoutRequest) (*LogoutResult, error) {
	if !csrfMatches(req.ExpectedCSRF, req.CSRFToken) {
		return nil, f.reject("logout", apperrors.CSRF("Invalid csrfToken"))
	}

	result := &LogoutResult{
		ExistSession: req.SessionExists,
		Redirect:     f.finalRedirect(req.Redirect, req.Query),
		State:        State{CSRFToken: req.ExpectedCSRF},
	}
	if !req.SessionExists {
		return result, nil
	}

	switch {
	case req.AccessToken == "":
		return nil, f.reject("logout", apperrors.Unauthorized("Invalid Token Data"))
	case f.cfg.App.ClientID == "":
		return nil, f.reject("logout", apperrors.Unauthorized("Invalid Client ID"))
	case f.cfg.App.ClientSecret == "":
		return nil, f.reject("logout", apperrors.Unauthorized("Invalid Client Secret"))
	}

	if f.cfg.UserOnLogout {
		user, err := f.provider.GetCurrentUser(ctx, req.AccessToken)
		if err != nil {
			return nil, f.reject("logout", err)
		}
		result.User = user
	}

	data, err := f.provider.RevokeToken(ctx, f.cfg.App, req.AccessToken)
	if err != nil {
		return nil, f.reject("logout", err)
	}
	result.Data = data
	result.Complete = true
	log.Debug().Str("flow", "logout").Msg("token revoked")
	return result, nil
}

// decodeState never fails: a state that cannot be decrypted, parsed or that
// names an unknown type is treated as empty.
func (f *Flow) decodeState(raw string) State {
	if raw == "" {
		return State{}
	}
	plaintext, err := f.codec.Decode(raw)
	if err != nil {
		log.Debug().Err(err).Str("flow", "redirect").Msg("state could not be decrypted")
		return State{}
	}
	var state State
	if err := json.Unmarshal([]byte(plaintext), &state); err != nil {
		log.Debug().Err(err).Str("flow", "redirect").Msg("state is not valid json")
		return State{}
	}
	if !state.Type.Valid() {
		return State{}
	}
	return state
}

// finalRedirect prefers the stored redirect over the query parameter.
func (f *Flow) finalRedirect(stored string, query url.Values) string {
	if stored != "" {
		return rootRelative(stored)
	}
	if query != nil {
		return rootRelative(query.Get(f.cfg.Query.Redirect))
	}
	return "/"
}

func (f *Flow) reject(flow string, err error) error {
	fe := apperrors.AsFlowError(err)
	log.Warn().Str("flow", flow).Int("code", fe.Code).Str("message", fe.Message).Msg("request rejected")
	return fe
}

func csrfMatches(expected, actual string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
