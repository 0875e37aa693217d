package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/go-discord-auth/discord"
	"github.com/jrsteele09/go-discord-auth/internal/config"
	"github.com/jrsteele09/go-discord-auth/oauthflow"
	"github.com/jrsteele09/go-discord-auth/server"
	"github.com/jrsteele09/go-discord-auth/sessions"
	"github.com/jrsteele09/go-discord-auth/statecodec"
	"github.com/stretchr/testify/require"
)

const (
	stateKey      = "tinypudding123456789012345678900"
	sessionCookie = "discord_session_id"
	appOrigin     = "https://app.example.com"
)

// discordStub answers the handful of Discord endpoints the server uses and
// counts calls per path.
type discordStub struct {
	mu     sync.Mutex
	calls  map[string]int
	server *httptest.Server
}

func newDiscordStub(t *testing.T) *discordStub {
	t.Helper()
	d := &discordStub{calls: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		d.count(r)
		_ = r.ParseForm()
		token := "access-1"
		if r.PostForm.Get("grant_type") == "refresh_token" {
			token = "access-2"
		}
		d.json(w, map[string]any{"access_token": token, "token_type": "Bearer", "expires_in": 604800, "refresh_token": "refresh-1", "scope": "identify email"})
	})
	mux.HandleFunc("POST /api/oauth2/token/revoke", func(w http.ResponseWriter, r *http.Request) {
		d.count(r)
		d.json(w, map[string]any{})
	})
	mux.HandleFunc("GET /api/users/@me", func(w http.ResponseWriter, r *http.Request) {
		d.count(r)
		d.json(w, discord.User{ID: "42", Username: "nelly", Avatar: "abc"})
	})
	mux.HandleFunc("GET /api/users/@me/guilds", func(w http.ResponseWriter, r *http.Request) {
		d.count(r)
		d.json(w, []discord.Guild{{ID: "1", Name: "Guild One", Permissions: "0"}})
	})
	mux.HandleFunc("GET /api/users/@me/connections", func(w http.ResponseWriter, r *http.Request) {
		d.count(r)
		d.json(w, []discord.Connection{{ID: "gh", Name: "octocat", Type: "github"}})
	})
	d.server = httptest.NewServer(mux)
	t.Cleanup(d.server.Close)
	return d
}

func (d *discordStub) count(r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[r.Method+" "+r.URL.Path]++
}

func (d *discordStub) callCount(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[key]
}

func (d *discordStub) json(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

type testEnv struct {
	server  *server.Server
	discord *discordStub
	repo    *sessions.InMemoryRepo
}

// newTestEnv builds a server against a stubbed Discord API. overrides are
// name=value environment pairs applied after the defaults.
func newTestEnv(t *testing.T, overrides ...string) *testEnv {
	t.Helper()
	stub := newDiscordStub(t)

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENV", "TEST")
	t.Setenv("PORT", "8080")
	t.Setenv("BASE_URL", appOrigin)
	t.Setenv("ALLOWED_ORIGINS", appOrigin)
	t.Setenv("SESSION_MAX_AGE", "")
	t.Setenv("DISCORD_CLIENT_ID", "client")
	t.Setenv("DISCORD_CLIENT_SECRET", "secret")
	t.Setenv("DISCORD_REDIRECT_URI", appOrigin+"/auth/redirect")
	t.Setenv("DISCORD_SCOPES", "identify email guilds")
	t.Setenv("DISCORD_API_URL", stub.server.URL+"/api/")
	t.Setenv("DISCORD_FIRST_GET_USER", "true")
	t.Setenv("DISCORD_USER_ON_LOGOUT", "false")
	t.Setenv("STATE_KEYS", stateKey)
	t.Setenv("STATE_ENCODING", "")
	t.Setenv("STATE_ALGORITHM", "")
	t.Setenv("STATE_DECODE_ORDER", "")
	t.Setenv("QUERY_REDIRECT_KEY", "")
	t.Setenv("QUERY_CSRF_KEY", "")
	t.Setenv("TRUST_PROXY", "")
	for _, kv := range overrides {
		name, value, _ := strings.Cut(kv, "=")
		t.Setenv(name, value)
	}

	cfg, err := config.New()
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))

	codec, err := statecodec.New(cfg.GetStateOptions())
	require.NoError(t, err)
	client := discord.New(discord.WithAPIURL(cfg.GetDiscordAPIURL()))
	flow, err := oauthflow.New(oauthflow.Config{
		App:          cfg.GetDiscordApp(),
		FirstGetUser: cfg.GetFirstGetUser(),
		UserOnLogout: cfg.GetUserOnLogout(),
		Query:        cfg.GetQueryKeys(),
	}, codec, client)
	require.NoError(t, err)

	repo := sessions.NewInMemoryRepo()
	s, err := server.New(cfg, flow, client, repo)
	require.NoError(t, err)
	return &testEnv{server: s, discord: stub, repo: repo}
}

func (e *testEnv) do(t *testing.T, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func requireErrorBody(t *testing.T, rec *httptest.ResponseRecorder, code int, message string) {
	t.Helper()
	require.Equal(t, code, rec.Code)
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	decodeBody(t, rec, &body)
	require.Equal(t, code, body.Code)
	require.Equal(t, message, body.Message)
}

// login runs /auth/login and the Discord callback and returns the
// authenticated session cookie and csrf token.
func (e *testEnv) login(t *testing.T, redirect string) (*http.Cookie, string) {
	t.Helper()
	rec := e.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?redirect="+url.QueryEscape(redirect), nil), nil)
	require.Equal(t, http.StatusFound, rec.Code)
	anonymous := findCookie(t, rec)
	require.NotNil(t, anonymous)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/api/oauth2/authorize", location.Path)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	callback := server.RouteAuthRedirect + "?" + url.Values{"state": {state}, "code": {"the-code"}}.Encode()
	rec = e.do(t, httptest.NewRequest(http.MethodGet, callback, nil), anonymous)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/"+strings.TrimPrefix(redirect, "/"), rec.Header().Get("Location"))

	authenticated := findCookie(t, rec)
	require.NotNil(t, authenticated)
	require.NotEqual(t, anonymous.Value, authenticated.Value)

	session, err := e.repo.Get(authenticated.Value)
	require.NoError(t, err)
	return authenticated, session.CSRFToken
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_LoginFlow(t *testing.T) {
	env := newTestEnv(t)
	cookie, csrf := env.login(t, "/dashboard")

	t.Run("anonymous session is replaced", func(t *testing.T) {
		require.Equal(t, 1, env.discord.callCount("POST /api/oauth2/token"))
		require.Equal(t, 1, env.discord.callCount("GET /api/users/@me"))
	})

	t.Run("me", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthMe, nil), cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			User      discord.User `json:"user"`
			AvatarURL string       `json:"avatar_url"`
			CSRFToken string       `json:"csrfToken"`
		}
		decodeBody(t, rec, &body)
		require.Equal(t, "42", body.User.ID)
		require.Equal(t, "https://cdn.discordapp.com/avatars/42/abc.png", body.AvatarURL)
		require.Equal(t, csrf, body.CSRFToken)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})

	t.Run("guilds and connections", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthMeGuilds, nil), cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		var guilds []discord.Guild
		decodeBody(t, rec, &guilds)
		require.Len(t, guilds, 1)

		rec = env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthMeConnections, nil), cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		var connections []discord.Connection
		decodeBody(t, rec, &connections)
		require.Equal(t, "github", connections[0].Type)
	})

	t.Run("second login skips discord", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?redirect=/home", nil), cookie)
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "https://example.com:8080/home", rec.Header().Get("Location"))
	})

	t.Run("untrusted forwarded host is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?redirect=/home", nil)
		req.Header.Set("X-Forwarded-Host", "evil.com")
		rec := env.do(t, req, cookie)
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "https://example.com:8080/home", rec.Header().Get("Location"))
	})

	t.Run("refresh with a forged csrf token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, nil)
		req.Header.Set("X-CSRF-Token", "forged")
		rec := env.do(t, req, cookie)
		requireErrorBody(t, rec, http.StatusUnauthorized, "Incorrect csrfToken")
		require.Equal(t, 1, env.discord.callCount("POST /api/oauth2/token"))
	})

	t.Run("refresh", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, nil)
		req.Header.Set("X-CSRF-Token", csrf)
		rec := env.do(t, req, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Refreshed bool   `json:"refreshed"`
			Redirect  string `json:"redirect"`
		}
		decodeBody(t, rec, &body)
		require.True(t, body.Refreshed)
		require.Equal(t, "/", body.Redirect)

		session, err := env.repo.Get(cookie.Value)
		require.NoError(t, err)
		require.Equal(t, "access-2", session.AccessToken)
	})

	t.Run("refresh survives a cancelled caller", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, nil).WithContext(ctx)
		req.Header.Set("X-CSRF-Token", csrf)
		rec := env.do(t, req, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 3, env.discord.callCount("POST /api/oauth2/token"))
	})

	t.Run("logout with a forged csrf token", func(t *testing.T) {
		form := url.Values{"csrfToken": {"forged"}}
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogout, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := env.do(t, req, cookie)
		requireErrorBody(t, rec, http.StatusUnauthorized, "Invalid csrfToken")
		require.Zero(t, env.discord.callCount("POST /api/oauth2/token/revoke"))
	})

	t.Run("logout", func(t *testing.T) {
		form := url.Values{"csrfToken": {csrf}}
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogout+"?redirect=/bye", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := env.do(t, req, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Complete bool   `json:"complete"`
			Redirect string `json:"redirect"`
		}
		decodeBody(t, rec, &body)
		require.True(t, body.Complete)
		require.Equal(t, "/bye", body.Redirect)
		require.Equal(t, 1, env.discord.callCount("POST /api/oauth2/token/revoke"))

		cleared := findCookie(t, rec)
		require.NotNil(t, cleared)
		require.Negative(t, cleared.MaxAge)
	})

	t.Run("me after logout", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthMe, nil), cookie)
		requireErrorBody(t, rec, http.StatusUnauthorized, "Invalid Session")
	})
}

func TestServer_Redirect(t *testing.T) {
	t.Run("state from another session is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin, nil), nil)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)

		callback := server.RouteAuthRedirect + "?" + url.Values{"state": {location.Query().Get("state")}, "code": {"c"}}.Encode()
		rec = env.do(t, httptest.NewRequest(http.MethodGet, callback, nil), nil)
		requireErrorBody(t, rec, http.StatusUnauthorized, "Incorrect csrfToken")
		require.Zero(t, env.discord.callCount("POST /api/oauth2/token"))
	})

	t.Run("control characters cannot smuggle an external target", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?redirect=%2F%09%2Fevil.com", nil), nil)
		require.Equal(t, http.StatusFound, rec.Code)
		cookie := findCookie(t, rec)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)

		callback := server.RouteAuthRedirect + "?" + url.Values{"state": {location.Query().Get("state")}, "code": {"c"}}.Encode()
		rec = env.do(t, httptest.NewRequest(http.MethodGet, callback, nil), cookie)
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("malformed state", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthRedirect+"?state=garbage&code=c", nil), nil)
		requireErrorBody(t, rec, http.StatusUnauthorized, "Incorrect csrfToken")
	})
}

func TestServer_Login(t *testing.T) {
	t.Run("invalid type", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?type=admin", nil), nil)
		requireErrorBody(t, rec, http.StatusInternalServerError, "Invalid Config Values")
	})

	t.Run("webhook", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?type=webhook", nil), nil)
		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, discord.ScopeWebhookIncoming, location.Query().Get("scope"))
	})
}

func TestServer_ConfiguredQueryKeys(t *testing.T) {
	env := newTestEnv(t, "QUERY_REDIRECT_KEY=next", "QUERY_CSRF_KEY=token", "TRUST_PROXY=true")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?next=/profile", nil), nil)
	require.Equal(t, http.StatusFound, rec.Code)
	anonymous := findCookie(t, rec)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	callback := server.RouteAuthRedirect + "?" + url.Values{"state": {location.Query().Get("state")}, "code": {"c"}}.Encode()
	rec = env.do(t, httptest.NewRequest(http.MethodGet, callback, nil), anonymous)
	require.Equal(t, "/profile", rec.Header().Get("Location"))
	cookie := findCookie(t, rec)
	session, err := env.repo.Get(cookie.Value)
	require.NoError(t, err)

	t.Run("trusted forwarded host", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?next=/home", nil)
		req.Header.Set("X-Forwarded-Host", "app.example.com")
		rec := env.do(t, req, cookie)
		require.Equal(t, "https://app.example.com/home", rec.Header().Get("Location"))
	})

	t.Run("csrf form field", func(t *testing.T) {
		form := url.Values{"token": {session.CSRFToken}}
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogout+"?next=/bye", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := env.do(t, req, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"complete":true,"existSession":true,"redirect":"/bye"}`, rec.Body.String())
	})
}

func TestServer_RefreshWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh+"?redirect=/next", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"refreshed":false,"redirect":"/next"}`, rec.Body.String())
}

func TestServer_Cors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("allowed preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteAuthRefresh, nil)
		req.Header.Set("Origin", appOrigin)
		rec := env.do(t, req, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-CSRF-Token")
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteAuthRefresh, nil)
		req.Header.Set("Origin", "https://evil.com")
		rec := env.do(t, req, nil)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
