package discord

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL = "https://discord.com/api/"

	ScopeIdentify              = "identify"
	ScopeEmail                 = "email"
	ScopeGuilds                = "guilds"
	ScopeGuildsJoin            = "guilds.join"
	ScopeConnections           = "connections"
	ScopeWebhookIncoming       = "webhook.incoming"
	ScopeApplicationsCommands  = "applications.commands"
	ScopeCommandsUpdate        = "applications.commands.update"
	AuthTypeBearer             = "Bearer"
	AuthTypeBot                = "Bot"
	CurrentUser                = "@me"
	defaultRequestTimeout      = 15 * time.Second
	contentTypeJSON            = "application/json"
	contentTypeFormURLEncoding = "application/x-www-form-urlencoded"
)

// Client talks to the Discord REST API. It holds no per-user state.
type Client struct {
	apiURL     string
	httpClient *http.Client
}

type Option func(*Client)

// WithAPIURL points the client at another API root, e.g. an httptest server.
func WithAPIURL(apiURL string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		c.apiURL = apiURL
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		apiURL:     DefaultAPIURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizeURL is the provider authorization endpoint.
func (c *Client) AuthorizeURL() string {
	return c.apiURL + "oauth2/authorize"
}

func (c *Client) TokenURL() string {
	return c.apiURL + "oauth2/token"
}

func (c *Client) RevokeURL() string {
	return c.apiURL + "oauth2/token/revoke"
}

// OAuth2Config returns an oauth2.Config for app against this client's endpoints.
// Client credentials are sent in the form body.
func (c *Client) OAuth2Config(app App) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RedirectURL:  app.RedirectURI,
		Scopes:       app.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizeURL(),
			TokenURL:  c.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ExchangeCode performs the authorization_code grant.
func (c *Client) ExchangeCode(ctx context.Context, app App, code string) (*TokenResponse, error) {
	tok, err := c.OAuth2Config(app).Exchange(c.oauthContext(ctx), code,
		oauth2.SetAuthURLParam("scope", strings.Join(app.Scopes, " ")),
	)
	if err != nil {
		return nil, tokenError(err)
	}
	return toTokenResponse(tok), nil
}

// RefreshToken performs the refresh_token grant.
func (c *Client) RefreshToken(ctx context.Context, app App, refreshToken string) (*TokenResponse, error) {
	src := c.OAuth2Config(app).TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError(err)
	}
	return toTokenResponse(tok), nil
}

// RevokeToken revokes an access or refresh token using HTTP Basic client
// authentication. Discord answers with an empty object on success.
func (c *Client) RevokeToken(ctx context.Context, app App, token string) (map[string]any, error) {
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RevokeURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "[discord RevokeToken] build request")
	}
	req.Header.Set("Authorization", "Basic "+Credentials(app.ClientID, app.ClientSecret))
	req.Header.Set("Content-Type", contentTypeFormURLEncoding)

	result := map[string]any{}
	if err := c.do(c.httpClient, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Credentials returns base64(client_id:client_secret) for Basic auth.
func Credentials(clientID, clientSecret string) string {
	return base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// bearerClient returns an http.Client that authorises requests with an
// OAuth2 access token.
func (c *Client) bearerClient(ctx context.Context, accessToken string) *http.Client {
	return oauth2.NewClient(c.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   AuthTypeBearer,
	}))
}

// clientFor picks the http.Client and extra header for an auth type.
func (c *Client) clientFor(ctx context.Context, authType, token string) (*http.Client, http.Header) {
	header := http.Header{}
	if authType == "" || strings.EqualFold(authType, AuthTypeBearer) {
		return c.bearerClient(ctx, token), header
	}
	header.Set("Authorization", authType+" "+token)
	return c.httpClient, header
}

func (c *Client) call(ctx context.Context, hc *http.Client, method, path string, header http.Header, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[discord %s %s] marshal body", method, path)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "[discord %s %s] build request", method, path)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	return c.do(hc, req, out)
}

func (c *Client) do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return apperrors.Upstream(http.StatusBadGateway, "Discord API unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Upstream(resp.StatusCode, "failed to read Discord response", err)
	}

	data, err := validateResponse(resp.StatusCode, body)
	if err != nil {
		return err
	}
	if data == nil || out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Upstream(http.StatusInternalServerError, "Invalid HTTP Result", err)
	}
	return nil
}

func toTokenResponse(tok *oauth2.Token) *TokenResponse {
	tr := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		RefreshToken: tok.RefreshToken,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		tr.Scope = scope
	}
	if tr.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		tr.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return tr
}
