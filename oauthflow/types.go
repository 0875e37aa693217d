package oauthflow

import (
	"context"

	"github.com/jrsteele09/go-discord-auth/discord"
)

// FlowType selects the scopes and redirect behaviour of a login.
type FlowType string

const (
	TypeLogin        FlowType = "login"
	TypeLoginCommand FlowType = "login_command"
	TypeWebhook      FlowType = "webhook"
)

func (t FlowType) Valid() bool {
	switch t {
	case TypeLogin, TypeLoginCommand, TypeWebhook:
		return true
	}
	return false
}

// State is the blob round-tripped through Discord in the `state` parameter.
// It is never stored server side.
type State struct {
	CSRFToken string   `json:"csrfToken"`
	Redirect  string   `json:"redirect"`
	Type      FlowType `json:"type"`
}

// QueryKeys names the query parameters the flow reads from incoming requests.
type QueryKeys struct {
	Redirect  string `yaml:"redirect"`
	CSRFToken string `yaml:"csrf_token"`
}

const (
	DefaultRedirectKey  = "redirect"
	DefaultCSRFTokenKey = "csrfToken"
)

func (q QueryKeys) withDefaults() QueryKeys {
	if q.Redirect == "" {
		q.Redirect = DefaultRedirectKey
	}
	if q.CSRFToken == "" {
		q.CSRFToken = DefaultCSRFTokenKey
	}
	return q
}

// Config is read-only after start-up.
type Config struct {
	App discord.App
	// FirstGetUser fetches the Discord profile right after a login code exchange.
	FirstGetUser bool
	// UserOnLogout fetches the profile before the access token is revoked.
	UserOnLogout bool
	Query        QueryKeys
}

// Provider is the subset of the Discord API the flow depends on.
type Provider interface {
	AuthorizeURL() string
	ExchangeCode(ctx context.Context, app discord.App, code string) (*discord.TokenResponse, error)
	RefreshToken(ctx context.Context, app discord.App, refreshToken string) (*discord.TokenResponse, error)
	RevokeToken(ctx context.Context, app discord.App, token string) (map[string]any, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*discord.User, error)
}

var _ Provider = (*discord.Client)(nil)
