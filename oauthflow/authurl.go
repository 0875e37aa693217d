package oauthflow

import (
	"encoding/json"
	"net/url"
	"slices"
	"strings"

	"github.com/jrsteele09/go-discord-auth/discord"
	"github.com/jrsteele09/go-discord-auth/statecodec"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// BuildAuthURL composes the Discord authorization url for a flow type.
//
// A plain login always goes through the redirect uri. login_command only does
// so when the applications.commands.update scope is requested, and webhook
// always does with the webhook.incoming scope. When a redirect is needed the
// state is JSON encoded, encrypted with codec and sent with response_type=code.
func BuildAuthURL(authorizeURL string, app discord.App, state State, codec *statecodec.Codec, flowType FlowType) (string, error) {
	var (
		scopes       []string
		needRedirect bool
	)
	switch flowType {
	case TypeLogin, TypeLoginCommand:
		scopes = app.Scopes
		needRedirect = flowType == TypeLogin || slices.Contains(scopes, discord.ScopeCommandsUpdate)
	case TypeWebhook:
		scopes = []string{discord.ScopeWebhookIncoming}
		needRedirect = true
	}

	if !needRedirect {
		params := url.Values{}
		params.Set("client_id", app.ClientID)
		params.Set("scope", strings.Join(scopes, " "))
		return appendQuery(authorizeURL, params), nil
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return "", errors.Wrap(err, "[BuildAuthURL] marshal state")
	}
	encrypted, err := codec.Encode(string(payload))
	if err != nil {
		return "", errors.Wrap(err, "[BuildAuthURL] encrypt state")
	}

	cfg := oauth2.Config{
		ClientID:    app.ClientID,
		RedirectURL: app.RedirectURI,
		Scopes:      scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: authorizeURL},
	}
	return cfg.AuthCodeURL(encrypted), nil
}

func appendQuery(base string, params url.Values) string {
	if strings.Contains(base, "?") {
		return base + "&" + params.Encode()
	}
	return base + "?" + params.Encode()
}
