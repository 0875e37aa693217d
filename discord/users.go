package discord

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
)

const (
	defaultAvatarCDN = "https://cdn.discordapp.com/embed/avatars/"
	userAvatarCDN    = "https://cdn.discordapp.com/avatars/"
)

// UserQuery selects which user GetUser fetches and how it authenticates.
// Zero values mean Bearer auth, the current user and no version prefix.
type UserQuery struct {
	AuthType string
	UserID   string
	Version  string // e.g. "v10/"
}

// GetUser fetches a user profile.
func (c *Client) GetUser(ctx context.Context, token string, q UserQuery) (*User, error) {
	userID := q.UserID
	if userID == "" {
		userID = CurrentUser
	}
	hc, header := c.clientFor(ctx, q.AuthType, token)

	var user User
	if err := c.call(ctx, hc, http.MethodGet, q.Version+"users/"+userID, header, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetCurrentUser fetches the profile that owns accessToken.
func (c *Client) GetCurrentUser(ctx context.Context, accessToken string) (*User, error) {
	return c.GetUser(ctx, accessToken, UserQuery{})
}

// GetUserGuilds lists the guilds of the current user. Requires the guilds scope.
func (c *Client) GetUserGuilds(ctx context.Context, accessToken string) ([]Guild, error) {
	var guilds []Guild
	if err := c.call(ctx, c.bearerClient(ctx, accessToken), http.MethodGet, "users/@me/guilds", nil, nil, &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}

// GetUserConnections lists linked accounts. Requires the connections scope.
func (c *Client) GetUserConnections(ctx context.Context, accessToken string) ([]Connection, error) {
	var connections []Connection
	if err := c.call(ctx, c.bearerClient(ctx, accessToken), http.MethodGet, "users/@me/connections", nil, nil, &connections); err != nil {
		return nil, err
	}
	return connections, nil
}

// GetGuildWidget fetches the public widget of a guild. No auth is needed but
// the widget must be enabled on the guild.
func (c *Client) GetGuildWidget(ctx context.Context, guildID string) (*GuildWidget, error) {
	var widget GuildWidget
	path := fmt.Sprintf("guilds/%s/widget.json", url.PathEscape(guildID))
	if err := c.call(ctx, c.httpClient, http.MethodGet, path, nil, nil, &widget); err != nil {
		return nil, err
	}
	return &widget, nil
}

// AddGuildMember joins a user to a guild using a bot token. A nil member with
// no error means the user was already in the guild.
func (c *Client) AddGuildMember(ctx context.Context, botToken string, req AddGuildMemberRequest) (*GuildMember, error) {
	path := fmt.Sprintf("guilds/%s/members/%s", url.PathEscape(req.GuildID), url.PathEscape(req.UserID))
	hc, header := c.clientFor(ctx, AuthTypeBot, botToken)

	var member *GuildMember
	if err := c.call(ctx, hc, http.MethodPut, path, header, req, &member); err != nil {
		return nil, err
	}
	return member, nil
}

// AvatarURL returns the CDN url of a default avatar. An empty index picks one
// of the five default avatars at random.
func AvatarURL(index string) string {
	if index == "" {
		index = fmt.Sprint(rand.IntN(5))
	}
	return defaultAvatarCDN + index + ".png"
}

// UserAvatarURL returns the user's own avatar, or a random default avatar when
// the user is nil or has none.
func UserAvatarURL(u *User) string {
	if u == nil || u.Avatar == "" {
		return AvatarURL("")
	}
	return userAvatarCDN + u.ID + "/" + u.Avatar + ".png"
}
