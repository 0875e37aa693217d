package discord

// App holds the Discord application credentials used by the OAuth2 flow.
type App struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURI  string   `yaml:"redirect_uri"`
	Scopes       []string `yaml:"scopes"`
}

// TokenResponse is the token endpoint response for both the authorization_code
// and refresh_token grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
	MFAEnabled    bool   `json:"mfa_enabled,omitempty"`
	Locale        string `json:"locale,omitempty"`
	Verified      bool   `json:"verified,omitempty"`
	Email         string `json:"email,omitempty"`
	Flags         int    `json:"flags,omitempty"`
	PremiumType   int    `json:"premium_type,omitempty"`
}

// Guild is the partial guild returned by users/@me/guilds.
type Guild struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon,omitempty"`
	Owner       bool     `json:"owner"`
	Permissions string   `json:"permissions"`
	Features    []string `json:"features"`
}

// Connection is an external account linked to a Discord profile.
type Connection struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Revoked      bool   `json:"revoked,omitempty"`
	Verified     bool   `json:"verified"`
	FriendSync   bool   `json:"friend_sync"`
	ShowActivity bool   `json:"show_activity"`
	Visibility   int    `json:"visibility"`
}

type GuildWidget struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	InstantInvite string          `json:"instant_invite,omitempty"`
	PresenceCount int             `json:"presence_count"`
	Channels      []WidgetChannel `json:"channels"`
	Members       []WidgetMember  `json:"members"`
}

type WidgetChannel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type WidgetMember struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Status    string `json:"status"`
	AvatarURL string `json:"avatar_url"`
}

// AddGuildMemberRequest adds a user to a guild with their access token. The
// access token must carry the guilds.join scope.
type AddGuildMemberRequest struct {
	GuildID     string   `json:"-"`
	UserID      string   `json:"-"`
	AccessToken string   `json:"access_token"`
	Nickname    string   `json:"nick,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Mute        bool     `json:"mute"`
	Deaf        bool     `json:"deaf"`
}

type GuildMember struct {
	User     *User    `json:"user,omitempty"`
	Nickname string   `json:"nick,omitempty"`
	Roles    []string `json:"roles"`
	JoinedAt string   `json:"joined_at"`
	Mute     bool     `json:"mute"`
	Deaf     bool     `json:"deaf"`
}
