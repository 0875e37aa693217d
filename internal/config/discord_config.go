package config

import (
	"github.com/jrsteele09/go-discord-auth/discord"
)

const (
	discordClientIDVar     = "DISCORD_CLIENT_ID"
	discordClientSecretVar = "DISCORD_CLIENT_SECRET"
	discordRedirectURIVar  = "DISCORD_REDIRECT_URI"
	discordScopesVar       = "DISCORD_SCOPES"
	discordAPIURLVar       = "DISCORD_API_URL"
	discordFirstGetUserVar = "DISCORD_FIRST_GET_USER"
	discordUserOnLogoutVar = "DISCORD_USER_ON_LOGOUT"
)

type Discord struct {
	file *File
}

var _ DiscordConfig = Discord{}

func (d Discord) GetDiscordApp() discord.App {
	var app discord.App
	if d.file != nil {
		app = d.file.Discord.App
	}
	app.ClientID = GetEnv(discordClientIDVar, app.ClientID)
	app.ClientSecret = GetEnv(discordClientSecretVar, app.ClientSecret)
	app.RedirectURI = GetEnv(discordRedirectURIVar, app.RedirectURI)
	if app.RedirectURI == "" {
		app.RedirectURI = EnvVars{file: d.file}.GetBaseURL() + "/auth/redirect"
	}
	if len(app.Scopes) == 0 {
		app.Scopes = []string{discord.ScopeIdentify, discord.ScopeEmail}
	}
	app.Scopes = GetEnvList(discordScopesVar, " ", app.Scopes)
	return app
}

func (d Discord) GetDiscordAPIURL() string {
	return GetEnv(discordAPIURLVar, fileValue(d.file, func(f *File) string { return f.Discord.APIURL }, discord.DefaultAPIURL))
}

func (d Discord) GetFirstGetUser() bool {
	def := true
	if d.file != nil && d.file.Discord.FirstGetUser != nil {
		def = *d.file.Discord.FirstGetUser
	}
	return GetEnvBool(discordFirstGetUserVar, def)
}

func (d Discord) GetUserOnLogout() bool {
	def := true
	if d.file != nil && d.file.Discord.UserOnLogout != nil {
		def = *d.file.Discord.UserOnLogout
	}
	return GetEnvBool(discordUserOnLogoutVar, def)
}
