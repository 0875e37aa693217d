package config

import (
	"github.com/jrsteele09/go-discord-auth/discord"
	"github.com/jrsteele09/go-discord-auth/oauthflow"
	"github.com/jrsteele09/go-discord-auth/statecodec"
)

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	DiscordConfig
	CryptoConfig
	QueryConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
	GetTrustProxy() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type DiscordConfig interface {
	GetDiscordApp() discord.App
	GetDiscordAPIURL() string
	GetFirstGetUser() bool
	GetUserOnLogout() bool
}

type CryptoConfig interface {
	GetStateOptions() statecodec.Options
}

type QueryConfig interface {
	GetQueryKeys() oauthflow.QueryKeys
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	Discord
	Crypto
	Query
}

// New reads the YAML file named by CONFIG_FILE, when set, underneath the
// environment variables.
func New() (Config, error) {
	file, err := Load(GetEnv(configFileVar, ""))
	if err != nil {
		return nil, err
	}
	return mainConfig{
		EnvVars:  EnvVars{file: file},
		Cors:     Cors{file: file},
		Security: Security{file: file},
		Discord:  Discord{file: file},
		Crypto:   Crypto{file: file},
		Query:    Query{file: file},
	}, nil
}

// Validate checks the settings the OAuth2 flow cannot run without.
func Validate(c Config) error {
	app := c.GetDiscordApp()
	if app.ClientID == "" {
		return wrapConfig("%s is required", discordClientIDVar)
	}
	if app.ClientSecret == "" {
		return wrapConfig("%s is required", discordClientSecretVar)
	}
	if app.RedirectURI == "" {
		return wrapConfig("%s is required", discordRedirectURIVar)
	}
	_, err := statecodec.New(c.GetStateOptions())
	return err
}
