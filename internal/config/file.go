package config

import (
	"os"

	"github.com/jrsteele09/go-discord-auth/discord"
	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"github.com/jrsteele09/go-discord-auth/oauthflow"
	"github.com/jrsteele09/go-discord-auth/statecodec"
	"gopkg.in/yaml.v3"
)

// File is the optional YAML configuration. Environment variables win over
// any value set here.
type File struct {
	Server struct {
		Port       string `yaml:"port"`
		AppName    string `yaml:"app_name"`
		BaseURL    string `yaml:"base_url"`
		Env        string `yaml:"env"`
		TrustProxy *bool  `yaml:"trust_proxy"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Discord struct {
		App          discord.App `yaml:",inline"`
		APIURL       string      `yaml:"api_url"`
		FirstGetUser *bool       `yaml:"first_get_user"`
		UserOnLogout *bool       `yaml:"user_on_logout"`
	} `yaml:"discord"`
	State          statecodec.Options  `yaml:"state"`
	Query          oauthflow.QueryKeys `yaml:"query"`
	AllowedOrigins []string            `yaml:"allowed_origins"`
	SessionMaxAge  string              `yaml:"session_max_age"`
}

// Load reads path. An empty path returns an empty File.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConfig, "[config.Load] read %s: %v", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConfig, "[config.Load] parse %s: %v", path, err)
	}
	return &f, nil
}

func wrapConfig(format string, args ...any) error {
	return apperrors.Wrapf(apperrors.ErrConfig, format, args...)
}
