package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	envVar        = "ENV"
	baseURLVar    = "BASE_URL"
	logLevelVar   = "LOG_LEVEL"
	configFileVar = "CONFIG_FILE"
	trustProxyVar = "TRUST_PROXY"
)

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, fileValue(e.file, func(f *File) string { return f.Server.Port }, "8080"))
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, fileValue(e.file, func(f *File) string { return f.Server.AppName }, "Discord Auth"))
}

func (e EnvVars) GetEnv() string {
	return GetEnv(envVar, fileValue(e.file, func(f *File) string { return f.Server.Env }, "DEV"))
}

// GetBaseURL returns the public url of this service (e.g. "https://auth.example.com").
func (e EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, fileValue(e.file, func(f *File) string { return f.Server.BaseURL }, "http://localhost:8080"))
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, fileValue(e.file, func(f *File) string { return f.Log.Level }, "info"))
}

// GetTrustProxy reports whether X-Forwarded-Host is set by a trusted proxy.
func (e EnvVars) GetTrustProxy() bool {
	def := false
	if e.file != nil && e.file.Server.TrustProxy != nil {
		def = *e.file.Server.TrustProxy
	}
	return GetEnvBool(trustProxyVar, def)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvBool parses envVar with strconv.ParseBool, falling back to
// defaultValue when unset or invalid.
func GetEnvBool(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvList splits envVar on sep, dropping empty items.
func GetEnvList(envVar, sep string, defaultValue []string) []string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, sep) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func fileValue(f *File, get func(*File) string, defaultValue string) string {
	if f == nil {
		return defaultValue
	}
	if v := get(f); v != "" {
		return v
	}
	return defaultValue
}
